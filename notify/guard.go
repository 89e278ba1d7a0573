package notify

import (
	"strings"

	"github.com/golang/glog"
)

// Guard drops notifications addressed to a channel identity other than the
// one this deployment serves.
type Guard struct {
	channelID string
}

func NewGuard(channelID string) *Guard {
	return &Guard{channelID: strings.TrimSpace(channelID)}
}

// Allow reports whether n targets the configured channel identity.
func (g *Guard) Allow(n *Notification) bool {
	received := strings.TrimSpace(n.ChannelID)
	if received == g.channelID {
		return true
	}
	glog.Warningf("guard: ignored notification for another phone_number_id, received: %q, expected: %q, messenger_id: %s",
		received, g.channelID, n.MessengerID)
	return false
}
