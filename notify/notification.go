package notify

import (
	"github.com/mqy/wabiz/chatstore"
)

type Kind string

const (
	KindText        Kind = "text"
	KindMedia       Kind = "media"
	KindLocation    Kind = "location"
	KindContact     Kind = "contact"
	KindButton      Kind = "button"
	KindInteractive Kind = "interactive"
	KindFlow        Kind = "flow"
	KindSystem      Kind = "system"
	KindStatus      Kind = "status"
	KindReaction    Kind = "reaction"
	KindUnknown     Kind = "unknown"
)

// Profile is the sender profile attached to inbound messages.
type Profile struct {
	Name string
	WaID string
}

// Notification is one normalized provider event.
type Notification struct {
	MessengerID string
	From        string // chat identity of the peer
	ChannelID   string // receiving phone number id
	Timestamp   int64
	ReplyTo     string
	Forwarded   bool
	Profile     *Profile

	Payload Payload
}

// Kind returns the variant of the notification payload.
func (n *Notification) Kind() Kind {
	if n.Payload == nil {
		return KindUnknown
	}
	return n.Payload.Kind()
}

// Payload is implemented only by the variants of this package.
type Payload interface {
	Kind() Kind
	payload()
}

type Text struct {
	Body string
}

type Media struct {
	MediaKind chatstore.MediaKind
	MediaID   string
	MimeType  string
	Caption   string
	FileName  string
}

type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

type Contact struct {
	FormattedName string
	Phone         string
}

type Button struct {
	Text    string
	Payload string
}

type Interactive struct {
	ID    string
	Title string
}

type Flow struct {
	Name         string
	Body         string
	ResponseJSON string
}

type System struct {
	Body       string
	SystemType string
}

type Status struct {
	Status string
	// Unread is an explicit unread counter supplied by the provider, if any.
	Unread *int32
	Errors []string
}

type Reaction struct {
	MessageID string
	Emoji     string
}

// Unknown is any item the classifier could not map to another variant.
type Unknown struct {
	Type   string
	Reason string
}

func (*Text) Kind() Kind        { return KindText }
func (*Media) Kind() Kind       { return KindMedia }
func (*Location) Kind() Kind    { return KindLocation }
func (*Contact) Kind() Kind     { return KindContact }
func (*Button) Kind() Kind      { return KindButton }
func (*Interactive) Kind() Kind { return KindInteractive }
func (*Flow) Kind() Kind        { return KindFlow }
func (*System) Kind() Kind      { return KindSystem }
func (*Status) Kind() Kind      { return KindStatus }
func (*Reaction) Kind() Kind    { return KindReaction }
func (*Unknown) Kind() Kind     { return KindUnknown }

func (*Text) payload()        {}
func (*Media) payload()       {}
func (*Location) payload()    {}
func (*Contact) payload()     {}
func (*Button) payload()      {}
func (*Interactive) payload() {}
func (*Flow) payload()        {}
func (*System) payload()      {}
func (*Status) payload()      {}
func (*Reaction) payload()    {}
func (*Unknown) payload()     {}
