package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/mqy/wabiz/chatstore"
	"github.com/mqy/wabiz/notify"
	"github.com/mqy/wabiz/store"
)

// MergeReaction applies a reaction of the sender to the target message: an
// empty emoji removes the sender's reaction, anything else replaces it.
func (e *Engine) MergeReaction(ctx context.Context, n *notify.Notification) *Result {
	res := &Result{Kind: notify.KindReaction, MessengerID: n.MessengerID}
	r, ok := n.Payload.(*notify.Reaction)
	if !ok {
		res.Reason = fmt.Sprintf("not a reaction: %s", n.Kind())
		return res
	}

	var msg *chatstore.Message
	var changed bool
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.ITx) error {
		var err error
		msg, err = tx.GetMessage(ctx, e.channel, r.MessageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return errNotFound
		}
		if changed = msg.Reactions.Merge(n.From, r.Emoji); !changed {
			return nil
		}
		return tx.UpdateMessage(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, errNotFound) {
			glog.V(5).Infof("reaction %s for unknown message %s dropped", n.MessengerID, r.MessageID)
		} else {
			glog.Errorf("reaction %s: tx err: %v", n.MessengerID, err)
		}
		res.Reason = err.Error()
		return res
	}

	res.Success = true
	res.Changed = changed
	res.Message = msg
	if changed {
		res.Event = &Event{Type: EventMessageEdited, Message: msg}
	}
	return res
}
