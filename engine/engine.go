// Package engine reconciles classified webhook notifications against the
// chat store and emits normalized events after commit.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/mqy/wabiz/chatstore"
	"github.com/mqy/wabiz/media"
	"github.com/mqy/wabiz/metrics"
	"github.com/mqy/wabiz/notify"
	"github.com/mqy/wabiz/store"
)

const DefaultMediaTimeout = 20 * time.Second

var errNotFound = errors.New("message not found")

type Config struct {
	// Channel is the canonical channel name of rooms and messages.
	Channel string
	// PhoneNumberID is the provider channel identity this deployment serves.
	PhoneNumberID string
	// MediaTimeout bounds one media download.
	MediaTimeout time.Duration
}

type Engine struct {
	channel      string
	mediaTimeout time.Duration
	guard        *notify.Guard
	store        store.IChatStore
	fetcher      media.Fetcher
	broadcaster  Broadcaster
	now          func() time.Time
}

// New creates an Engine. fetcher and broadcaster may be nil: messages are
// then stored without media, and events are not broadcast.
func New(conf Config, st store.IChatStore, fetcher media.Fetcher, broadcaster Broadcaster) *Engine {
	if conf.Channel == "" {
		conf.Channel = chatstore.Channel
	}
	if conf.MediaTimeout <= 0 {
		conf.MediaTimeout = DefaultMediaTimeout
	}
	return &Engine{
		channel:      conf.Channel,
		mediaTimeout: conf.MediaTimeout,
		guard:        notify.NewGuard(conf.PhoneNumberID),
		store:        st,
		fetcher:      fetcher,
		broadcaster:  broadcaster,
		now:          time.Now,
	}
}

// Process decodes and handles one webhook body. Only an undecodable body is
// an error, per item outcomes are in the results.
func (e *Engine) Process(ctx context.Context, body []byte) ([]*Result, error) {
	env, err := notify.Decode(body)
	if err != nil {
		return nil, err
	}
	return e.ProcessEnvelope(ctx, env), nil
}

// ProcessEnvelope handles every notification of env sequentially, in
// payload order, each in its own transaction.
func (e *Engine) ProcessEnvelope(ctx context.Context, env *notify.Envelope) []*Result {
	start := time.Now()
	defer func() {
		metrics.ProcessSeconds.Observe(time.Since(start).Seconds())
	}()

	notifications := notify.Classify(env)
	results := make([]*Result, 0, len(notifications))
	for _, n := range notifications {
		results = append(results, e.Handle(ctx, n))
	}
	return results
}

// Handle guards, routes and applies one notification, then broadcasts its
// event if any.
func (e *Engine) Handle(ctx context.Context, n *notify.Notification) *Result {
	kind := n.Kind()
	metrics.Notifications.WithLabelValues(string(kind)).Inc()

	var res *Result
	if u, ok := n.Payload.(*notify.Unknown); ok && n.ChannelID == "" {
		// No channel identity to check: malformed, not foreign.
		metrics.NotificationsDropped.WithLabelValues("unknown").Inc()
		res = failure(n, "unknown notification: "+u.Reason)
	} else if !e.guard.Allow(n) {
		metrics.NotificationsDropped.WithLabelValues("channel_mismatch").Inc()
		res = failure(n, "channel mismatch")
	} else {
		res = e.route(ctx, n)
	}

	metrics.Results.WithLabelValues(string(kind), res.outcome()).Inc()
	if !res.Success {
		glog.V(5).Infof("notification %s %q not applied: %s", kind, n.MessengerID, res.Reason)
	}
	broadcast(ctx, e.broadcaster, res.Event)
	return res
}

func (e *Engine) route(ctx context.Context, n *notify.Notification) *Result {
	switch p := n.Payload.(type) {
	case *notify.Status:
		return e.ReconcileStatus(ctx, n)
	case *notify.Reaction:
		return e.MergeReaction(ctx, n)
	case *notify.Unknown:
		// Identified messages of unknown type are kept for audit continuity.
		if p.Type != "status" && n.MessengerID != "" && n.From != "" {
			return e.Ingest(ctx, n)
		}
		metrics.NotificationsDropped.WithLabelValues("unknown").Inc()
		return failure(n, "unknown notification: "+p.Reason)
	case nil:
		metrics.NotificationsDropped.WithLabelValues("unknown").Inc()
		return failure(n, "empty notification")
	default:
		return e.Ingest(ctx, n)
	}
}

func failure(n *notify.Notification, reason string) *Result {
	return &Result{
		Kind:        n.Kind(),
		MessengerID: n.MessengerID,
		Reason:      reason,
	}
}

func (e *Engine) timestamp(n *notify.Notification) int64 {
	if n.Timestamp > 0 {
		return n.Timestamp
	}
	return e.now().Unix()
}
