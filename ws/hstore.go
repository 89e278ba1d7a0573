package ws

import (
	"sync"

	"github.com/mqy/wabiz/metrics"
)

// memory handler store for local sessions.
type HandlerStore struct {
	sync.RWMutex
	handlers map[string]*Handler
}

func (hs *HandlerStore) get(sid string) *Handler {
	hs.RLock()
	h := hs.handlers[sid]
	hs.RUnlock()
	return h
}

func (hs *HandlerStore) del(sid string) bool {
	hs.Lock()
	defer hs.Unlock()
	if _, ok := hs.handlers[sid]; ok {
		delete(hs.handlers, sid)
		metrics.Subscribers.Dec()
		return true
	}
	return false
}

func (hs *HandlerStore) add(handler *Handler) {
	hs.Lock()
	sid := handler.session.ID
	hs.handlers[sid] = handler
	hs.Unlock()
	metrics.Subscribers.Inc()
}

// getByRoom returns handlers subscribed to roomID.
func (hs *HandlerStore) getByRoom(roomID int64) []*Handler {
	// Handlers are filtered outside of the store lock: Handler.close holds
	// the handler lock while it removes itself from the store.
	var out []*Handler
	for _, h := range hs.snapshot() {
		if h.accepts(roomID) {
			out = append(out, h)
		}
	}
	return out
}

func (hs *HandlerStore) snapshot() []*Handler {
	hs.RLock()
	defer hs.RUnlock()
	handlers := make([]*Handler, 0, len(hs.handlers))
	for _, h := range hs.handlers {
		handlers = append(handlers, h)
	}
	return handlers
}

func (hs *HandlerStore) size() int {
	hs.RLock()
	defer hs.RUnlock()
	return len(hs.handlers)
}

func (hs *HandlerStore) close() {
	for _, h := range hs.snapshot() {
		h.close(ServerStop)
	}
}
