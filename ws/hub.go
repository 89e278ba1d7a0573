package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/mqy/wabiz/auth"
	"github.com/mqy/wabiz/engine"
)

// Hub works as a hub that manages and serves subscriber sessions.
// It implements `engine.Broadcaster`.
type Hub struct {
	authClient auth.Client
	hstore     *HandlerStore
}

// NewHub creates a `Hub`.
func NewHub(authClient auth.Client) *Hub {
	return &Hub{
		authClient: authClient,
		hstore: &HandlerStore{
			handlers: make(map[string]*Handler),
		},
	}
}

// ServeHTTP handles websocket requests from the peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	operator, err := h.authClient.Auth(r)
	if err != nil {
		glog.Errorf("ServeHTTP(): authenticate error: %v", err)
		http.Error(w, "Authenticate error", http.StatusForbidden)
		return
	}

	sess := &Session{
		ID:         strings.ReplaceAll(uuid.New(), "-", ""),
		Operator:   operator,
		IP:         getRemoteIP(r),
		CreateTime: time.Now().Unix(),
	}

	// If the upgrade fails, then Upgrade replies to the client with an HTTP error response.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("ServeHTTP(): upgrader.Upgrade error, operator: %s, err: %s", operator, err)
		return
	}

	// NOTE:  after upgrade, `w.WriteHeader(...)`` causes error `response.Write on hijacked connection`.

	handler := &Handler{
		dataChan: make(chan *SessionData, dataChanSize),
		session:  sess,
		conn:     conn,
		hub:      h,
	}

	conn.SetCloseHandler(func(code int, text string) error {
		glog.Infof("session closed by peer, session: %s, code: %d, text: %s", handler, code, text)
		h.delHandler(sess.ID)
		return nil
	})

	h.hstore.add(handler)
	glog.V(5).Infof("session online: %s", handler)

	go handler.recvLoop()
	go handler.sendLoop()
}

func (h *Hub) delHandler(sid string) {
	if h.hstore.del(sid) {
		glog.V(5).Infof("session offline: %s", sid)
	}
}

// Broadcast sends ev to every session subscribed to its room. A session
// whose queue is full misses the event.
func (h *Hub) Broadcast(ctx context.Context, ev *engine.Event) error {
	handlers := h.hstore.getByRoom(ev.RoomID())
	if len(handlers) == 0 {
		return nil
	}

	out, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("error marshal event %s: %w", ev.Type, err)
	}

	dropped := 0
	for _, s := range handlers {
		if !s.offer(&SessionData{Event: out}) {
			dropped++
			glog.Warningf("hub: %s dropped for slow session %s", ev.Type, s)
		}
	}
	glog.V(5).Infof("hub: %s of room %d sent to %d sessions, %d dropped",
		ev.Type, ev.RoomID(), len(handlers)-dropped, dropped)
	return nil
}

// Sessions returns number of connected sessions.
func (h *Hub) Sessions() int {
	return h.hstore.size()
}

// Close closes all sessions.
func (h *Hub) Close() {
	glog.Infof("close connections ...")
	h.hstore.close()
	glog.Infof("close connections done")
}

func getRemoteIP(r *http.Request) string {
	ip := r.Header.Get("X-REAL-IP")
	if ip == "" {
		if ips := r.Header.Get("X-FORWARDED-FOR"); ips != "" {
			slice := strings.Split(ips, ",")
			for _, x := range slice {
				if x = strings.TrimSpace(x); x != "" {
					ip = x
				}
			}
		}
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}

	return ip
}
