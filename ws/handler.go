package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

type SessionError int

const (
	ReadError  SessionError = 1
	WriteError SessionError = 2
	PingError  SessionError = 3
	BadRequest SessionError = 4
	ServerStop SessionError = 5
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	// Recommend configure nginx with `keep-alive_timeout` >= 65s.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read.
	readLimit = 4096

	dataChanSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Subscribers are operator consoles authenticated by token, any origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Session describes one connected subscriber.
type Session struct {
	ID         string `json:"sid"`
	Operator   string `json:"operator"`
	IP         string `json:"ip"`
	CreateTime int64  `json:"create_time"`
}

// ClientMsg is the only request of subscribers: restrict events to the
// given rooms. An empty list subscribes to every room.
type ClientMsg struct {
	Rooms []int64 `json:"rooms"`
}

// ServerMsg answers a ClientMsg.
type ServerMsg struct {
	Rooms []int64 `json:"rooms"`
	Error string  `json:"error,omitempty"`
}

// SessionData is the data structure for `dataChan`.
type SessionData struct {
	Error     SessionError `json:"error,omitempty"`
	Event     []byte       `json:"-"`
	ServerMsg *ServerMsg   `json:"resp,omitempty"`
}

// Handler manages an active connection to a subscriber.
// Every new websocket connection creates a new session.
type Handler struct {
	sync.Mutex

	hub *Hub

	session *Session
	conn    *websocket.Conn

	dataChan chan *SessionData

	// room id set, nil means all rooms.
	rooms map[int64]bool

	closing bool
}

func (h *Handler) String() string {
	out, _ := json.Marshal(h.session)
	return string(out)
}

func (h *Handler) accepts(roomID int64) bool {
	h.Lock()
	defer h.Unlock()
	return h.rooms == nil || h.rooms[roomID]
}

func (h *Handler) setRooms(rooms []int64) {
	h.Lock()
	defer h.Unlock()
	if len(rooms) == 0 {
		h.rooms = nil
		return
	}
	h.rooms = make(map[int64]bool, len(rooms))
	for _, id := range rooms {
		h.rooms[id] = true
	}
}

func (h *Handler) close(cause SessionError) {
	h.Lock()
	defer h.Unlock()
	if h.closing {
		return
	}

	h.closing = true

	// sendLoop may be writing: only control frames and Close are safe here.
	_ = h.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	h.conn.Close()

	close(h.dataChan)

	if cause != ServerStop {
		glog.V(5).Infof("session closed, cause: %d, %s", cause, h)
		h.hub.delHandler(h.session.ID)
	}
}

// appendDataChan queues a control message; a session that can not take it
// is closed.
func (h *Handler) appendDataChan(v *SessionData) {
	if h.offer(v) {
		return
	}
	h.Lock()
	closing := h.closing
	h.Unlock()
	if closing {
		return
	}
	glog.Warningf("session queue full, close session: %s", h)
	cause := v.Error
	if cause == 0 {
		cause = WriteError
	}
	h.close(cause)
}

// offer queues an event without blocking, false when the subscriber lags.
func (h *Handler) offer(v *SessionData) bool {
	h.Lock()
	defer h.Unlock()
	if h.closing {
		return false
	}
	select {
	case h.dataChan <- v:
		return true
	default:
		return false
	}
}

func sendServerMsg(conn *websocket.Conn, msg *ServerMsg) error {
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return sendText(conn, out)
}

func sendText(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) recvLoop() {
	defer func() { glog.V(5).Infof("recvLoop(): exited, session: %s", h.String()) }()

	h.conn.SetReadLimit(readLimit)
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	h.conn.SetPongHandler(func(s string) error {
		h.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, msg, err := h.conn.ReadMessage()
		if err != nil {
			glog.V(5).Infof("recvLoop(): read error: %v", err)
			h.appendDataChan(&SessionData{Error: ReadError})
			return
		}

		glog.V(5).Infof("recvLoop(): incoming client message: %v", string(msg))

		if msgType != websocket.TextMessage {
			glog.Errorf("recvLoop(): unexpected message type: %d", msgType)
			h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{Error: "websocket only supports TextMessage"}})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		var req ClientMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			glog.Errorf("recvLoop(): message error: msg: %s, err: %v", string(msg), err)
			h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{Error: fmt.Sprintf("unmarshal error: %v", err)}})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		h.setRooms(req.Rooms)
		h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{Rooms: req.Rooms}})
	}
}

func (h *Handler) sendLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("sendLoop(): exited, session: %s", h.String())
	}()

	for {
		select {
		case v, ok := <-h.dataChan:
			if !ok { // chan was closed
				h.conn.Close()
				glog.V(5).Infof("sendLoop(): data chan closed, session: %s", h.String())
				return
			}

			if v.Error > 0 {
				h.close(v.Error)
				return
			}

			var err error
			if v.Event != nil {
				err = sendText(h.conn, v.Event)
			} else if v.ServerMsg != nil {
				err = sendServerMsg(h.conn, v.ServerMsg)
			}
			if err != nil {
				glog.Errorf("sendLoop(), error write message. session: %s, err: %v", h.String(), err)
				h.close(WriteError)
				return
			}
		case <-pingTicker.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				glog.Errorf("sendLoop(), error write ping message. session: %s, err: %v", h, err)
				h.close(PingError)
				return
			}
		}
	}
}
