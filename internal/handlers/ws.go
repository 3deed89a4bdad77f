package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Jeff-Emmett/collective-boredom-dial/internal/broadcast"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/logging"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/models"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBufferSize = 16
)

// WSHandler upgrades incoming requests to websocket connections and runs
// one session per connection.
type WSHandler struct {
	reg        *registry.Registry
	dispatcher *broadcast.Dispatcher
	upgrader   websocket.Upgrader
}

// NewWSHandler creates a WSHandler. Connections are accepted from any
// origin, matching the administrative surface's CORS policy.
func NewWSHandler(reg *registry.Registry, dispatcher *broadcast.Dispatcher) *WSHandler {
	return &WSHandler{
		reg:        reg,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve handles one websocket connection for its whole lifetime. The room
// identifier and optional display name come from the query string.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	roomParam := r.URL.Query().Get("room")
	nameParam := r.URL.Query().Get("name")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader has already written the HTTP error response.
		slog.Warn("websocket upgrade failed",
			slog.String("ip", logging.ExtractClientIP(r)),
			slog.Any("error", logging.WrapError(err, "upgrade connection")),
		)
		return
	}

	s := &session{
		connID:     uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		reg:        h.reg,
		dispatcher: h.dispatcher,
	}

	roomID := s.join(roomParam, nameParam)
	if attrs := logging.GetRequestAttrs(r.Context()); attrs != nil {
		attrs.RoomID = roomID
	}
	go s.writePump()
	s.readPump()
}

// Session lifecycle states. Transitions only move forward; closed is
// terminal and teardown is idempotent.
const (
	stateConnecting = iota
	stateJoined
	stateClosed
)

// session is one live connection's state machine. It implements
// registry.Conn as the participant's non-owning connection handle.
type session struct {
	connID     string
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	reg        *registry.Registry
	dispatcher *broadcast.Dispatcher

	mu     sync.Mutex
	state  int
	roomID string
	userID string
}

// TrySend queues a payload for delivery without blocking. It reports false
// when the session is not joined or its buffer is full; the caller treats
// both as a skipped delivery.
func (s *session) TrySend(payload []byte) bool {
	s.mu.Lock()
	joined := s.state == stateJoined
	s.mu.Unlock()
	if !joined {
		return false
	}

	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Close shuts the underlying connection. The read pump observes the close
// and runs the normal teardown path.
func (s *session) Close() error {
	return s.conn.Close()
}

// join resolves the room, registers the participant, queues the one-time
// welcome message, and broadcasts so existing participants see the new
// count. Returns the resolved room identifier.
func (s *session) join(roomParam, nameParam string) string {
	res := s.reg.Join(roomParam, nameParam, s)

	s.mu.Lock()
	s.state = stateJoined
	s.roomID = res.RoomID
	s.userID = res.UserID
	s.mu.Unlock()

	welcome := models.WelcomeMessage{
		Type:      models.MessageTypeWelcome,
		UserID:    res.UserID,
		RoomID:    res.RoomID,
		RoomName:  res.RoomName,
		Boredom:   res.Boredom,
		RoomStats: res.Stats,
	}
	if payload, err := json.Marshal(welcome); err == nil {
		// The buffer is fresh and empty, so this never blocks.
		s.send <- payload
	} else {
		slog.Error("failed to marshal welcome message", slog.String("conn_id", s.connID), slog.Any("error", err))
	}

	slog.Info("participant joined",
		slog.String("conn_id", s.connID),
		slog.String("room_id", res.RoomID),
		slog.String("user_id", res.UserID),
	)

	s.dispatcher.Broadcast(res.RoomID)
	return res.RoomID
}

// readPump consumes inbound messages until the connection dies, then runs
// teardown exactly once.
func (s *session) readPump() {
	defer s.teardown()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", slog.String("conn_id", s.connID), slog.Any("error", err))
			}
			return
		}
		s.handleMessage(raw)
	}
}

// handleMessage applies one inbound tagged payload. Unparseable payloads,
// unknown tags, and wrong value types are dropped without a response and
// without closing the connection.
func (s *session) handleMessage(raw []byte) {
	s.mu.Lock()
	if s.state != stateJoined {
		s.mu.Unlock()
		return
	}
	roomID, userID := s.roomID, s.userID
	s.mu.Unlock()

	var msg models.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Debug("dropping malformed message", slog.String("conn_id", s.connID))
		return
	}

	switch msg.Type {
	case models.MessageTypeUpdate:
		if msg.Boredom == nil {
			return
		}
		if s.reg.UpdateValue(roomID, userID, *msg.Boredom) {
			s.dispatcher.Broadcast(roomID)
		}
	case models.MessageTypeSetName:
		if msg.Name == "" {
			return
		}
		if s.reg.SetName(roomID, userID, msg.Name) {
			s.dispatcher.Broadcast(roomID)
		}
	default:
		slog.Debug("dropping message with unknown type", slog.String("conn_id", s.connID), slog.String("type", msg.Type))
	}
}

// teardown removes the participant, closes the connection, and broadcasts
// the room's updated stats. Idempotent: a session that is already closed
// takes no further action.
func (s *session) teardown() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	wasJoined := s.state == stateJoined
	s.state = stateClosed
	roomID, userID := s.roomID, s.userID
	s.mu.Unlock()

	close(s.done)
	_ = s.conn.Close()

	if wasJoined && s.reg.Leave(roomID, userID) {
		s.dispatcher.Broadcast(roomID)
	}

	slog.Info("participant left",
		slog.String("conn_id", s.connID),
		slog.String("room_id", roomID),
		slog.String("user_id", userID),
	)
}

// writePump delivers queued payloads and keepalive pings. Write failures
// close the connection, which surfaces in the read pump and triggers
// teardown.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
