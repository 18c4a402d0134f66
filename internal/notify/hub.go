package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
)

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type session struct {
	id     string
	userID string
	admin  bool
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans events out to connected websocket sessions. A user may hold
// several sessions at once; admin sessions receive the broadcast events.
type Hub struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Attach registers a connection and starts its read/write pumps. The hub owns
// the connection from this point on.
func (h *Hub) Attach(conn *websocket.Conn, userID string, admin bool) {
	s := &session{
		id:     uuid.NewString(),
		userID: userID,
		admin:  admin,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.logger.Info("session attached", "sessionId", s.id, "userId", userID, "admin", admin)

	go h.writePump(s)
	go h.readPump(s)
}

// NotifyUser delivers an event to every session owned by the given user.
func (h *Hub) NotifyUser(userID, event string, payload any) {
	if userID == "" {
		return
	}
	h.dispatch(event, payload, func(s *session) bool { return s.userID == userID })
}

// NotifyAdmins broadcasts an event to all admin sessions.
func (h *Hub) NotifyAdmins(event string, payload any) {
	h.dispatch(event, payload, func(s *session) bool { return s.admin })
}

func (h *Hub) dispatch(event string, payload any, match func(*session) bool) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal event", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		if !match(s) {
			continue
		}
		select {
		case s.send <- data:
		default:
			// Slow consumer; drop the session rather than block dispatch.
			close(s.send)
			delete(h.sessions, id)
		}
	}
}

func (h *Hub) writePump(s *session) {
	defer s.conn.Close()
	for message := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Warn("websocket write failed", "sessionId", s.id, "error", err)
			return
		}
	}
}

// readPump drains inbound frames; the push channel is one-way, so any client
// payload is discarded and a read error detaches the session.
func (h *Hub) readPump(s *session) {
	defer func() {
		h.detach(s.id)
		s.conn.Close()
	}()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("unexpected websocket close", "sessionId", s.id, "error", err)
			}
			return
		}
	}
}

func (h *Hub) detach(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[id]; ok {
		delete(h.sessions, id)
		close(s.send)
	}
}

// Close drops every session. Used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, s := range h.sessions {
		delete(h.sessions, id)
		close(s.send)
	}
}
