package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sahaana/coopvault/backend/internal/notify"
)

// WSHandler upgrades websocket connections and hands them to the hub.
type WSHandler struct {
	logger   *slog.Logger
	hub      *notify.Hub
	upgrader websocket.Upgrader
}

// NewWSHandler constructs a WSHandler instance. Origin checks are handled by
// the CORS layer in front of the mux, so the upgrader accepts all origins.
func NewWSHandler(logger *slog.Logger, hub *notify.Hub) *WSHandler {
	return &WSHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// handleConnect serves GET /ws?userId=... or GET /ws?role=admin.
func (h *WSHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	query := r.URL.Query()
	userID := query.Get("userId")
	admin := query.Get("role") == "admin"
	if userID == "" && !admin {
		writeError(w, http.StatusBadRequest, "userId or role=admin is required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.hub.Attach(conn, userID, admin)
}
