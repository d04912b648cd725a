// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/okian/puzzlerank/internal/adapters/ws/hub"
	"github.com/okian/puzzlerank/internal/domain/window"
	"github.com/okian/puzzlerank/pkg/logger"
)

// WSHandler upgrades leaderboard subscriptions to WebSocket streams.
type WSHandler struct {
	deps     Dependencies
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(deps Dependencies) *WSHandler {
	return &WSHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.Get().Named("ws"),
	}
}

// HandleWS handles GET /ws?window=ID&filter=EXPR requests. The filter is
// "top:N", "around:player:radius", or empty for the default view.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	windowID := r.URL.Query().Get("window")
	if windowID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	// Subscription errors must surface before the upgrade so the client
	// gets a real status code instead of a dropped socket.
	sub, err := h.deps.Subscribe(r.Context(), windowID, r.URL.Query().Get("filter"))
	if err != nil {
		switch {
		case errors.Is(err, window.ErrUnknownWindow):
			writeError(w, http.StatusNotFound, "unknown_window", err)
		case errors.Is(err, hub.ErrInvalidFilter):
			writeError(w, http.StatusBadRequest, "invalid_filter", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Unsubscribe(sub)
		h.log.Warn(r.Context(), "websocket upgrade failed",
			logger.String("window", windowID),
			logger.Error(err),
		)
		return
	}

	h.log.Debug(r.Context(), "subscriber connected",
		logger.String("subscriberID", sub.ID),
		logger.String("window", windowID),
		logger.String("remote", r.RemoteAddr),
	)

	// Blocks until the peer disconnects or the subscriber is evicted.
	h.deps.ServeConn(r.Context(), conn, sub)
}
