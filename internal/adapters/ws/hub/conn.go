package hub

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/puzzlerank/pkg/logger"
)

// WebSocket timing constants.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

// Conn is the subset of *websocket.Conn the hub needs, kept narrow so
// pump logic is testable without a network.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// ServeConn pumps a subscriber's frames over a WebSocket connection and
// blocks until the peer disconnects or the subscriber is evicted. The
// caller is expected to have already delivered the initial snapshot.
func (h *Hub) ServeConn(ctx context.Context, conn Conn, sub *Subscriber) {
	defer func() {
		h.Unsubscribe(sub)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.writePump(ctx, conn, sub)

	// The read loop only notices disconnects; subscribers do not send
	// anything after the handshake.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debug(ctx, "subscriber read closed",
				logger.String("subscriberID", sub.ID),
				logger.Error(err),
			)
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, conn Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer func() {
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case msg, ok := <-sub.send:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug(ctx, "subscriber write failed",
					logger.String("subscriberID", sub.ID),
					logger.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
