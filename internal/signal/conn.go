// Package signal carries the websocket endpoints: the room signaling
// controller, the collaborative-document controller, the rate governor and
// the transport plumbing they share.
package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

// wsConn wraps a gorilla connection with a buffered outbound queue.
// TrySend never blocks: a full queue is reported as backpressure and the
// frame is dropped for this recipient only. Close is one-shot.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWsConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		conn: ws,
		send: make(chan []byte, buffer),
	}
}

func (c *wsConn) TrySend(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- payload:
	default:
		return ErrBackpressure
	}
	return nil
}

// Shutdown stops accepting new frames and lets the write pump drain what is
// already queued before the socket is closed. Used for server-initiated
// closes that must still deliver a final event, like room_ended.
func (c *wsConn) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

func (c *wsConn) Close() {
	c.Shutdown()
	_ = c.conn.Close()
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings. It exits when the context is canceled or the queue is
// closed.
func (c *wsConn) writePump(ctx context.Context, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				// Queue drained after Shutdown: say goodbye properly.
				deadline := time.Now().Add(writeWait)
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				_ = c.conn.Close()
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// Connection-refusal close codes, matching what clients already handle.
const (
	CloseUnauthorized = 4001 // credential invalid or expired
	CloseRoomFull     = 4003 // viewer capacity reached
	CloseNotFound     = 4004 // room or document missing or ended
)

// refuse rejects a handshake that never reached ACTIVE: one close frame
// with a machine-readable code, then the socket is gone. Never retried
// server-side.
func refuse(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = ws.Close()
}
