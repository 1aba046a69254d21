package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"callpilot/internal/core/domain"
	"callpilot/internal/core/ports"

	"github.com/gorilla/websocket"
)

var ErrConnectionClosed = errors.New("platform connection closed")

// connection serializes writes to one websocket.
type connection struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newConnection(conn *websocket.Conn, writeTimeout time.Duration) *connection {
	return &connection{conn: conn, writeTimeout: writeTimeout}
}

func (c *connection) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		_ = c.conn.Close()
	}
}

// callHandle forwards controller writes to the platform client as
// commands. The client executes them against its call SDK.
type callHandle struct {
	conn *connection
}

var _ ports.CallHandle = (*callHandle)(nil)

func (h *callHandle) send(ctx context.Context, command string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.conn.writeJSON(outgoing{Type: command, Payload: payload})
}

func (h *callHandle) SetIncomingVideoEnabled(ctx context.Context, enabled bool) error {
	return h.send(ctx, CommandSetIncomingVideo, EnabledCommand{Enabled: enabled})
}

func (h *callHandle) SetPreferredIncomingVideoResolution(ctx context.Context, res domain.Resolution, sessionIDs ...domain.SessionID) error {
	return h.send(ctx, CommandPreferredResolution, ResolutionCommand{
		Width:      res.Width,
		Height:     res.Height,
		SessionIDs: sessionIDs,
	})
}

func (h *callHandle) SetScreenShareEnabled(ctx context.Context, enabled bool) error {
	return h.send(ctx, CommandSetScreenShare, EnabledCommand{Enabled: enabled})
}

func (h *callHandle) ToggleScreenShare(ctx context.Context) error {
	return h.send(ctx, CommandToggleScreenShare, nil)
}

func (h *callHandle) ApplyScreenShareSettings(ctx context.Context, settings domain.ScreenShareSettings) error {
	return h.send(ctx, CommandScreenShareSettings, settings)
}
