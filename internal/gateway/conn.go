package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

// ConnState is the lifecycle of one gateway connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// conn is one websocket client. Frames are written by a single writer
// goroutine fed through a bounded queue.
type conn struct {
	id       string
	identity domain.Identity
	state    atomic.Int32

	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	registry *Registry
	log      *slog.Logger
	onClose  func(*conn)
}

func newConn(id string, registry *Registry, queueSize int, log *slog.Logger) *conn {
	c := &conn{
		id:       id,
		send:     make(chan []byte, queueSize),
		done:     make(chan struct{}),
		registry: registry,
		log:      log,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *conn) State() ConnState {
	return ConnState(c.state.Load())
}

// transition moves from one state to the next and reports whether it happened.
func (c *conn) transition(from, to ConnState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// enqueue queues a frame without blocking. A full queue means the client
// cannot keep up; it is disconnected.
func (c *conn) enqueue(frame []byte) bool {
	if c.State() != StateAuthenticated {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("gateway send queue full, disconnecting", "conn_id", c.id, "user_id", c.identity.UserID)
		c.close()
		return false
	}
}

func (c *conn) sendControl(frameType, requestID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("encode gateway frame payload", "type", frameType, "err", err)
		return
	}
	data, err := json.Marshal(controlFrame{Type: frameType, RequestID: requestID, Payload: raw})
	if err != nil {
		c.log.Error("encode gateway frame", "type", frameType, "err", err)
		return
	}
	c.enqueue(data)
}

func (c *conn) sendError(requestID string, code domain.Code, message string) {
	c.sendControl(frameError, requestID, errorPayload{Code: string(code), Message: message})
}

// close disconnects once: memberships are released before the socket closes.
func (c *conn) close() {
	c.once.Do(func() {
		c.state.Store(int32(StateDisconnected))
		c.registry.RemoveAll(c)
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// writeLoop drains the send queue and emits a ping every interval.
func (c *conn) writeLoop(ctx context.Context, pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	ping, _ := json.Marshal(controlFrame{Type: framePing, Payload: json.RawMessage(`{}`)})
	write := func(data []byte) bool {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := websocket.Message.Send(c.ws, string(data)); err != nil {
			c.log.Debug("gateway write failed", "conn_id", c.id, "err", err)
			c.close()
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case <-c.done:
			return
		case data := <-c.send:
			if !write(data) {
				return
			}
		case <-ticker.C:
			if !write(ping) {
				return
			}
		}
	}
}
