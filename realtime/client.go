package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// client owns the write side of one connection. Game states are conflated:
// only the newest snapshot waits to be written, since each one is complete.
type client struct {
	conn   *websocket.Conn
	logger *zap.Logger

	mu      sync.Mutex
	state   []byte
	replies [][]byte
	closed  bool
	notify  chan struct{}
	done    chan struct{}
}

func newClient(conn *websocket.Conn, logger *zap.Logger) *client {
	return &client{
		conn:   conn,
		logger: logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (c *client) sendState(msg OutboundMessage) {
	c.enqueue(msg, true)
}

func (c *client) sendReply(msg OutboundMessage) {
	c.enqueue(msg, false)
}

func (c *client) enqueue(msg OutboundMessage, isState bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if isState {
		c.state = data
	} else {
		c.replies = append(c.replies, data)
	}
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *client) take() (replies [][]byte, state []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	replies, state = c.replies, c.state
	c.replies, c.state = nil, nil
	return replies, state
}

// close stops the write pump after it flushed what is queued.
func (c *client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
}

func (c *client) write(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) flush() error {
	replies, state := c.take()
	for _, r := range replies {
		if err := c.write(r); err != nil {
			return err
		}
	}
	if state != nil {
		return c.write(state)
	}
	return nil
}

// writePump sends queued messages and pings until the client is closed.
func (c *client) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.notify:
			if err := c.flush(); err != nil {
				c.logger.Info("Write failed, closing connection", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Info("Error sending ping", zap.Error(err))
				return
			}
		case <-c.done:
			if err := c.flush(); err == nil {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		}
	}
}
