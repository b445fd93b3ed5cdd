package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/boardrelay/internal/hub"
	"github.com/dgnsrekt/boardrelay/internal/metrics"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one websocket peer. It implements hub.Connection: Send only
// queues, and writePump does the actual writes.
type Client struct {
	hub     *hub.Hub
	conn    *websocket.Conn
	connID  string
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics

	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

var _ hub.Connection = (*Client)(nil)

func (c *Client) ID() string { return c.connID }

// Send queues data for the write pump. It fails instead of blocking when the
// buffer is full so a slow peer cannot stall a broadcast.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and tears down the
// socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// readPump reads messages from the WebSocket connection and routes them to
// the hub. It leaves the hub when the peer goes away.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			return
		}

		if msgType != websocket.TextMessage {
			c.metrics.Dropped(metrics.ReasonMalformed)
			c.logger.Debug("ignoring non-text message",
				zap.String("connID", c.connID),
				zap.Int("messageType", msgType),
			)
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.metrics.Dropped(metrics.ReasonRateLimited)
			c.logger.Debug("rate limited, dropping message", zap.String("connID", c.connID))
			continue
		}

		c.hub.Route(ctx, c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				c.hub.BroadcastFailure(c, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.BroadcastFailure(c, err)
				return
			}
		}
	}
}
