package transport

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/lox/twentyone/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// DefaultPongWait is the time allowed to read the next pong from the peer
	DefaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	sendBufferSize = 256
)

var (
	ErrClosed         = protocol.NewError(protocol.KindDisconnected, "connection closed")
	ErrSendBufferFull = protocol.NewError(protocol.KindDisconnected, "send buffer full")
)

// Handler receives what a Conn reads. Calls are made from the
// connection's read goroutine, one at a time.
type Handler interface {
	HandleMessage(c *Conn, msg protocol.Message)

	// HandleInvalid is called for frames that fail to decode. The
	// connection keeps reading afterwards.
	HandleInvalid(c *Conn, err error)

	// HandleClose is called exactly once, after the read loop ends
	HandleClose(c *Conn)
}

// Conn pumps protocol messages over a websocket. Writes go through a
// buffered queue drained by a single writer; the writer also sends
// keepalive pings and a missed pong ends the read loop.
type Conn struct {
	id       string
	ws       *websocket.Conn
	send     chan []byte
	handler  Handler
	clock    quartz.Clock
	pongWait time.Duration
	logger   *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// ConnOption configures a Conn
type ConnOption func(*Conn)

// WithClock sets the clock driving keepalive pings
func WithClock(clock quartz.Clock) ConnOption {
	return func(c *Conn) {
		c.clock = clock
	}
}

// WithPongWait sets how long the peer may stay silent. Pings are sent at
// nine tenths of this interval.
func WithPongWait(d time.Duration) ConnOption {
	return func(c *Conn) {
		if d > 0 {
			c.pongWait = d
		}
	}
}

// NewConn wraps an established websocket
func NewConn(id string, ws *websocket.Conn, handler Handler, logger *log.Logger, opts ...ConnOption) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Conn{
		id:       id,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		handler:  handler,
		clock:    quartz.NewReal(),
		pongWait: DefaultPongWait,
		logger:   logger.WithPrefix("conn").With("conn", id),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the connection identifier
func (c *Conn) ID() string {
	return c.id
}

// Start begins handling the connection
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has shut down and HandleClose returned
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down after flushing queued messages
func (c *Conn) Close() error {
	c.closeOnce.Do(c.cancel)
	return nil
}

// Send queues msg for delivery. A full queue means the peer is not
// keeping up; the connection is closed rather than blocking the caller.
func (c *Conn) Send(msg protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrSendBufferFull
	}
}

// readPump handles incoming messages
func (c *Conn) readPump() {
	defer func() {
		_ = c.Close()
		c.handler.HandleClose(c)
		close(c.done)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket error", "error", err)
			}
			return
		}

		msg, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.Debug("Invalid frame", "error", err)
			c.handler.HandleInvalid(c, err)
			continue
		}

		c.logger.Debug("Received message", "type", msg.MessageType())
		c.handler.HandleMessage(c, msg)
	}
}

// writePump handles outgoing messages and keepalive pings
func (c *Conn) writePump() {
	ticker := c.clock.NewTicker((c.pongWait*9)/10, "conn", "ping")
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued without blocking
func (c *Conn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}
