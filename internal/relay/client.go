package relay

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/transport"
)

var _ transport.Transport = (*Client)(nil)

// Client is the relay transport used by both members of a relayed session
type Client struct {
	conn     *transport.Conn
	dispatch *transport.Dispatcher
	logger   *log.Logger
}

// ClientOptions tunes the connection to the relay
type ClientOptions struct {
	Clock          quartz.Clock
	ConnectTimeout time.Duration
	PongWait       time.Duration
}

// Dial connects to the relay websocket at url
func Dial(ctx context.Context, url string, logger *log.Logger, opts ClientOptions) (*Client, error) {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}

	ws, err := transport.Dial(ctx, url, opts.Clock, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	logger = logger.WithPrefix("relay-client")
	c := &Client{
		dispatch: transport.NewDispatcher(logger),
		logger:   logger,
	}
	c.conn = transport.NewConn("relay", ws, c, logger,
		transport.WithClock(opts.Clock),
		transport.WithPongWait(opts.PongWait),
	)
	c.conn.Start()

	logger.Info("Connected to relay", "url", url)
	return c, nil
}

func (c *Client) ID() string {
	return c.dispatch.ID()
}

func (c *Client) CreateLobby(ctx context.Context, name string) (transport.LobbyCreated, error) {
	info, err := c.dispatch.Await(ctx, func() error {
		return c.conn.Send(protocol.NewCreateLobby(name))
	})
	if err != nil {
		return transport.LobbyCreated{}, err
	}
	return transport.LobbyCreated{Code: info.Code, Members: info.Members}, nil
}

func (c *Client) JoinLobby(ctx context.Context, code, name string) (transport.LobbyJoined, error) {
	info, err := c.dispatch.Await(ctx, func() error {
		return c.conn.Send(protocol.NewJoinLobby(code, name))
	})
	if err != nil {
		return transport.LobbyJoined{}, err
	}
	return transport.LobbyJoined{Code: info.Code, Members: info.Members}, nil
}

func (c *Client) LeaveLobby() error {
	return c.conn.Send(protocol.NewLeaveLobby())
}

func (c *Client) SendChat(text string) error {
	return c.conn.Send(protocol.NewChat("", text, 0))
}

func (c *Client) SetReady(ready bool) error {
	return c.conn.Send(protocol.NewSetReady(ready))
}

func (c *Client) StartRound() error {
	return c.conn.Send(protocol.NewStartRound())
}

func (c *Client) SendSnapshot(s protocol.Snapshot) error {
	return c.conn.Send(protocol.NewGameState(s))
}

func (c *Client) SendIntent(i protocol.Intent) error {
	return c.conn.Send(protocol.NewAction(i.Hand, i.Action))
}

func (c *Client) Events() <-chan transport.Event {
	return c.dispatch.Events()
}

// Close disconnects from the relay and waits for the connection to wind down
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.conn.Done()
	return err
}

func (c *Client) HandleMessage(_ *transport.Conn, msg protocol.Message) {
	c.dispatch.Deliver(msg)
}

func (c *Client) HandleInvalid(_ *transport.Conn, err error) {
	c.logger.Warn("Invalid message from relay", "error", err)
	c.dispatch.Emit(transport.Error{Err: protocol.AsError(err)})
}

func (c *Client) HandleClose(_ *transport.Conn) {
	c.logger.Info("Disconnected from relay")
	c.dispatch.Close(transport.ErrDisconnected)
}
