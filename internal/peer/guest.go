package peer

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/relay"
	"github.com/lox/twentyone/internal/transport"
)

var (
	ErrGuestCannotCreate = protocol.NewError(protocol.KindForbidden, "a peer guest cannot create a lobby")
	ErrNotConnected      = protocol.NewError(protocol.KindNotInLobby, "not connected to a host")
	ErrHostLost          = protocol.NewError(protocol.KindDisconnected, "lost connection to host")
	ErrAlreadyJoined     = protocol.NewError(protocol.KindForbidden, "already joined a host")
)

var _ transport.Transport = (*Guest)(nil)

// GuestOptions tunes a peer guest
type GuestOptions struct {
	Clock          quartz.Clock
	ConnectTimeout time.Duration
	PongWait       time.Duration
}

// Guest is the peer transport of the member joining a host directly.
// Losing the host is terminal: the session cannot outlive its relay.
type Guest struct {
	hostURL  string
	dispatch *transport.Dispatcher
	opts     GuestOptions
	logger   *log.Logger

	mu   sync.Mutex
	conn *transport.Conn
}

// NewGuest prepares a guest that will dial hostURL. A bare host:port is
// treated as ws://host:port.
func NewGuest(hostURL string, logger *log.Logger, opts GuestOptions) *Guest {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if !strings.Contains(hostURL, "://") {
		hostURL = "ws://" + hostURL
	}

	logger = logger.WithPrefix("peer-guest")
	return &Guest{
		hostURL:  strings.TrimSuffix(hostURL, "/"),
		dispatch: transport.NewDispatcher(logger),
		opts:     opts,
		logger:   logger,
	}
}

func (g *Guest) ID() string {
	return g.dispatch.ID()
}

func (g *Guest) CreateLobby(context.Context, string) (transport.LobbyCreated, error) {
	return transport.LobbyCreated{}, ErrGuestCannotCreate
}

// JoinLobby opens the direct channel addressed by code and announces the
// guest's name once it is open.
func (g *Guest) JoinLobby(ctx context.Context, code, name string) (transport.LobbyJoined, error) {
	g.mu.Lock()
	connected := g.conn != nil
	g.mu.Unlock()
	if connected {
		return transport.LobbyJoined{}, ErrAlreadyJoined
	}

	target := g.hostURL + "/peer/" + url.PathEscape(code)
	ws, err := transport.Dial(ctx, target, g.opts.Clock, g.opts.ConnectTimeout)
	if err != nil {
		g.logger.Warn("Failed to reach host", "url", target, "error", err)
		return transport.LobbyJoined{}, err
	}

	conn := transport.NewConn("host", ws, g, g.logger,
		transport.WithClock(g.opts.Clock),
		transport.WithPongWait(g.opts.PongWait),
	)
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
	conn.Start()

	info, err := g.dispatch.Await(ctx, func() error {
		return conn.Send(protocol.NewJoin(name))
	})
	if err != nil {
		_ = g.Close()
		return transport.LobbyJoined{}, err
	}

	g.logger.Info("Joined host", "code", info.Code)
	return transport.LobbyJoined{Code: info.Code, Members: info.Members}, nil
}

func (g *Guest) LeaveLobby() error {
	conn, err := g.current()
	if err != nil {
		return err
	}
	_ = conn.Send(protocol.NewLeaveLobby())
	return g.Close()
}

func (g *Guest) SendChat(text string) error {
	return g.send(protocol.NewChat("", text, 0))
}

func (g *Guest) SetReady(ready bool) error {
	return g.send(protocol.NewSetReady(ready))
}

func (g *Guest) StartRound() error {
	return g.send(protocol.NewStartRound())
}

func (g *Guest) SendSnapshot(protocol.Snapshot) error {
	return relay.ErrHostOnly
}

func (g *Guest) SendIntent(i protocol.Intent) error {
	return g.send(protocol.NewAction(i.Hand, i.Action))
}

func (g *Guest) Events() <-chan transport.Event {
	return g.dispatch.Events()
}

// Close drops the channel to the host. The event stream ends with a
// terminal Disconnected event.
func (g *Guest) Close() error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()

	if conn == nil {
		g.dispatch.Close(nil)
		return nil
	}
	err := conn.Close()
	<-conn.Done()
	return err
}

func (g *Guest) HandleMessage(_ *transport.Conn, msg protocol.Message) {
	g.dispatch.Deliver(msg)
}

func (g *Guest) HandleInvalid(_ *transport.Conn, err error) {
	g.logger.Warn("Invalid message from host", "error", err)
	g.dispatch.Emit(transport.Error{Err: protocol.AsError(err)})
}

func (g *Guest) HandleClose(_ *transport.Conn) {
	g.logger.Info("Connection to host closed")
	g.dispatch.Close(ErrHostLost)
}

func (g *Guest) current() (*transport.Conn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil, ErrNotConnected
	}
	return g.conn, nil
}

func (g *Guest) send(msg protocol.Message) error {
	conn, err := g.current()
	if err != nil {
		return err
	}
	return conn.Send(msg)
}
