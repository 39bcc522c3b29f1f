// Package peer implements the session transport without a shared relay:
// the host process runs the lobby registry itself and accepts a single
// direct connection from its guest.
package peer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lox/twentyone/internal/lobby"
	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/relay"
	"github.com/lox/twentyone/internal/transport"
)

const shutdownTimeout = 2 * time.Second

var (
	ErrNoLobby        = protocol.NewError(protocol.KindNotInLobby, "no lobby is open")
	ErrHostCannotJoin = protocol.NewError(protocol.KindForbidden, "a peer host cannot join another lobby")
)

var _ transport.Transport = (*Host)(nil)

// HostOptions tunes a peer host
type HostOptions struct {
	Clock    quartz.Clock
	PongWait time.Duration
	Registry []lobby.Option
}

// Host is the peer transport of the member who creates the lobby
type Host struct {
	id       string
	router   *relay.Router
	dispatch *transport.Dispatcher
	upgrader websocket.Upgrader
	clock    quartz.Clock
	pongWait time.Duration
	logger   *log.Logger

	listener net.Listener
	server   *http.Server
	served   chan struct{}

	mu       sync.Mutex
	code     string
	guest    *transport.Conn
	reserved bool
	closed   bool
}

// Listen starts a peer host accepting guests on addr
func Listen(addr string, logger *log.Logger, opts HostOptions) (*Host, error) {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	logger = logger.WithPrefix("peer-host")
	h := &Host{
		id:       uuid.NewString(),
		dispatch: transport.NewDispatcher(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clock:    opts.Clock,
		pongWait: opts.PongWait,
		logger:   logger,
		listener: ln,
		served:   make(chan struct{}),
	}
	h.dispatch.SetID(h.id)

	registry := lobby.NewRegistry(logger, opts.Registry...)
	h.router = relay.NewRouter(registry, h, opts.Clock, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /peer/{code}", h.handlePeer)
	h.server = &http.Server{Handler: mux}

	go func() {
		defer close(h.served)
		if err := h.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Peer listener failed", "error", err)
		}
	}()

	h.logger.Info("Listening for guest", "addr", ln.Addr().String())
	return h, nil
}

// Addr returns the address guests should dial
func (h *Host) Addr() net.Addr {
	return h.listener.Addr()
}

// Code returns the open lobby code, or ""
func (h *Host) Code() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code
}

func (h *Host) ID() string {
	return h.id
}

func (h *Host) CreateLobby(ctx context.Context, name string) (transport.LobbyCreated, error) {
	info, err := h.dispatch.Await(ctx, func() error {
		h.closeGuest("host closed the lobby")
		h.router.Handle(h.id, protocol.NewCreateLobby(name))
		return nil
	})
	if err != nil {
		return transport.LobbyCreated{}, err
	}

	h.mu.Lock()
	h.code = info.Code
	h.mu.Unlock()

	h.logger.Info("Lobby open", "code", info.Code)
	return transport.LobbyCreated{Code: info.Code, Members: info.Members}, nil
}

func (h *Host) JoinLobby(context.Context, string, string) (transport.LobbyJoined, error) {
	return transport.LobbyJoined{}, ErrHostCannotJoin
}

// LeaveLobby closes the lobby. The guest is told before its channel closes.
func (h *Host) LeaveLobby() error {
	h.mu.Lock()
	open := h.code != ""
	h.code = ""
	h.mu.Unlock()
	if !open {
		return ErrNoLobby
	}

	h.closeGuest("host closed the lobby")
	h.router.Handle(h.id, protocol.NewLeaveLobby())
	return nil
}

func (h *Host) SendChat(text string) error {
	h.router.Handle(h.id, protocol.NewChat("", text, 0))
	return nil
}

func (h *Host) SetReady(ready bool) error {
	h.router.Handle(h.id, protocol.NewSetReady(ready))
	return nil
}

func (h *Host) StartRound() error {
	h.router.Handle(h.id, protocol.NewStartRound())
	return nil
}

func (h *Host) SendSnapshot(s protocol.Snapshot) error {
	h.router.Handle(h.id, protocol.NewGameState(s))
	return nil
}

func (h *Host) SendIntent(protocol.Intent) error {
	return relay.ErrGuestOnly
}

func (h *Host) Events() <-chan transport.Event {
	return h.dispatch.Events()
}

// Close shuts the lobby and the listener down
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	_ = h.LeaveLobby()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.server.Shutdown(ctx)
	<-h.served

	h.dispatch.Close(nil)
	return err
}

// Send implements relay.Outbox. Messages for the host itself become
// local events.
func (h *Host) Send(memberID string, msg protocol.Message) error {
	if memberID == h.id {
		h.dispatch.Deliver(msg)
		return nil
	}

	h.mu.Lock()
	guest := h.guest
	h.mu.Unlock()
	if guest == nil || guest.ID() != memberID {
		return transport.ErrClosed
	}
	return guest.Send(msg)
}

func (h *Host) HandleMessage(c *transport.Conn, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Join:
		code := h.Code()
		if code == "" {
			_ = c.Send(ErrNoLobby.Wire())
			return
		}
		h.router.Handle(c.ID(), protocol.NewJoinLobby(code, m.Name))
	case *protocol.CreateLobby, *protocol.JoinLobby:
		_ = c.Send(relay.ErrUnexpected.Wire())
	default:
		h.router.Handle(c.ID(), msg)
	}
}

func (h *Host) HandleInvalid(c *transport.Conn, err error) {
	_ = c.Send(protocol.AsError(err).Wire())
}

// HandleClose treats a lost guest exactly like a registry leave
func (h *Host) HandleClose(c *transport.Conn) {
	h.mu.Lock()
	if h.guest == c {
		h.guest = nil
		h.reserved = false
	}
	h.mu.Unlock()

	h.router.Disconnect(c.ID())
	h.logger.Info("Guest disconnected", "conn", c.ID())
}

func (h *Host) handlePeer(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	switch {
	case h.code == "" || r.PathValue("code") != h.code:
		h.mu.Unlock()
		http.Error(w, "lobby not found", http.StatusNotFound)
		return
	case h.reserved:
		h.mu.Unlock()
		http.Error(w, "lobby is full", http.StatusConflict)
		return
	}
	h.reserved = true
	h.mu.Unlock()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade guest connection", "error", err)
		h.mu.Lock()
		h.reserved = false
		h.mu.Unlock()
		return
	}

	id := uuid.NewString()
	conn := transport.NewConn(id, ws, h, h.logger,
		transport.WithClock(h.clock),
		transport.WithPongWait(h.pongWait),
	)

	h.mu.Lock()
	h.guest = conn
	h.mu.Unlock()

	h.logger.Info("Guest connected", "conn", id, "remote", r.RemoteAddr)
	_ = conn.Send(protocol.NewWelcome(id))
	conn.Start()
}

// closeGuest tells the connected guest why it is being dropped
func (h *Host) closeGuest(reason string) {
	h.mu.Lock()
	guest := h.guest
	h.mu.Unlock()
	if guest == nil {
		return
	}

	_ = guest.Send(protocol.NewErrorMessage(protocol.KindDisconnected, reason))
	_ = guest.Close()
	<-guest.Done()
}
