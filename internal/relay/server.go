package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lox/twentyone/internal/lobby"
	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/transport"
)

const shutdownTimeout = 5 * time.Second

var errUnknownMember = errors.New("member has no connection")

// Server is the shared relay process. Every member holds a websocket to
// it; it owns the lobby registry and forwards traffic between members.
type Server struct {
	addr      string
	upgrader  websocket.Upgrader
	router    *Router
	conns     map[string]*transport.Conn
	mu        sync.RWMutex
	clock     quartz.Clock
	pongWait  time.Duration
	staticDir string
	logger    *log.Logger

	ready    chan struct{}
	listener net.Listener
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithStaticDir serves files from dir for non-protocol requests
func WithStaticDir(dir string) ServerOption {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithServerClock sets the clock used for keepalive and chat timestamps
func WithServerClock(clock quartz.Clock) ServerOption {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithKeepalive sets how long a silent connection survives
func WithKeepalive(pongWait time.Duration) ServerOption {
	return func(s *Server) {
		s.pongWait = pongWait
	}
}

// NewServer creates a relay server over registry
func NewServer(addr string, registry *lobby.Registry, logger *log.Logger, opts ...ServerOption) *Server {
	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			// Browsers served from elsewhere may connect
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns:    make(map[string]*transport.Conn),
		clock:    quartz.NewReal(),
		pongWait: transport.DefaultPongWait,
		logger:   logger.WithPrefix("relay"),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = NewRouter(registry, s, s.clock, logger)
	return s
}

// Handler returns the HTTP handler serving /ws, /health and static files
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", staticHandler(s.staticDir))
	return mux
}

// Run listens on the configured address until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	close(s.ready)

	srv := &http.Server{Handler: s.Handler()}
	s.logger.Info("Starting relay server", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down relay server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.closeAll()
		return err
	})
	return g.Wait()
}

// Addr returns the listening address once Run has bound it
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.listener.Addr()
}

// Send delivers msg to the connection of memberID
func (s *Server) Send(memberID string, msg protocol.Message) error {
	s.mu.RLock()
	conn, ok := s.conns[memberID]
	s.mu.RUnlock()
	if !ok {
		return errUnknownMember
	}
	return conn.Send(msg)
}

// ConnectionCount returns the number of open connections
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Registry returns the lobby registry owned by this server
func (s *Server) Registry() *lobby.Registry {
	return s.router.Registry()
}

func (s *Server) HandleMessage(c *transport.Conn, msg protocol.Message) {
	s.router.Handle(c.ID(), msg)
}

func (s *Server) HandleInvalid(c *transport.Conn, err error) {
	_ = c.Send(protocol.AsError(err).Wire())
}

func (s *Server) HandleClose(c *transport.Conn) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	total := len(s.conns)
	s.mu.Unlock()

	s.router.Disconnect(c.ID())
	s.logger.Info("Client disconnected", "conn", c.ID(), "total", total)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	id := uuid.NewString()
	conn := transport.NewConn(id, ws, s, s.logger,
		transport.WithClock(s.clock),
		transport.WithPongWait(s.pongWait),
	)

	s.mu.Lock()
	s.conns[id] = conn
	total := len(s.conns)
	s.mu.Unlock()

	s.logger.Info("Client connected", "conn", id, "total", total)
	_ = conn.Send(protocol.NewWelcome(id))
	conn.Start()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) closeAll() {
	s.mu.RLock()
	conns := make([]*transport.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
