// Package relay routes lobby protocol messages through a Registry. The
// same Router backs the shared relay server and a peer host's local
// registry.
package relay

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/twentyone/internal/lobby"
	"github.com/lox/twentyone/internal/protocol"
)

var (
	ErrHostOnly   = protocol.NewError(protocol.KindForbidden, "only the host can do that")
	ErrGuestOnly  = protocol.NewError(protocol.KindForbidden, "only the guest can do that")
	ErrNoOpponent = protocol.NewError(protocol.KindNotReady, "waiting for an opponent")
	ErrGuestUnset = protocol.NewError(protocol.KindNotReady, "guest is not ready")
	ErrUnexpected = protocol.NewError(protocol.KindProtocolError, "unexpected message")
	ErrNotInLobby = lobby.ErrNotInLobby
)

// Outbox delivers a message to one member. Implementations must not
// block on a slow receiver.
type Outbox interface {
	Send(memberID string, msg protocol.Message) error
}

// Router applies client requests to a Registry and fans out the results.
// Requests are processed one at a time so every member observes registry
// changes in the order they happened.
type Router struct {
	mu       sync.Mutex
	registry *lobby.Registry
	out      Outbox
	clock    quartz.Clock
	logger   *log.Logger
}

// NewRouter creates a router over registry delivering through out
func NewRouter(registry *lobby.Registry, out Outbox, clock quartz.Clock, logger *log.Logger) *Router {
	return &Router{
		registry: registry,
		out:      out,
		clock:    clock,
		logger:   logger.WithPrefix("router"),
	}
}

// Registry returns the underlying registry
func (r *Router) Registry() *lobby.Registry {
	return r.registry
}

// Handle processes one message sent by memberID
func (r *Router) Handle(memberID string, msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := msg.(type) {
	case *protocol.CreateLobby:
		r.create(memberID, m.Name)
	case *protocol.JoinLobby:
		r.join(memberID, m.Code, m.Name)
	case *protocol.LeaveLobby:
		r.leave(memberID)
	case *protocol.Chat:
		r.chat(memberID, m.Text)
	case *protocol.SetReady:
		r.setReady(memberID, m.Ready)
	case *protocol.StartRound:
		r.startRound(memberID)
	case *protocol.GameState:
		r.forwardState(memberID, m)
	case *protocol.Action:
		r.forwardAction(memberID, m)
	default:
		r.reply(memberID, ErrUnexpected)
	}
}

// Disconnect handles an ungraceful loss of memberID's connection. The
// remaining members are told who dropped before seeing the new roster.
func (r *Router) Disconnect(memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dep, err := r.registry.Leave(memberID)
	if err != nil {
		return
	}
	if dep.Destroyed {
		return
	}
	r.broadcast(dep.Session, protocol.NewDisconnected(memberID))
	r.broadcast(dep.Session, protocol.NewLobbyUpdate(dep.Session.Wire()))
}

func (r *Router) create(memberID, name string) {
	r.leave(memberID)

	s, err := r.registry.Create(memberID, protocol.SanitizeName(name, DefaultName(memberID)))
	if err != nil {
		r.reply(memberID, err)
		return
	}
	r.send(memberID, protocol.NewLobbyCreated(s.Code, s.Wire()))
}

func (r *Router) join(memberID, code, name string) {
	if cur, ok := r.registry.SessionOf(memberID); ok && cur.Code == code {
		r.send(memberID, protocol.NewLobbyJoined(cur.Code, cur.Wire()))
		return
	}

	// Refuse before abandoning the current lobby
	target, ok := r.registry.Lookup(code)
	if !ok {
		r.reply(memberID, lobby.ErrNotFound)
		return
	}
	if len(target.Members) >= r.registry.MaxMembers() {
		r.reply(memberID, lobby.ErrFull)
		return
	}

	r.leave(memberID)

	s, err := r.registry.Join(code, memberID, protocol.SanitizeName(name, DefaultName(memberID)))
	if err != nil {
		r.reply(memberID, err)
		return
	}
	r.send(memberID, protocol.NewLobbyJoined(s.Code, s.Wire()))
	r.broadcast(s, protocol.NewLobbyUpdate(s.Wire()))
}

func (r *Router) leave(memberID string) {
	dep, err := r.registry.Leave(memberID)
	if err != nil || dep.Destroyed {
		return
	}
	r.broadcast(dep.Session, protocol.NewLobbyUpdate(dep.Session.Wire()))
}

func (r *Router) chat(memberID, text string) {
	s, ok := r.registry.SessionOf(memberID)
	if !ok {
		return
	}
	text, ok = protocol.SanitizeChat(text)
	if !ok {
		return
	}
	m, _ := s.Member(memberID)
	r.broadcast(s, protocol.NewChat(m.Name, text, r.clock.Now().UnixMilli()))
}

func (r *Router) setReady(memberID string, ready bool) {
	s, ok := r.registry.SessionOf(memberID)
	if !ok {
		r.reply(memberID, ErrNotInLobby)
		return
	}
	if m, _ := s.Member(memberID); m.NetworkRole != protocol.Guest {
		r.reply(memberID, ErrGuestOnly)
		return
	}

	s, err := r.registry.SetReady(memberID, ready)
	if err != nil {
		r.reply(memberID, err)
		return
	}
	r.broadcast(s, protocol.NewLobbyUpdate(s.Wire()))
}

func (r *Router) startRound(memberID string) {
	s, ok := r.registry.SessionOf(memberID)
	if !ok {
		r.reply(memberID, ErrNotInLobby)
		return
	}
	if m, _ := s.Member(memberID); m.NetworkRole != protocol.Host {
		r.reply(memberID, ErrHostOnly)
		return
	}
	guest, ok := s.Guest()
	if !ok {
		r.reply(memberID, ErrNoOpponent)
		return
	}
	if s.Rounds > 0 && !guest.Ready {
		r.reply(memberID, ErrGuestUnset)
		return
	}

	s, err := r.registry.StartRound(s.Code)
	if err != nil {
		r.reply(memberID, err)
		return
	}
	r.logger.Info("Round started", "code", s.Code, "round", s.Rounds)
	r.broadcast(s, protocol.NewRoundStart())
	r.broadcast(s, protocol.NewLobbyUpdate(s.Wire()))
}

func (r *Router) forwardState(memberID string, m *protocol.GameState) {
	s, ok := r.registry.SessionOf(memberID)
	if !ok {
		return
	}
	if sender, _ := s.Member(memberID); sender.NetworkRole != protocol.Host {
		r.reply(memberID, ErrHostOnly)
		return
	}
	r.broadcastExcept(s, memberID, m)
}

func (r *Router) forwardAction(memberID string, m *protocol.Action) {
	s, ok := r.registry.SessionOf(memberID)
	if !ok {
		r.logger.Debug("Dropping intent from member outside a lobby", "member", memberID)
		return
	}
	if sender, _ := s.Member(memberID); sender.NetworkRole != protocol.Guest {
		r.reply(memberID, ErrGuestOnly)
		return
	}
	host, ok := s.Host()
	if !ok {
		return
	}

	fwd := *m
	fwd.From = memberID
	r.send(host.ID, &fwd)
}

func (r *Router) broadcast(s lobby.Session, msg protocol.Message) {
	r.broadcastExcept(s, "", msg)
}

func (r *Router) broadcastExcept(s lobby.Session, skip string, msg protocol.Message) {
	for _, id := range s.IDs() {
		if id != skip {
			r.send(id, msg)
		}
	}
}

// reply reports err to the initiating member only
func (r *Router) reply(memberID string, err error) {
	r.logger.Debug("Request refused", "member", memberID, "error", err)
	r.send(memberID, protocol.AsError(err).Wire())
}

func (r *Router) send(memberID string, msg protocol.Message) {
	if err := r.out.Send(memberID, msg); err != nil {
		r.logger.Debug("Failed to deliver message", "member", memberID, "type", msg.MessageType(), "error", err)
	}
}

// DefaultName is the display name used when a member supplies none
func DefaultName(memberID string) string {
	short := memberID
	if len(short) > 4 {
		short = short[:4]
	}
	return "Player-" + short
}
