package lobby

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/randutil"
)

const (
	// CodeLength is the number of digits in a lobby code
	CodeLength = 6

	// DefaultMaxMembers is the capacity of a session
	DefaultMaxMembers = 2

	codeSpace = 1_000_000
)

var (
	ErrNotFound       = protocol.NewError(protocol.KindNotFound, "lobby not found")
	ErrFull           = protocol.NewError(protocol.KindFull, "lobby is full")
	ErrNotInLobby     = protocol.NewError(protocol.KindNotInLobby, "not in a lobby")
	ErrAlreadyInLobby = protocol.NewError(protocol.KindForbidden, "already in a lobby")
	ErrCodeSpace      = protocol.NewError(protocol.KindInternal, "lobby code space exhausted")
)

// Departure describes the effect of a member leaving
type Departure struct {
	Member Member

	// Session is the state after the departure; empty when Destroyed
	Session Session

	// Destroyed is set when the last member left
	Destroyed bool

	// Promoted is the member that became host, if any
	Promoted *Member
}

// Registry owns every live session and the member → session index.
// All mutations happen under a single mutex.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*session
	byMember   map[string]string
	maxMembers int
	seq        uint64
	rng        *rand.Rand
	logger     *log.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithMaxMembers sets session capacity. Values outside 1..2 are ignored.
func WithMaxMembers(n int) Option {
	return func(r *Registry) {
		if n >= 1 && n <= DefaultMaxMembers {
			r.maxMembers = n
		}
	}
}

// WithRand sets the source used to generate lobby codes
func WithRand(rng *rand.Rand) Option {
	return func(r *Registry) {
		r.rng = rng
	}
}

// NewRegistry creates an empty registry
func NewRegistry(logger *log.Logger, opts ...Option) *Registry {
	r := &Registry{
		sessions:   make(map[string]*session),
		byMember:   make(map[string]string),
		maxMembers: DefaultMaxMembers,
		logger:     logger.WithPrefix("lobby"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = randutil.Random()
	}
	return r
}

// MaxMembers returns the configured session capacity
func (r *Registry) MaxMembers() int {
	return r.maxMembers
}

// Create opens a new session with memberID as its host
func (r *Registry) Create(memberID, name string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byMember[memberID]; ok {
		return Session{}, ErrAlreadyInLobby
	}

	code, err := r.generateCode()
	if err != nil {
		return Session{}, err
	}

	r.seq++
	s := &session{
		code:   code,
		status: Waiting,
		members: []*Member{{
			ID:          memberID,
			Name:        name,
			NetworkRole: protocol.Host,
			Ready:       true,
			joined:      r.seq,
		}},
	}
	r.sessions[code] = s
	r.byMember[memberID] = code

	r.logger.Info("Lobby created", "code", code, "member", memberID, "name", name)
	return s.snapshot(), nil
}

// Join adds memberID to the session with the given code as guest
func (r *Registry) Join(code, memberID, name string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byMember[memberID]; ok {
		return Session{}, ErrAlreadyInLobby
	}

	s, ok := r.sessions[code]
	if !ok {
		return Session{}, fmt.Errorf("join %s: %w", code, ErrNotFound)
	}
	if len(s.members) >= r.maxMembers {
		return Session{}, fmt.Errorf("join %s: %w", code, ErrFull)
	}

	r.seq++
	s.members = append(s.members, &Member{
		ID:          memberID,
		Name:        name,
		NetworkRole: protocol.Guest,
		joined:      r.seq,
	})
	r.byMember[memberID] = code

	r.logger.Info("Member joined", "code", code, "member", memberID, "name", name)
	return s.snapshot(), nil
}

// Leave removes memberID from its session, destroying the session when it
// empties and promoting a new host when the old one left.
func (r *Registry) Leave(memberID string) (Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.byMember[memberID]
	if !ok {
		return Departure{}, ErrNotInLobby
	}
	delete(r.byMember, memberID)

	s := r.sessions[code]
	i, m := s.find(memberID)
	dep := Departure{Member: *m}
	s.members = append(s.members[:i], s.members[i+1:]...)

	if len(s.members) == 0 {
		delete(r.sessions, code)
		dep.Destroyed = true
		r.logger.Info("Lobby closed", "code", code)
		return dep, nil
	}

	// A lone survivor cannot continue a round
	s.status = Waiting
	s.rounds = 0
	if promoted, ok := s.promote(); ok {
		p := *promoted
		dep.Promoted = &p
		r.logger.Info("Host promoted", "code", code, "member", p.ID)
	}
	dep.Session = s.snapshot()

	r.logger.Info("Member left", "code", code, "member", memberID, "remaining", len(s.members))
	return dep, nil
}

// SetReady sets a member's readiness flag
func (r *Registry) SetReady(memberID string, ready bool) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.sessionOf(memberID)
	if err != nil {
		return Session{}, err
	}
	_, m := s.find(memberID)
	m.Ready = ready
	return s.snapshot(), nil
}

// StartRound marks a session active, counts the round and clears every
// readiness flag
func (r *Registry) StartRound(code string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok {
		return Session{}, ErrNotFound
	}
	s.status = Active
	s.rounds++
	for _, m := range s.members {
		m.Ready = false
	}
	return s.snapshot(), nil
}

// Lookup returns the session with the given code
func (r *Registry) Lookup(code string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// SessionOf returns the session memberID belongs to
func (r *Registry) SessionOf(memberID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.sessionOf(memberID)
	if err != nil {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Sessions returns the codes of all live sessions
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	codes := make([]string, 0, len(r.sessions))
	for code := range r.sessions {
		codes = append(codes, code)
	}
	return codes
}

func (r *Registry) sessionOf(memberID string) (*session, error) {
	code, ok := r.byMember[memberID]
	if !ok {
		return nil, ErrNotInLobby
	}
	return r.sessions[code], nil
}

// generateCode draws random 6-digit codes until one is free. Caller holds mu.
func (r *Registry) generateCode() (string, error) {
	if len(r.sessions) >= codeSpace {
		return "", ErrCodeSpace
	}
	for {
		code := fmt.Sprintf("%0*d", CodeLength, r.rng.IntN(codeSpace))
		if _, taken := r.sessions[code]; !taken {
			return code, nil
		}
	}
}
