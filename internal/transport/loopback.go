package transport

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/twentyone/internal/protocol"
)

// LoopbackCode is the lobby code reported by a Loopback transport
const LoopbackCode = "000000"

var ErrSoloOnly = protocol.NewError(protocol.KindForbidden, "not available in a solo session")

var _ Transport = (*Loopback)(nil)

// Loopback is a single-member transport for offline play. Requests that
// would reach the registry owner are answered locally.
type Loopback struct {
	id       string
	name     string
	clock    quartz.Clock
	dispatch *Dispatcher
}

// NewLoopback creates an offline transport
func NewLoopback(clock quartz.Clock, logger *log.Logger) *Loopback {
	l := &Loopback{
		id:       "local",
		clock:    clock,
		dispatch: NewDispatcher(logger.WithPrefix("loopback")),
	}
	l.dispatch.SetID(l.id)
	return l
}

func (l *Loopback) ID() string {
	return l.id
}

func (l *Loopback) CreateLobby(_ context.Context, name string) (LobbyCreated, error) {
	l.name = protocol.SanitizeName(name, "Player")
	ev := LobbyCreated{
		Code: LoopbackCode,
		Members: []protocol.Member{{
			ID:          l.id,
			Name:        l.name,
			NetworkRole: protocol.Host,
			Ready:       true,
		}},
	}
	l.dispatch.Emit(ev)
	return ev, nil
}

func (l *Loopback) JoinLobby(context.Context, string, string) (LobbyJoined, error) {
	return LobbyJoined{}, ErrSoloOnly
}

func (l *Loopback) LeaveLobby() error {
	return nil
}

func (l *Loopback) SendChat(text string) error {
	if text, ok := protocol.SanitizeChat(text); ok {
		l.dispatch.Emit(ChatMessage{From: l.name, Text: text, Time: l.clock.Now()})
	}
	return nil
}

func (l *Loopback) SetReady(bool) error {
	return nil
}

func (l *Loopback) StartRound() error {
	l.dispatch.Emit(RoundStart{})
	return nil
}

func (l *Loopback) SendSnapshot(protocol.Snapshot) error {
	return nil
}

func (l *Loopback) SendIntent(protocol.Intent) error {
	return ErrSoloOnly
}

func (l *Loopback) Events() <-chan Event {
	return l.dispatch.Events()
}

func (l *Loopback) Close() error {
	l.dispatch.Close(nil)
	return nil
}
