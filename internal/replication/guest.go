package replication

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/transport"
)

var _ Engine = (*Guest)(nil)

// Guest mirrors the host's snapshots. It never computes game state; input
// is forwarded to the host as intents for whichever hand the last
// snapshot assigned to the guest.
type Guest struct {
	t      transport.Transport
	logger *log.Logger
	out    chan transport.Event

	mu   sync.Mutex
	last *protocol.Snapshot

	// owned by the Run goroutine
	hostID string
}

// NewGuest creates a mirroring engine over t
func NewGuest(t transport.Transport, logger *log.Logger) *Guest {
	return &Guest{
		t:      t,
		logger: logger.WithPrefix("replication"),
		out:    make(chan transport.Event, eventBufferSize),
	}
}

func (g *Guest) Role() protocol.NetworkRole {
	return protocol.Guest
}

func (g *Guest) Events() <-chan transport.Event {
	return g.out
}

// Run forwards transport events, remembering the latest snapshot
func (g *Guest) Run(ctx context.Context) error {
	defer close(g.out)

	events := g.t.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch e := ev.(type) {
			case transport.LobbyJoined:
				g.track(e.Members)
			case transport.LobbyUpdate:
				if g.promoted(e.Members) {
					return g.hostGone()
				}
				g.track(e.Members)
			case transport.Disconnected:
				if !e.Terminal() && e.MemberID == g.hostID {
					return g.hostGone()
				}
			case transport.GameState:
				snap := e.Snapshot
				g.mu.Lock()
				g.last = &snap
				g.mu.Unlock()
			case transport.PlayerAction, transport.DealerAction:
				// Intents are for the host; a guest has nothing to apply
				continue
			}
			g.emit(ev)
		}
	}
}

func (g *Guest) emit(ev transport.Event) {
	select {
	case g.out <- ev:
	default:
		g.logger.Warn("Event buffer full, dropping event", "kind", ev.Kind())
	}
}

func (g *Guest) track(members []protocol.Member) {
	for _, m := range members {
		if m.NetworkRole == protocol.Host {
			g.hostID = m.ID
			return
		}
	}
}

// promoted reports whether the registry made this member host, which
// only happens once the real host is gone
func (g *Guest) promoted(members []protocol.Member) bool {
	id := g.t.ID()
	for _, m := range members {
		if m.ID == id && m.NetworkRole == protocol.Host {
			return g.hostID != "" && g.hostID != id
		}
	}
	return false
}

// hostGone ends the session: a guest cannot carry a lobby without the
// host's authoritative state
func (g *Guest) hostGone() error {
	g.logger.Info("Host left, ending session", "host", g.hostID)
	if err := g.t.LeaveLobby(); err != nil {
		g.logger.Debug("Leave after host loss failed", "error", err)
	}
	g.mu.Lock()
	g.last = nil
	g.mu.Unlock()
	g.emit(transport.Disconnected{Err: ErrHostLeft})
	return nil
}

// Snapshot returns the most recent state received from the host
func (g *Guest) Snapshot() (protocol.Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return protocol.Snapshot{}, false
	}
	return *g.last, true
}

func (g *Guest) Hit() error   { return g.intent(blackjack.Hit) }
func (g *Guest) Stand() error { return g.intent(blackjack.Stand) }

// StartRound is host only; the registry owner refuses it for a guest
func (g *Guest) StartRound() error {
	return g.t.StartRound()
}

func (g *Guest) SetReady(ready bool) error {
	return g.t.SetReady(ready)
}

func (g *Guest) Chat(text string) error {
	return g.t.SendChat(text)
}

func (g *Guest) Leave() error {
	return g.t.LeaveLobby()
}

func (g *Guest) intent(action blackjack.Action) error {
	snap, ok := g.Snapshot()
	if !ok {
		return ErrNoRound
	}
	return g.t.SendIntent(protocol.Intent{
		Hand:   snap.RoleOf(protocol.Guest),
		Action: action,
		Issuer: protocol.Guest,
	})
}
