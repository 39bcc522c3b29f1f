package replication

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/deck"
	"github.com/lox/twentyone/internal/match"
	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/transport"
)

var _ Engine = (*Host)(nil)

// HostOptions configures the authoritative engine
type HostOptions struct {
	// Mode selects who plays the dealer hand
	Mode blackjack.DealerMode

	// StartingLives per side; non-positive selects match.DefaultLives
	StartingLives int

	// Solo runs without a guest: roles never rotate and no readiness
	// handshake is needed
	Solo bool
}

type commandKind uint8

const (
	cmdHit commandKind = iota + 1
	cmdStand
	cmdStart
)

type command struct {
	kind  commandKind
	reply chan error
}

// Host is the authoritative replication engine. Every mutation happens on
// the Run goroutine; local input reaches it through a command queue.
type Host struct {
	t      transport.Transport
	cards  deck.Provider
	ctrl   *match.Controller
	opts   HostOptions
	logger *log.Logger

	cmds chan command
	out  chan transport.Event
	done chan struct{}

	// owned by the Run goroutine
	round   *blackjack.Round
	members []protocol.Member
}

// NewHost creates a host engine drawing from cards
func NewHost(t transport.Transport, cards deck.Provider, logger *log.Logger, opts HostOptions) *Host {
	ctrl := match.NewController(logger, opts.StartingLives)
	if opts.Solo {
		ctrl.FixRoles()
	}

	return &Host{
		t:      t,
		cards:  cards,
		ctrl:   ctrl,
		opts:   opts,
		logger: logger.WithPrefix("replication"),
		cmds:   make(chan command),
		out:    make(chan transport.Event, eventBufferSize),
		done:   make(chan struct{}),
	}
}

func (h *Host) Role() protocol.NetworkRole {
	return protocol.Host
}

func (h *Host) Events() <-chan transport.Event {
	return h.out
}

// Run is the single event loop for the authoritative state
func (h *Host) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		close(h.out)
	}()

	events := h.t.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.handleEvent(ev)
		case cmd := <-h.cmds:
			cmd.reply <- h.handleCommand(cmd.kind)
		}
	}
}

func (h *Host) Hit() error        { return h.do(cmdHit) }
func (h *Host) Stand() error      { return h.do(cmdStand) }
func (h *Host) StartRound() error { return h.do(cmdStart) }

func (h *Host) SetReady(ready bool) error {
	return h.t.SetReady(ready)
}

func (h *Host) Chat(text string) error {
	return h.t.SendChat(text)
}

func (h *Host) Leave() error {
	return h.t.LeaveLobby()
}

func (h *Host) do(kind commandKind) error {
	cmd := command{kind: kind, reply: make(chan error, 1)}
	select {
	case h.cmds <- cmd:
	case <-h.done:
		return ErrStopped
	}
	return <-cmd.reply
}

func (h *Host) handleCommand(kind commandKind) error {
	switch kind {
	case cmdStart:
		if err := h.ctrl.CanBegin(h.guestReady()); err != nil {
			return err
		}
		return h.t.StartRound()
	case cmdHit, cmdStand:
		action := blackjack.Hit
		if kind == cmdStand {
			action = blackjack.Stand
		}
		if h.round == nil {
			return ErrNoRound
		}
		intent := protocol.Intent{Hand: h.ctrl.RoleOf(protocol.Host), Action: action, Issuer: protocol.Host}
		if !h.applyIntent(intent) {
			return ErrNotYourTurn
		}
		return nil
	default:
		return nil
	}
}

func (h *Host) handleEvent(ev transport.Event) {
	switch e := ev.(type) {
	case transport.LobbyCreated:
		h.members = e.Members
	case transport.LobbyJoined:
		h.members = e.Members
	case transport.LobbyUpdate:
		h.members = e.Members
		if !h.opts.Solo && !h.hasGuest() && h.ctrl.Round() > 0 {
			h.logger.Info("Guest left, match abandoned", "round", h.ctrl.Round())
			h.round = nil
			h.ctrl.Reset()
		}
	case transport.RoundStart:
		h.emit(ev)
		h.beginRound()
		return
	case transport.PlayerAction:
		h.applyIntent(e.Intent)
		return
	case transport.DealerAction:
		h.applyIntent(e.Intent)
		return
	case transport.GameState:
		// Only the host publishes state
		return
	}
	h.emit(ev)
}

// beginRound runs once the registry owner has confirmed the start
func (h *Host) beginRound() {
	if err := h.ctrl.BeginRound(true); err != nil {
		h.logger.Warn("Ignoring round start", "error", err)
		return
	}

	if shoe, ok := h.cards.(interface{ Shuffle() }); ok && h.cards.Remaining() < deck.ReshuffleThreshold {
		h.logger.Debug("Reshuffling shoe", "remaining", h.cards.Remaining())
		shoe.Shuffle()
	}

	mode := h.opts.Mode
	if h.opts.Solo {
		mode = blackjack.DealerAuto
	}
	h.round = blackjack.NewRound(h.cards, mode)
	if err := h.round.Deal(); err != nil {
		h.logger.Error("Failed to deal", "error", err)
		return
	}
	h.settle()

	h.logger.Info("Round dealt", "round", h.ctrl.Round(), "host_role", h.ctrl.HostRole(), "state", h.round.State())
	h.publish()
}

// applyIntent validates and applies an intent. Rejected intents change
// nothing and are not reported to the sender.
func (h *Host) applyIntent(i protocol.Intent) bool {
	if h.round == nil {
		h.logger.Debug("Dropping intent outside a round", "issuer", i.Issuer)
		return false
	}

	role := h.ctrl.RoleOf(i.Issuer)
	if role == blackjack.NoRole || role != i.Hand {
		h.logger.Debug("Dropping intent for a hand the issuer does not hold", "issuer", i.Issuer, "hand", i.Hand)
		return false
	}
	if !h.round.Apply(role, i.Action) {
		h.logger.Debug("Dropping out-of-turn intent", "issuer", i.Issuer, "state", h.round.State())
		return false
	}

	h.settle()
	h.publish()
	return true
}

// settle charges the round outcome to the match once the round is over
func (h *Host) settle() {
	if outcome, over := h.round.Outcome(); over {
		h.ctrl.ApplyOutcome(outcome)
	}
}

func (h *Host) snapshot() protocol.Snapshot {
	s := protocol.Snapshot{
		Round:         h.ctrl.Round(),
		State:         h.round.State(),
		Turn:          h.round.Turn(),
		HostRole:      h.ctrl.HostRole(),
		PlayerHand:    h.round.PlayerHand(),
		DealerHand:    h.round.DealerHand(),
		PlayerScore:   h.round.PlayerScore(),
		DealerScore:   h.round.DealerScore(),
		DeckRemaining: h.round.Remaining(),
		Lives:         h.ctrl.Lives(),
	}
	if o, ok := h.round.Outcome(); ok {
		s.Outcome = &o
	}
	if winner, ok := h.ctrl.Winner(); ok {
		s.MatchWinner = winner
	}
	return s
}

func (h *Host) publish() {
	s := h.snapshot()
	if err := h.t.SendSnapshot(s); err != nil {
		h.logger.Warn("Failed to send snapshot", "error", err)
	}
	h.emit(transport.GameState{Snapshot: s})
}

func (h *Host) emit(ev transport.Event) {
	select {
	case h.out <- ev:
	default:
		h.logger.Warn("Event buffer full, dropping event", "kind", ev.Kind())
	}
}

func (h *Host) hasGuest() bool {
	for _, m := range h.members {
		if m.NetworkRole == protocol.Guest {
			return true
		}
	}
	return false
}

func (h *Host) guestReady() bool {
	if h.opts.Solo {
		return true
	}
	for _, m := range h.members {
		if m.NetworkRole == protocol.Guest {
			return m.Ready
		}
	}
	return false
}
