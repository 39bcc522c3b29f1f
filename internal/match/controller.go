// Package match tracks lives, role rotation and rematch readiness across
// the rounds of a two-party match.
package match

import (
	"github.com/charmbracelet/log"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/protocol"
)

// DefaultLives is the number of lives each side starts a match with
const DefaultLives = 3

var (
	ErrGuestNotReady   = protocol.NewError(protocol.KindNotReady, "guest is not ready")
	ErrRoundInProgress = protocol.NewError(protocol.KindForbidden, "round in progress")
)

// Controller is owned by the host process. It is not safe for concurrent
// use; the replication engine drives it from a single goroutine.
type Controller struct {
	startingLives  int
	lives          protocol.Lives
	round          int
	hostRole       blackjack.GameRole
	inRound        bool
	outcomeApplied bool
	winner         protocol.NetworkRole
	fixedRoles     bool
	logger         *log.Logger
}

// NewController creates a controller for a fresh match. Non-positive
// startingLives selects DefaultLives.
func NewController(logger *log.Logger, startingLives int) *Controller {
	if startingLives <= 0 {
		startingLives = DefaultLives
	}
	c := &Controller{
		startingLives: startingLives,
		logger:        logger.WithPrefix("match"),
	}
	c.Reset()
	return c
}

// Reset starts a new match: full lives, round numbering restarts
func (c *Controller) Reset() {
	c.lives = protocol.Lives{Host: c.startingLives, Guest: c.startingLives}
	c.round = 0
	c.hostRole = blackjack.NoRole
	c.inRound = false
	c.outcomeApplied = false
	c.winner = protocol.NoNetworkRole
}

// FixRoles stops role rotation: the host plays player every round. Used
// when the dealer hand is automatic.
func (c *Controller) FixRoles() {
	c.fixedRoles = true
}

// CanBegin reports why BeginRound would fail, if it would
func (c *Controller) CanBegin(guestReady bool) error {
	if c.inRound && !c.outcomeApplied {
		return ErrRoundInProgress
	}
	if c.round > 0 && !guestReady {
		return ErrGuestNotReady
	}
	return nil
}

// BeginRound advances to the next round. After the first round the guest
// must be ready; the flag is checked here, at call time. A concluded
// match is reset before the round begins.
func (c *Controller) BeginRound(guestReady bool) error {
	if err := c.CanBegin(guestReady); err != nil {
		return err
	}
	if c.winner != protocol.NoNetworkRole {
		c.logger.Info("Starting new match", "previous_winner", c.winner)
		c.Reset()
	}

	c.round++
	c.hostRole = blackjack.Player
	if c.round%2 == 0 && !c.fixedRoles {
		c.hostRole = blackjack.Dealer
	}
	c.inRound = true
	c.outcomeApplied = false

	c.logger.Debug("Round begins", "round", c.round, "host_role", c.hostRole)
	return nil
}

// ApplyOutcome charges a life to the losing side of the current round.
// Only the first call per round has an effect; it reports whether lives
// were examined.
func (c *Controller) ApplyOutcome(o blackjack.Outcome) bool {
	if !c.inRound || c.outcomeApplied {
		return false
	}
	c.outcomeApplied = true

	if o.IsPush() {
		c.logger.Debug("Round pushed", "round", c.round)
		return true
	}

	loser := c.NetworkRoleOf(o.Loser())
	switch loser {
	case protocol.Host:
		c.lives.Host--
	case protocol.Guest:
		c.lives.Guest--
	default:
		return true
	}

	if c.lives.Of(loser) <= 0 {
		c.winner = loser.Other()
		c.logger.Info("Match over", "winner", c.winner, "round", c.round)
	}
	return true
}

// Round returns the current round number, starting at 1
func (c *Controller) Round() int {
	return c.round
}

// InRound reports whether a round has begun and not yet been settled
func (c *Controller) InRound() bool {
	return c.inRound && !c.outcomeApplied
}

// HostRole returns the GameRole the host plays this round
func (c *Controller) HostRole() blackjack.GameRole {
	return c.hostRole
}

// RoleOf maps a network role to its GameRole for this round
func (c *Controller) RoleOf(role protocol.NetworkRole) blackjack.GameRole {
	switch role {
	case protocol.Host:
		return c.hostRole
	case protocol.Guest:
		return c.hostRole.Other()
	default:
		return blackjack.NoRole
	}
}

// NetworkRoleOf maps a GameRole back to the network role playing it
func (c *Controller) NetworkRoleOf(role blackjack.GameRole) protocol.NetworkRole {
	switch {
	case role == blackjack.NoRole || c.hostRole == blackjack.NoRole:
		return protocol.NoNetworkRole
	case role == c.hostRole:
		return protocol.Host
	default:
		return protocol.Guest
	}
}

// Lives returns the remaining lives of both sides
func (c *Controller) Lives() protocol.Lives {
	return c.lives
}

// Winner returns the match winner once one side has run out of lives
func (c *Controller) Winner() (protocol.NetworkRole, bool) {
	return c.winner, c.winner != protocol.NoNetworkRole
}
