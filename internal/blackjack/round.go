package blackjack

import (
	"errors"

	"github.com/lox/twentyone/internal/deck"
)

// DealerStandScore is the score at which an automatic dealer stops drawing
const DealerStandScore = 16

// ErrRoundStarted is returned when Deal is called on a round that has
// already left the INITIAL state.
var ErrRoundStarted = errors.New("round already dealt")

// DealerMode selects who drives the dealer hand
type DealerMode uint8

const (
	// DealerManual leaves the dealer hand to a human who hits or stands.
	DealerManual DealerMode = iota
	// DealerAuto draws for the dealer until it reaches DealerStandScore.
	DealerAuto
)

// Round is the authoritative state of a single round
type Round struct {
	cards   deck.Provider
	mode    DealerMode
	state   RoundState
	player  []deck.Card
	dealer  []deck.Card
	outcome *Outcome
}

// NewRound creates a round in the INITIAL state drawing from cards
func NewRound(cards deck.Provider, mode DealerMode) *Round {
	return &Round{
		cards: cards,
		mode:  mode,
		state: Initial,
	}
}

// Deal runs the four-card opening sequence (player, dealer, player,
// dealer). A natural 21 in either hand ends the round immediately.
func (r *Round) Deal() error {
	if r.state != Initial {
		return ErrRoundStarted
	}

	r.state = Dealing
	for range 2 {
		r.player = append(r.player, r.cards.Draw())
		r.dealer = append(r.dealer, r.cards.Draw())
	}

	if Score(r.player) == BustLimit || Score(r.dealer) == BustLimit {
		r.finish()
		return nil
	}

	r.state = PlayerTurn
	return nil
}

// Accepts reports whether an intent from role would be accepted now
func (r *Round) Accepts(role GameRole) bool {
	if r.state == GameOver {
		return false
	}
	owner := r.state.Owner()
	if owner == NoRole || owner != role {
		return false
	}
	// An automatic dealer is never waiting for input.
	return !(owner == Dealer && r.mode == DealerAuto)
}

// Apply performs action on behalf of role. It returns false, leaving the
// round untouched, when role does not own the current turn.
func (r *Round) Apply(role GameRole, action Action) bool {
	if !r.Accepts(role) {
		return false
	}

	switch r.state {
	case PlayerTurn:
		switch action {
		case Hit:
			r.player = append(r.player, r.cards.Draw())
			if IsBust(r.player) {
				r.finish()
			}
		case Stand:
			r.state = DealerTurn
			if r.mode == DealerAuto {
				r.playDealer()
			}
		default:
			return false
		}

	case DealerTurn:
		switch action {
		case Hit:
			r.dealer = append(r.dealer, r.cards.Draw())
			if IsBust(r.dealer) {
				r.finish()
			}
		case Stand:
			r.finish()
		default:
			return false
		}

	default:
		return false
	}

	return true
}

// playDealer draws for an unmanned dealer until it reaches the stand score
func (r *Round) playDealer() {
	for Score(r.dealer) < DealerStandScore {
		r.dealer = append(r.dealer, r.cards.Draw())
	}
	r.finish()
}

func (r *Round) finish() {
	r.state = GameOver
	if r.outcome == nil {
		o := Determine(Score(r.player), Score(r.dealer))
		r.outcome = &o
	}
}

// State returns the current phase
func (r *Round) State() RoundState {
	return r.state
}

// Mode returns how the dealer hand is driven
func (r *Round) Mode() DealerMode {
	return r.mode
}

// Turn returns the role owning the current turn, or NoRole
func (r *Round) Turn() GameRole {
	return r.state.Owner()
}

// PlayerHand returns a copy of the player's cards
func (r *Round) PlayerHand() []deck.Card {
	return append([]deck.Card(nil), r.player...)
}

// DealerHand returns a copy of the dealer's cards
func (r *Round) DealerHand() []deck.Card {
	return append([]deck.Card(nil), r.dealer...)
}

// PlayerScore returns the player's current score
func (r *Round) PlayerScore() int {
	return Score(r.player)
}

// DealerScore returns the dealer's current score
func (r *Round) DealerScore() int {
	return Score(r.dealer)
}

// Remaining returns the undealt card count of the underlying provider
func (r *Round) Remaining() int {
	return r.cards.Remaining()
}

// Outcome returns the result once the round is over
func (r *Round) Outcome() (Outcome, bool) {
	if r.outcome == nil {
		return Outcome{}, false
	}
	return *r.outcome, true
}
