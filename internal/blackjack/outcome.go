package blackjack

import "fmt"

// Winner names the winning side of a finished round
type Winner uint8

const (
	WinnerPlayer Winner = iota + 1
	WinnerDealer
	WinnerPush
)

func (w Winner) String() string {
	switch w {
	case WinnerPlayer:
		return "player"
	case WinnerDealer:
		return "dealer"
	case WinnerPush:
		return "push"
	default:
		return ""
	}
}

func (w Winner) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Winner) UnmarshalText(b []byte) error {
	switch string(b) {
	case "player":
		*w = WinnerPlayer
	case "dealer":
		*w = WinnerDealer
	case "push":
		*w = WinnerPush
	default:
		return fmt.Errorf("unknown winner %q", b)
	}
	return nil
}

// Role returns the winning GameRole, or NoRole for a push
func (w Winner) Role() GameRole {
	switch w {
	case WinnerPlayer:
		return Player
	case WinnerDealer:
		return Dealer
	default:
		return NoRole
	}
}

// Reason explains how a round was decided
type Reason uint8

const (
	ReasonBust Reason = iota + 1
	ReasonScore
	ReasonPush
)

func (r Reason) String() string {
	switch r {
	case ReasonBust:
		return "bust"
	case ReasonScore:
		return "score"
	case ReasonPush:
		return "push"
	default:
		return ""
	}
}

func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Reason) UnmarshalText(b []byte) error {
	switch string(b) {
	case "bust":
		*r = ReasonBust
	case "score":
		*r = ReasonScore
	case "push":
		*r = ReasonPush
	default:
		return fmt.Errorf("unknown reason %q", b)
	}
	return nil
}

// Outcome is the result of a finished round
type Outcome struct {
	Winner      Winner `json:"winner"`
	Reason      Reason `json:"reason"`
	PlayerScore int    `json:"playerScore"`
	DealerScore int    `json:"dealerScore"`
}

// IsPush reports whether neither side won
func (o Outcome) IsPush() bool {
	return o.Winner == WinnerPush
}

// Loser returns the losing GameRole, or NoRole for a push
func (o Outcome) Loser() GameRole {
	return o.Winner.Role().Other()
}

// Determine evaluates the two final scores. A player bust wins for the
// dealer regardless of the dealer's hand.
func Determine(playerScore, dealerScore int) Outcome {
	o := Outcome{PlayerScore: playerScore, DealerScore: dealerScore}
	switch {
	case playerScore > BustLimit:
		o.Winner, o.Reason = WinnerDealer, ReasonBust
	case dealerScore > BustLimit:
		o.Winner, o.Reason = WinnerPlayer, ReasonBust
	case playerScore > dealerScore:
		o.Winner, o.Reason = WinnerPlayer, ReasonScore
	case dealerScore > playerScore:
		o.Winner, o.Reason = WinnerDealer, ReasonScore
	default:
		o.Winner, o.Reason = WinnerPush, ReasonPush
	}
	return o
}
