package blackjack

import "fmt"

// GameRole identifies which hand a participant controls for a round
type GameRole uint8

const (
	NoRole GameRole = iota
	Player
	Dealer
)

// String returns the wire name of the role
func (r GameRole) String() string {
	switch r {
	case Player:
		return "player"
	case Dealer:
		return "dealer"
	default:
		return ""
	}
}

// Other returns the opposing role
func (r GameRole) Other() GameRole {
	switch r {
	case Player:
		return Dealer
	case Dealer:
		return Player
	default:
		return NoRole
	}
}

func (r GameRole) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *GameRole) UnmarshalText(b []byte) error {
	switch string(b) {
	case "player":
		*r = Player
	case "dealer":
		*r = Dealer
	case "":
		*r = NoRole
	default:
		return fmt.Errorf("unknown game role %q", b)
	}
	return nil
}

// RoundState is the phase of a round
type RoundState uint8

const (
	Initial RoundState = iota
	Dealing
	PlayerTurn
	DealerTurn
	GameOver
)

func (s RoundState) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case Dealing:
		return "DEALING"
	case PlayerTurn:
		return "PLAYER_TURN"
	case DealerTurn:
		return "DEALER_TURN"
	case GameOver:
		return "GAME_OVER"
	default:
		return "UNKNOWN"
	}
}

// Owner returns the role whose turn it is, or NoRole outside the turn phases
func (s RoundState) Owner() GameRole {
	switch s {
	case PlayerTurn:
		return Player
	case DealerTurn:
		return Dealer
	default:
		return NoRole
	}
}

func (s RoundState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RoundState) UnmarshalText(b []byte) error {
	for candidate := Initial; candidate <= GameOver; candidate++ {
		if candidate.String() == string(b) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown round state %q", b)
}

// Action is an intent kind submitted by the hand owner
type Action uint8

const (
	Hit Action = iota + 1
	Stand
)

func (a Action) String() string {
	switch a {
	case Hit:
		return "hit"
	case Stand:
		return "stand"
	default:
		return ""
	}
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	switch string(b) {
	case "hit":
		*a = Hit
	case "stand":
		*a = Stand
	default:
		return fmt.Errorf("unknown action %q", b)
	}
	return nil
}

// ParseAction converts "hit" or "stand" to an Action
func ParseAction(s string) (Action, error) {
	var a Action
	err := a.UnmarshalText([]byte(s))
	return a, err
}
