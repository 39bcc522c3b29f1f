package blackjack

import "github.com/lox/twentyone/internal/deck"

// BustLimit is the highest non-busting score
const BustLimit = 21

// Score sums card values counting each Ace as 11, then reduces Aces to 1
// one at a time while the total exceeds 21.
func Score(cards []deck.Card) int {
	score, aces := 0, 0
	for _, c := range cards {
		score += c.Value()
		if c.IsAce() {
			aces++
		}
	}
	for score > BustLimit && aces > 0 {
		score -= 10
		aces--
	}
	return score
}

// IsBust reports whether the hand scores over 21
func IsBust(cards []deck.Card) bool {
	return Score(cards) > BustLimit
}
