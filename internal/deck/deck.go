package deck

import (
	rand "math/rand/v2"

	"github.com/lox/twentyone/internal/randutil"
)

const (
	// DefaultDecks is the number of 52-card decks in a shoe.
	DefaultDecks = 6

	// ReshuffleThreshold is the remaining-card count below which a new
	// round starts from a freshly shuffled shoe.
	ReshuffleThreshold = 20
)

// Provider is the card source consumed by the round engine.
type Provider interface {
	Draw() Card
	Remaining() int
}

// Shoe is a multi-deck shoe that reshuffles itself when exhausted.
type Shoe struct {
	cards []Card
	next  int
	rng   *rand.Rand
}

// NewShoe creates a shuffled shoe of n decks using rng
func NewShoe(n int, rng *rand.Rand) *Shoe {
	if n < 1 {
		n = 1
	}
	s := &Shoe{
		cards: make([]Card, 0, n*52),
		rng:   rng,
	}
	for range n {
		for rank := Ace; rank <= King; rank++ {
			for suit := Hearts; suit <= Spades; suit++ {
				s.cards = append(s.cards, NewCard(rank, suit))
			}
		}
	}
	s.Shuffle()
	return s
}

// NewSeededShoe creates a default six-deck shoe from a deterministic seed.
func NewSeededShoe(seed uint64) *Shoe {
	return NewShoe(DefaultDecks, randutil.New(seed))
}

// Shuffle randomizes the order of all cards and rewinds the shoe
func (s *Shoe) Shuffle() {
	s.rng.Shuffle(len(s.cards), func(i, j int) {
		s.cards[i], s.cards[j] = s.cards[j], s.cards[i]
	})
	s.next = 0
}

// Draw returns the next card, reshuffling first when the shoe is empty
func (s *Shoe) Draw() Card {
	if s.next >= len(s.cards) {
		s.Shuffle()
	}
	c := s.cards[s.next]
	s.next++
	return c
}

// Remaining returns the number of undealt cards
func (s *Shoe) Remaining() int {
	return len(s.cards) - s.next
}

// Size returns the total number of cards in the shoe
func (s *Shoe) Size() int {
	return len(s.cards)
}

// Stack is a Provider that deals a fixed sequence, for scripted rounds.
// Once the sequence is exhausted it keeps dealing twos.
type Stack struct {
	cards []Card
}

// NewStack creates a stacked provider dealing cards in order
func NewStack(cards ...Card) *Stack {
	return &Stack{cards: append([]Card(nil), cards...)}
}

// Draw removes and returns the top card
func (s *Stack) Draw() Card {
	if len(s.cards) == 0 {
		return NewCard(Two, Clubs)
	}
	c := s.cards[0]
	s.cards = s.cards[1:]
	return c
}

// Remaining returns the number of cards left in the stack
func (s *Stack) Remaining() int {
	return len(s.cards)
}
