// Package blackjack implements the authoritative rules for a single
// two-hand blackjack round: scoring, the round state machine and outcome
// determination.
//
// A Round is a pure state machine. It never sleeps or waits; every
// transition happens synchronously inside Deal or Apply, so the caller
// decides when (and whether) to animate the result:
//
//	r := blackjack.NewRound(shoe, blackjack.DealerManual)
//	r.Deal()
//	if r.Apply(blackjack.Player, blackjack.Stand) {
//	    // state changed, publish a snapshot
//	}
//
// Intents that do not own the current turn are rejected by Apply returning
// false and leave the round untouched.
package blackjack
