// Package replication keeps the two copies of a round in step. The host
// engine owns the authoritative round and publishes full snapshots; the
// guest engine only renders what it receives and forwards its input.
package replication

import (
	"context"

	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/transport"
)

const eventBufferSize = 256

var (
	ErrNotYourTurn = protocol.NewError(protocol.KindInvalidAction, "not your turn")
	ErrNoRound     = protocol.NewError(protocol.KindInvalidAction, "no round in progress")
	ErrStopped     = protocol.NewError(protocol.KindDisconnected, "engine stopped")
	ErrHostLeft    = protocol.NewError(protocol.KindDisconnected, "host left the lobby")
)

// Engine is what a front end drives, regardless of which side it is on
type Engine interface {
	// Run processes transport events until ctx ends or the transport closes
	Run(ctx context.Context) error

	// Events carries lobby, chat and error events through, plus a
	// GameState event for every snapshot
	Events() <-chan transport.Event

	Role() protocol.NetworkRole

	Hit() error
	Stand() error
	StartRound() error
	SetReady(ready bool) error
	Chat(text string) error
	Leave() error
}
