package replication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/deck"
	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/transport"
)

func TestGuestMirrorsSnapshots(t *testing.T) {
	ft := newFakeTransport()
	g := NewGuest(ft, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = g.Run(ctx) }()

	assert.ErrorIs(t, g.Hit(), ErrNoRound)

	snap := protocol.Snapshot{
		Round:       2,
		State:       blackjack.PlayerTurn,
		Turn:        blackjack.Player,
		HostRole:    blackjack.Dealer,
		PlayerHand:  deck.MustParseCards("10h 5s"),
		DealerHand:  deck.MustParseCards("9c 7d"),
		PlayerScore: 15,
		DealerScore: 16,
		Lives:       protocol.Lives{Host: 3, Guest: 2},
	}
	ft.events <- transport.GameState{Snapshot: snap}

	got := nextState(t, g.Events())
	assert.Equal(t, snap, got)
	stored, ok := g.Snapshot()
	require.True(t, ok)
	assert.Equal(t, snap, stored)

	// The guest plays whichever hand the snapshot gives it
	require.NoError(t, g.Hit())
	require.NoError(t, g.Stand())

	ft.mu.Lock()
	defer ft.mu.Unlock()
	assert.Equal(t, []protocol.Intent{
		{Hand: blackjack.Player, Action: blackjack.Hit, Issuer: protocol.Guest},
		{Hand: blackjack.Player, Action: blackjack.Stand, Issuer: protocol.Guest},
	}, ft.intents)
	assert.Empty(t, ft.snapshots, "a guest never publishes state")
}

func TestGuestEndsSessionWhenHostLeaves(t *testing.T) {
	joined := []protocol.Member{
		{ID: "h1", Name: "Hana", NetworkRole: protocol.Host, Ready: true},
		{ID: "g1", Name: "Gus", NetworkRole: protocol.Guest},
	}

	tests := []struct {
		name string
		loss transport.Event
	}{
		{"host disconnect", transport.Disconnected{MemberID: "h1"}},
		{"promoted to host", transport.LobbyUpdate{Members: []protocol.Member{
			{ID: "g1", Name: "Gus", NetworkRole: protocol.Host, Ready: true},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			ft.id = "g1"
			g := NewGuest(ft, testLogger())

			done := make(chan error, 1)
			go func() { done <- g.Run(context.Background()) }()

			ft.events <- transport.LobbyJoined{Code: "123456", Members: joined}
			ft.events <- transport.GameState{Snapshot: protocol.Snapshot{Round: 1, HostRole: blackjack.Player}}
			ft.events <- tt.loss

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("guest engine kept running without a host")
			}

			var last transport.Event
			for ev := range g.Events() {
				last = ev
			}
			dc, ok := last.(transport.Disconnected)
			require.True(t, ok, "last event %T", last)
			assert.True(t, dc.Terminal())
			assert.ErrorIs(t, dc.Err, ErrHostLeft)

			ft.mu.Lock()
			assert.Equal(t, 1, ft.leaves)
			ft.mu.Unlock()
			assert.ErrorIs(t, g.Hit(), ErrNoRound)
		})
	}
}

func TestGuestIgnoresOtherDisconnects(t *testing.T) {
	ft := newFakeTransport()
	ft.id = "g1"
	g := NewGuest(ft, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = g.Run(ctx) }()

	ft.events <- transport.LobbyJoined{Code: "123456", Members: []protocol.Member{
		{ID: "h1", NetworkRole: protocol.Host, Ready: true},
		{ID: "g1", NetworkRole: protocol.Guest},
	}}
	ft.events <- transport.Disconnected{MemberID: "someone-else"}

	dc := waitFor[transport.Disconnected](t, g.Events())
	assert.False(t, dc.Terminal())

	ft.mu.Lock()
	defer ft.mu.Unlock()
	assert.Zero(t, ft.leaves)
}
