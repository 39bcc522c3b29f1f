package replication

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/deck"
	"github.com/lox/twentyone/internal/match"
	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/transport"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func waitFor[T transport.Event](t *testing.T, events <-chan transport.Event) T {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event stream closed")
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func nextState(t *testing.T, events <-chan transport.Event) protocol.Snapshot {
	t.Helper()
	return waitFor[transport.GameState](t, events).Snapshot
}

// fakeTransport hands events to the engine one at a time: a send on the
// unbuffered channel returns only once the engine's loop has taken it.
type fakeTransport struct {
	id     string
	events chan transport.Event

	mu        sync.Mutex
	snapshots []protocol.Snapshot
	intents   []protocol.Intent
	starts    int
	leaves    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{id: "host", events: make(chan transport.Event)}
}

func (f *fakeTransport) ID() string { return f.id }
func (f *fakeTransport) CreateLobby(context.Context, string) (transport.LobbyCreated, error) {
	return transport.LobbyCreated{}, nil
}
func (f *fakeTransport) JoinLobby(context.Context, string, string) (transport.LobbyJoined, error) {
	return transport.LobbyJoined{}, nil
}
func (f *fakeTransport) SendChat(string) error { return nil }
func (f *fakeTransport) SetReady(bool) error   { return nil }
func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}
func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) LeaveLobby() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

func (f *fakeTransport) StartRound() error {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	go func() { f.events <- transport.RoundStart{} }()
	return nil
}

func (f *fakeTransport) SendSnapshot(s protocol.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *fakeTransport) SendIntent(i protocol.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, i)
	return nil
}

func (f *fakeTransport) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

func members(guestReady bool) []protocol.Member {
	return []protocol.Member{
		{ID: "host", Name: "Hana", NetworkRole: protocol.Host, Ready: true},
		{ID: "guest", Name: "Gus", NetworkRole: protocol.Guest, Ready: guestReady},
	}
}

func guestIntent(hand blackjack.GameRole, action blackjack.Action) transport.Event {
	i := protocol.Intent{Hand: hand, Action: action, Issuer: protocol.Guest}
	if hand == blackjack.Dealer {
		return transport.DealerAction{Intent: i, From: "guest"}
	}
	return transport.PlayerAction{Intent: i, From: "guest"}
}

func startHost(t *testing.T, cards string, opts HostOptions) (*Host, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	h := NewHost(ft, deck.NewStack(deck.MustParseCards(cards)...), testLogger(), opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ft.events <- transport.LobbyCreated{Code: "123456", Members: members(false)[:1]}
	ft.events <- transport.LobbyUpdate{Members: members(false)}
	return h, ft
}

func TestHostRound(t *testing.T) {
	// Deal order is player, dealer, player, dealer
	h, ft := startHost(t, "10h 9c 5s 7d 3h 8s", HostOptions{})

	require.NoError(t, h.StartRound())
	waitFor[transport.RoundStart](t, h.Events())
	snap := nextState(t, h.Events())
	assert.Equal(t, 1, snap.Round)
	assert.Equal(t, blackjack.PlayerTurn, snap.State)
	assert.Equal(t, blackjack.Player, snap.Turn)
	assert.Equal(t, blackjack.Player, snap.HostRole)
	assert.Equal(t, 15, snap.PlayerScore)
	assert.Equal(t, 16, snap.DealerScore)

	// The guest deals this round: acting on the player hand, or out of
	// turn on its own, changes nothing
	ft.events <- guestIntent(blackjack.Player, blackjack.Hit)
	ft.events <- guestIntent(blackjack.Dealer, blackjack.Hit)
	assert.Equal(t, 1, ft.published())

	require.NoError(t, h.Hit())
	snap = nextState(t, h.Events())
	assert.Equal(t, 18, snap.PlayerScore)
	assert.Equal(t, 2, ft.published())

	require.NoError(t, h.Stand())
	snap = nextState(t, h.Events())
	assert.Equal(t, blackjack.DealerTurn, snap.State)
	assert.Equal(t, blackjack.Dealer, snap.Turn)

	assert.ErrorIs(t, h.Hit(), ErrNotYourTurn)

	ft.events <- guestIntent(blackjack.Dealer, blackjack.Hit)
	snap = nextState(t, h.Events())
	assert.Equal(t, blackjack.GameOver, snap.State)
	assert.Equal(t, 24, snap.DealerScore)
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, blackjack.WinnerPlayer, snap.Outcome.Winner)
	assert.Equal(t, blackjack.ReasonBust, snap.Outcome.Reason)
	assert.Equal(t, protocol.Lives{Host: 3, Guest: 2}, snap.Lives)

	// Late intents after GAME_OVER are dropped
	published := ft.published()
	ft.events <- guestIntent(blackjack.Dealer, blackjack.Stand)
	assert.Equal(t, published, ft.published())

	// Rematch waits for the guest
	assert.ErrorIs(t, h.StartRound(), match.ErrGuestNotReady)
	ft.events <- transport.LobbyUpdate{Members: members(true)}
	require.NoError(t, h.StartRound())

	snap = nextState(t, h.Events())
	assert.Equal(t, 2, snap.Round)
	assert.Equal(t, blackjack.Dealer, snap.HostRole)
	assert.Equal(t, blackjack.Player, snap.RoleOf(protocol.Guest))
	assert.Equal(t, protocol.Lives{Host: 3, Guest: 2}, snap.Lives)

	ft.mu.Lock()
	assert.Equal(t, 2, ft.starts)
	ft.mu.Unlock()
}

func TestHostNaturalEndsRoundOnDeal(t *testing.T) {
	h, _ := startHost(t, "Ah 9c Kd 7d", HostOptions{})

	require.NoError(t, h.StartRound())
	snap := nextState(t, h.Events())
	assert.Equal(t, blackjack.GameOver, snap.State)
	assert.Equal(t, blackjack.NoRole, snap.Turn)
	assert.Equal(t, 21, snap.PlayerScore)
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, blackjack.WinnerPlayer, snap.Outcome.Winner)
	assert.Equal(t, protocol.Lives{Host: 3, Guest: 2}, snap.Lives)

	assert.ErrorIs(t, h.Stand(), ErrNotYourTurn)
}

func TestHostMatchOver(t *testing.T) {
	// Guest deals in round 1 and busts on its draw
	h, ft := startHost(t, "10h 9c 8s 7d Kc", HostOptions{StartingLives: 1})

	require.NoError(t, h.StartRound())
	nextState(t, h.Events())
	require.NoError(t, h.Stand())
	nextState(t, h.Events())

	ft.events <- guestIntent(blackjack.Dealer, blackjack.Hit)
	snap := nextState(t, h.Events())
	assert.Equal(t, protocol.Host, snap.MatchWinner)
	assert.Equal(t, 0, snap.Lives.Guest)

	// A ready guest starts a fresh match
	ft.events <- transport.LobbyUpdate{Members: members(true)}
	require.NoError(t, h.StartRound())
	snap = nextState(t, h.Events())
	assert.Equal(t, 1, snap.Round)
	assert.Equal(t, protocol.NoNetworkRole, snap.MatchWinner)
	assert.Equal(t, protocol.Lives{Host: 1, Guest: 1}, snap.Lives)
}

func TestHostGuestLeavingAbandonsMatch(t *testing.T) {
	h, ft := startHost(t, "10h 9c 5s 7d", HostOptions{})

	require.NoError(t, h.StartRound())
	nextState(t, h.Events())

	ft.events <- transport.LobbyUpdate{Members: members(false)[:1]}
	assert.ErrorIs(t, h.Hit(), ErrNoRound)

	ft.events <- transport.LobbyUpdate{Members: members(false)}
	require.NoError(t, h.StartRound())
	snap := nextState(t, h.Events())
	assert.Equal(t, 1, snap.Round)
	assert.Equal(t, protocol.Lives{Host: 3, Guest: 3}, snap.Lives)
}

func TestSoloAutoDealer(t *testing.T) {
	lb := transport.NewLoopback(quartz.NewMock(t), testLogger())
	h := NewHost(lb, deck.NewStack(deck.MustParseCards("10h 9c 7s 5d 4h")...), testLogger(), HostOptions{Solo: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()

	_, err := lb.CreateLobby(ctx, "Sol")
	require.NoError(t, err)
	waitFor[transport.LobbyCreated](t, h.Events())

	require.NoError(t, h.StartRound())
	snap := nextState(t, h.Events())
	assert.Equal(t, blackjack.PlayerTurn, snap.State)

	require.NoError(t, h.Stand())
	snap = nextState(t, h.Events())
	assert.Equal(t, blackjack.GameOver, snap.State)
	assert.Equal(t, 18, snap.DealerScore)
	assert.Equal(t, blackjack.WinnerDealer, snap.Outcome.Winner)
	assert.Equal(t, protocol.Lives{Host: 2, Guest: 3}, snap.Lives)

	// No readiness handshake and no rotation when playing alone
	require.NoError(t, h.StartRound())
	snap = nextState(t, h.Events())
	assert.Equal(t, 2, snap.Round)
	assert.Equal(t, blackjack.Player, snap.HostRole)
}
