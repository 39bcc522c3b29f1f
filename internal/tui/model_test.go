package tui

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/deck"
	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/replication"
	"github.com/lox/twentyone/internal/transport"
)

type fakeEngine struct {
	role   protocol.NetworkRole
	events chan transport.Event
	calls  []string
	err    error
}

func (f *fakeEngine) Run(ctx context.Context) error  { <-ctx.Done(); return ctx.Err() }
func (f *fakeEngine) Events() <-chan transport.Event { return f.events }
func (f *fakeEngine) Role() protocol.NetworkRole     { return f.role }
func (f *fakeEngine) Hit() error                     { return f.record("hit") }
func (f *fakeEngine) Stand() error                   { return f.record("stand") }
func (f *fakeEngine) StartRound() error              { return f.record("start") }
func (f *fakeEngine) Leave() error                   { return f.record("leave") }
func (f *fakeEngine) Chat(text string) error         { return f.record("chat " + text) }
func (f *fakeEngine) SetReady(ready bool) error {
	if ready {
		return f.record("ready")
	}
	return f.record("unready")
}

func (f *fakeEngine) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

var _ replication.Engine = (*fakeEngine)(nil)

func newTestModel(role protocol.NetworkRole) (*Model, *fakeEngine) {
	fe := &fakeEngine{role: role, events: make(chan transport.Event, 8)}
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	return NewModel(fe, "twentyone", logger), fe
}

func typeLine(m *Model, line string) tea.Cmd {
	m.input.SetValue(line)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func logContains(t *testing.T, m *Model, want string) {
	t.Helper()
	for _, entry := range m.Log() {
		if strings.Contains(entry, want) {
			return
		}
	}
	t.Fatalf("log does not contain %q: %q", want, m.Log())
}

func TestCommands(t *testing.T) {
	m, fe := newTestModel(protocol.Guest)

	typeLine(m, "/hit")
	typeLine(m, "/S")
	typeLine(m, "/ready")
	typeLine(m, "/unready")
	typeLine(m, "  hello there  ")
	typeLine(m, "")
	typeLine(m, "/start")

	assert.Equal(t, []string{"hit", "stand", "ready", "unready", "chat hello there", "start"}, fe.calls)
	assert.Empty(t, m.input.Value())

	typeLine(m, "/dance")
	logContains(t, m, "Unknown command /dance")

	typeLine(m, "/help")
	logContains(t, m, "/ready")
}

func TestCommandErrorsAreLogged(t *testing.T) {
	m, fe := newTestModel(protocol.Guest)
	fe.err = replication.ErrNotYourTurn

	typeLine(m, "/hit")
	logContains(t, m, "not your turn")
}

func TestQuitLeavesLobby(t *testing.T) {
	m, fe := newTestModel(protocol.Host)

	cmd := typeLine(m, "/quit")
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Equal(t, []string{"leave"}, fe.calls)
	assert.Empty(t, m.View())
}

func TestEventsRenderRound(t *testing.T) {
	m, _ := newTestModel(protocol.Guest)

	m.Update(eventMsg{ev: transport.LobbyJoined{Code: "123456", Members: []protocol.Member{
		{ID: "a", Name: "Hana", NetworkRole: protocol.Host, Ready: true},
		{ID: "b", Name: "Gus", NetworkRole: protocol.Guest},
	}}})
	logContains(t, m, "Joined lobby 123456")

	m.Update(eventMsg{ev: transport.ChatMessage{From: "Hana", Text: "good luck", Time: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)}})
	logContains(t, m, "[09:30] Hana: good luck")

	snap := protocol.Snapshot{
		Round:       1,
		State:       blackjack.PlayerTurn,
		Turn:        blackjack.Player,
		HostRole:    blackjack.Player,
		PlayerHand:  deck.MustParseCards("10h 5s"),
		DealerHand:  deck.MustParseCards("9c 7d"),
		PlayerScore: 15,
		DealerScore: 16,
		Lives:       protocol.Lives{Host: 3, Guest: 3},
	}
	m.Update(eventMsg{ev: transport.GameState{Snapshot: snap}})
	logContains(t, m, "Round 1")
	logContains(t, m, "You are the dealer")

	snap.PlayerHand = deck.MustParseCards("10h 5s 3h")
	snap.PlayerScore = 18
	m.Update(eventMsg{ev: transport.GameState{Snapshot: snap}})
	logContains(t, m, "Player hits")

	snap.State, snap.Turn = blackjack.DealerTurn, blackjack.Dealer
	m.Update(eventMsg{ev: transport.GameState{Snapshot: snap}})
	logContains(t, m, "Player stands")

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Contains(t, m.View(), "Your turn")

	outcome := blackjack.Determine(18, 16)
	snap.State, snap.Turn, snap.Outcome = blackjack.GameOver, blackjack.NoRole, &outcome
	snap.Lives = protocol.Lives{Host: 3, Guest: 2}
	m.Update(eventMsg{ev: transport.GameState{Snapshot: snap}})
	logContains(t, m, "You lose the round")
	logContains(t, m, "Lives: you 2, opponent 3")
}

func TestDisconnectEvents(t *testing.T) {
	m, fe := newTestModel(protocol.Host)

	m.Update(eventMsg{ev: transport.Disconnected{MemberID: "b"}})
	logContains(t, m, "Opponent disconnected")

	m.Update(eventMsg{ev: transport.Disconnected{Err: protocol.NewError(protocol.KindDisconnected, "host closed the lobby")}})
	logContains(t, m, "Connection lost: host closed the lobby")

	m.Update(closedMsg{})
	assert.True(t, m.closed)

	// No leave is attempted once the session is gone
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Empty(t, fe.calls)
}
