package relay

import (
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/lobby"
	"github.com/lox/twentyone/internal/protocol"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// outbox records everything the router delivers
type outbox struct {
	mu   sync.Mutex
	sent map[string][]protocol.Message
}

func newOutbox() *outbox {
	return &outbox{sent: make(map[string][]protocol.Message)}
}

func (o *outbox) Send(memberID string, msg protocol.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent[memberID] = append(o.sent[memberID], msg)
	return nil
}

// take returns and clears the messages delivered to memberID
func (o *outbox) take(memberID string) []protocol.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.sent[memberID]
	delete(o.sent, memberID)
	return msgs
}

func types(msgs []protocol.Message) []protocol.MessageType {
	out := make([]protocol.MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageType()
	}
	return out
}

func lastError(t *testing.T, msgs []protocol.Message) *protocol.ErrorMessage {
	t.Helper()
	require.NotEmpty(t, msgs)
	em, ok := msgs[len(msgs)-1].(*protocol.ErrorMessage)
	require.True(t, ok, "expected error, got %s", msgs[len(msgs)-1].MessageType())
	return em
}

type routerFixture struct {
	router *Router
	out    *outbox
	clock  *quartz.Mock
	code   string
}

// newPair builds a router with host "h" and guest "g" in one lobby
func newPair(t *testing.T) *routerFixture {
	t.Helper()
	registry := lobby.NewRegistry(testLogger(), lobby.WithRand(rand.New(rand.NewPCG(3, 4))))
	out := newOutbox()
	clock := quartz.NewMock(t)
	r := NewRouter(registry, out, clock, testLogger())

	r.Handle("h", protocol.NewCreateLobby("Hana"))
	created := out.take("h")
	require.Equal(t, []protocol.MessageType{protocol.TypeLobbyCreated}, types(created))
	code := created[0].(*protocol.LobbyInfo).Code

	r.Handle("g", protocol.NewJoinLobby(code, "Gus"))
	require.Equal(t, []protocol.MessageType{protocol.TypeLobbyJoined, protocol.TypeLobbyUpdate}, types(out.take("g")))
	hostMsgs := out.take("h")
	require.Equal(t, []protocol.MessageType{protocol.TypeLobbyUpdate}, types(hostMsgs))
	assert.Len(t, hostMsgs[0].(*protocol.LobbyUpdate).Members, 2)

	return &routerFixture{router: r, out: out, clock: clock, code: code}
}

func TestRouterJoinErrors(t *testing.T) {
	f := newPair(t)

	f.router.Handle("x", protocol.NewJoinLobby(f.code, "Xavier"))
	assert.Equal(t, protocol.KindFull, lastError(t, f.out.take("x")).Kind)

	f.router.Handle("x", protocol.NewJoinLobby("nope", "Xavier"))
	assert.Equal(t, protocol.KindNotFound, lastError(t, f.out.take("x")).Kind)

	// Errors go to the initiator only
	assert.Empty(t, f.out.take("h"))
	assert.Empty(t, f.out.take("g"))
}

func TestRouterDefaultName(t *testing.T) {
	registry := lobby.NewRegistry(testLogger())
	out := newOutbox()
	r := NewRouter(registry, out, quartz.NewMock(t), testLogger())

	r.Handle("abcdef12", protocol.NewCreateLobby("   "))
	info := out.take("abcdef12")[0].(*protocol.LobbyInfo)
	assert.Equal(t, "Player-abcd", info.Members[0].Name)
}

func TestRouterChat(t *testing.T) {
	f := newPair(t)
	now := f.clock.Now()

	f.router.Handle("g", protocol.NewChat("", "  hello  ", 0))
	for _, id := range []string{"h", "g"} {
		msgs := f.out.take(id)
		require.Len(t, msgs, 1)
		chat := msgs[0].(*protocol.Chat)
		assert.Equal(t, "Gus", chat.From)
		assert.Equal(t, "  hello  ", chat.Text)
		assert.Equal(t, now.UnixMilli(), chat.Timestamp)
	}

	f.router.Handle("g", protocol.NewChat("", "   ", 0))
	assert.Empty(t, f.out.take("h"))

	f.router.Handle("g", protocol.NewChat("", strings.Repeat("x", 500), 0))
	assert.Len(t, f.out.take("h")[0].(*protocol.Chat).Text, protocol.MaxChatLength)
	f.out.take("g")

	// Chat from outside any lobby is ignored
	f.router.Handle("stranger", protocol.NewChat("", "hi", 0))
	assert.Empty(t, f.out.take("stranger"))
}

func TestRouterStartRound(t *testing.T) {
	f := newPair(t)

	f.router.Handle("g", protocol.NewStartRound())
	assert.Equal(t, protocol.KindForbidden, lastError(t, f.out.take("g")).Kind)

	f.router.Handle("h", protocol.NewStartRound())
	assert.Equal(t, []protocol.MessageType{protocol.TypeRoundStart, protocol.TypeLobbyUpdate}, types(f.out.take("h")))
	assert.Equal(t, []protocol.MessageType{protocol.TypeRoundStart, protocol.TypeLobbyUpdate}, types(f.out.take("g")))

	// After the first round the guest has to opt in
	f.router.Handle("h", protocol.NewStartRound())
	assert.Equal(t, protocol.KindNotReady, lastError(t, f.out.take("h")).Kind)
	assert.Empty(t, f.out.take("g"))

	f.router.Handle("h", protocol.NewSetReady(true))
	assert.Equal(t, protocol.KindForbidden, lastError(t, f.out.take("h")).Kind)

	f.router.Handle("g", protocol.NewSetReady(true))
	update := f.out.take("h")[0].(*protocol.LobbyUpdate)
	assert.True(t, update.Members[1].Ready)
	f.out.take("g")

	f.router.Handle("h", protocol.NewStartRound())
	msgs := f.out.take("g")
	require.Equal(t, []protocol.MessageType{protocol.TypeRoundStart, protocol.TypeLobbyUpdate}, types(msgs))
	for _, m := range msgs[1].(*protocol.LobbyUpdate).Members {
		assert.False(t, m.Ready)
	}
}

func TestRouterStartNeedsOpponent(t *testing.T) {
	registry := lobby.NewRegistry(testLogger())
	out := newOutbox()
	r := NewRouter(registry, out, quartz.NewMock(t), testLogger())

	r.Handle("h", protocol.NewCreateLobby("Hana"))
	out.take("h")
	r.Handle("h", protocol.NewStartRound())
	assert.Equal(t, protocol.KindNotReady, lastError(t, out.take("h")).Kind)

	r.Handle("x", protocol.NewStartRound())
	assert.Equal(t, protocol.KindNotInLobby, lastError(t, out.take("x")).Kind)
}

func TestRouterForwarding(t *testing.T) {
	f := newPair(t)

	snap := protocol.Snapshot{Round: 1, State: blackjack.PlayerTurn, HostRole: blackjack.Player}
	f.router.Handle("h", protocol.NewGameState(snap))
	assert.Empty(t, f.out.take("h"))
	msgs := f.out.take("g")
	require.Len(t, msgs, 1)
	assert.Equal(t, snap, msgs[0].(*protocol.GameState).State)

	f.router.Handle("g", protocol.NewGameState(snap))
	assert.Equal(t, protocol.KindForbidden, lastError(t, f.out.take("g")).Kind)

	f.router.Handle("g", protocol.NewAction(blackjack.Dealer, blackjack.Hit))
	msgs = f.out.take("h")
	require.Len(t, msgs, 1)
	action := msgs[0].(*protocol.Action)
	assert.Equal(t, "g", action.From)
	assert.Equal(t, blackjack.Dealer, action.Hand())

	f.router.Handle("h", protocol.NewAction(blackjack.Player, blackjack.Hit))
	assert.Equal(t, protocol.KindForbidden, lastError(t, f.out.take("h")).Kind)

	// Late intents after leaving are dropped silently
	f.router.Handle("g", protocol.NewLeaveLobby())
	f.out.take("h")
	f.router.Handle("g", protocol.NewAction(blackjack.Dealer, blackjack.Hit))
	assert.Empty(t, f.out.take("g"))
	assert.Empty(t, f.out.take("h"))
}

func TestRouterUnexpectedMessage(t *testing.T) {
	f := newPair(t)
	f.router.Handle("h", protocol.NewLobbyUpdate(nil))
	assert.Equal(t, protocol.KindProtocolError, lastError(t, f.out.take("h")).Kind)
}

func TestRouterDisconnectPromotesGuest(t *testing.T) {
	f := newPair(t)

	f.router.Disconnect("h")
	msgs := f.out.take("g")
	require.Equal(t, []protocol.MessageType{protocol.TypeDisconnected, protocol.TypeLobbyUpdate}, types(msgs))
	assert.Equal(t, "h", msgs[0].(*protocol.Disconnected).ID)

	members := msgs[1].(*protocol.LobbyUpdate).Members
	require.Len(t, members, 1)
	assert.Equal(t, protocol.Host, members[0].NetworkRole)

	// A second disconnect for the same member is a no-op
	f.router.Disconnect("h")
	assert.Empty(t, f.out.take("g"))
}

func TestRouterCreateLeavesPreviousLobby(t *testing.T) {
	f := newPair(t)

	f.router.Handle("g", protocol.NewCreateLobby("Gus"))
	assert.Equal(t, []protocol.MessageType{protocol.TypeLobbyUpdate}, types(f.out.take("h")))
	created := f.out.take("g")
	require.Len(t, created, 1)
	assert.NotEqual(t, f.code, created[0].(*protocol.LobbyInfo).Code)

	s, ok := f.router.Registry().Lookup(f.code)
	require.True(t, ok)
	assert.Len(t, s.Members, 1)
}

func TestRouterChatTimestampFollowsClock(t *testing.T) {
	f := newPair(t)
	f.clock.Set(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	f.router.Handle("h", protocol.NewChat("", "gg", 0))
	chat := f.out.take("g")[0].(*protocol.Chat)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(), chat.Timestamp)
}
