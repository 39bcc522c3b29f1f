package protocol

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/deck"
)

func TestMarshalIsFlat(t *testing.T) {
	data, err := Marshal(NewJoinLobby("123456", "Alice"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join_lobby","code":"123456","name":"Alice"}`, string(data))

	data, err = Marshal(NewLobbyUpdate([]Member{{ID: "a", Name: "Alice", NetworkRole: Host, Ready: true}}))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"lobby_update","members":[{"id":"a","name":"Alice","networkRole":"host","ready":true}]}`,
		string(data))
}

func TestUnmarshalDispatchesOnType(t *testing.T) {
	msg, err := Unmarshal([]byte(`{"type":"dealer_action","action":"hit"}`))
	require.NoError(t, err)
	action, ok := msg.(*Action)
	require.True(t, ok)
	assert.Equal(t, blackjack.Dealer, action.Hand())
	assert.Equal(t, blackjack.Hit, action.Action)

	msg, err = Unmarshal([]byte(`{"type":"start_game"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeStartRound, msg.MessageType())

	msg, err = Unmarshal([]byte(`{"type":"lobby_joined","code":"000042","members":[]}`))
	require.NoError(t, err)
	info := msg.(*LobbyInfo)
	assert.Equal(t, TypeLobbyJoined, info.Type)
	assert.Equal(t, "000042", info.Code)
}

func TestUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"not json", `{nope`, ErrMalformedMessage},
		{"no type", `{"code":"1"}`, ErrMalformedMessage},
		{"unknown type", `{"type":"teleport"}`, ErrUnknownMessageType},
		{"bad payload", `{"type":"player_action","action":"split"}`, ErrMalformedMessage},
		{"array", `[1,2]`, ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, KindProtocolError, KindOf(err))
		})
	}
}

func TestSnapshotWireForm(t *testing.T) {
	outcome := blackjack.Determine(20, 19)
	snap := Snapshot{
		Round:         2,
		State:         blackjack.GameOver,
		HostRole:      blackjack.Dealer,
		PlayerHand:    deck.MustParseCards("10h Kd"),
		DealerHand:    deck.MustParseCards("10c 9s"),
		PlayerScore:   20,
		DealerScore:   19,
		DeckRemaining: 300,
		Outcome:       &outcome,
		Lives:         Lives{Host: 2, Guest: 3},
	}

	data, err := Marshal(NewGameState(snap))
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, `"state":"GAME_OVER"`)
	assert.Contains(t, s, `"hostRole":"dealer"`)
	assert.Contains(t, s, `"winner":"player"`)
	assert.Contains(t, s, `"reason":"score"`)
	assert.NotContains(t, s, `"turn"`)
	assert.NotContains(t, s, `"matchWinner"`)

	msg, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, snap, msg.(*GameState).State)
	assert.Equal(t, blackjack.Player, snap.RoleOf(Guest))
	assert.Equal(t, 3, snap.Lives.Of(Guest))
}

func TestErrorKinds(t *testing.T) {
	notFound := NewError(KindNotFound, "lobby %s not found", "123456")
	wrapped := fmt.Errorf("join: %w", notFound)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindNotFound}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindFull}))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))

	wire := AsError(wrapped).Wire()
	assert.Equal(t, TypeError, wire.Type)
	assert.Equal(t, KindNotFound, wire.Kind)
	assert.Equal(t, KindNotFound, FromWire(wire).Kind)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Alice", SanitizeName("  Alice ", "Guest"))
	assert.Equal(t, "Guest", SanitizeName("   ", "Guest"))
	assert.Len(t, []rune(SanitizeName(strings.Repeat("é", 40), "x")), MaxNameLength)

	_, ok := SanitizeChat("  ")
	assert.False(t, ok)
	text, ok := SanitizeChat("  hi there \n")
	assert.True(t, ok)
	assert.Equal(t, "hi there", text)
	text, ok = SanitizeChat(" " + strings.Repeat("a", 400))
	assert.True(t, ok)
	assert.Len(t, text, MaxChatLength)
}
