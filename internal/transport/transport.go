// Package transport defines the session transport contract shared by the
// relay and peer implementations, plus the websocket plumbing both use.
package transport

import (
	"context"
	"time"

	"github.com/lox/twentyone/internal/protocol"
)

// Transport is the operation set every session medium exposes. The
// replication and match layers only ever talk to this interface.
type Transport interface {
	// ID returns this member's identifier once assigned, or ""
	ID() string

	CreateLobby(ctx context.Context, name string) (LobbyCreated, error)
	JoinLobby(ctx context.Context, code, name string) (LobbyJoined, error)
	LeaveLobby() error

	SendChat(text string) error
	SetReady(ready bool) error
	StartRound() error

	// SendSnapshot publishes authoritative state. Host only.
	SendSnapshot(s protocol.Snapshot) error

	// SendIntent forwards a hit/stand request to the host. Guest only.
	SendIntent(i protocol.Intent) error

	Events() <-chan Event
	Close() error
}

// Event is delivered to the transport consumer
type Event interface {
	Kind() protocol.MessageType
}

type LobbyCreated struct {
	Code    string
	Members []protocol.Member
}

type LobbyJoined struct {
	Code    string
	Members []protocol.Member
}

type LobbyUpdate struct {
	Members []protocol.Member
}

type ChatMessage struct {
	From string
	Text string
	Time time.Time
}

type RoundStart struct{}

type GameState struct {
	Snapshot protocol.Snapshot
}

// PlayerAction is an intent targeting the player hand
type PlayerAction struct {
	Intent protocol.Intent
	From   string
}

// DealerAction is an intent targeting the dealer hand
type DealerAction struct {
	Intent protocol.Intent
	From   string
}

type Error struct {
	Err *protocol.Error
}

// Disconnected reports a lost link. MemberID is empty when this
// transport's own connection is gone, which is terminal.
type Disconnected struct {
	MemberID string
	Err      error
}

// Terminal reports whether the transport itself can no longer be used
func (e Disconnected) Terminal() bool {
	return e.MemberID == ""
}

func (LobbyCreated) Kind() protocol.MessageType { return protocol.TypeLobbyCreated }
func (LobbyJoined) Kind() protocol.MessageType  { return protocol.TypeLobbyJoined }
func (LobbyUpdate) Kind() protocol.MessageType  { return protocol.TypeLobbyUpdate }
func (ChatMessage) Kind() protocol.MessageType  { return protocol.TypeChatMessage }
func (RoundStart) Kind() protocol.MessageType   { return protocol.TypeRoundStart }
func (GameState) Kind() protocol.MessageType    { return protocol.TypeGameState }
func (PlayerAction) Kind() protocol.MessageType { return protocol.TypePlayerAction }
func (DealerAction) Kind() protocol.MessageType { return protocol.TypeDealerAction }
func (Error) Kind() protocol.MessageType        { return protocol.TypeError }
func (Disconnected) Kind() protocol.MessageType { return protocol.TypeDisconnected }

// FromMessage converts a message received from the registry owner into an
// event. Messages with no event form (welcome, client requests) report false.
func FromMessage(msg protocol.Message) (Event, bool) {
	switch m := msg.(type) {
	case *protocol.LobbyInfo:
		if m.Type == protocol.TypeLobbyJoined {
			return LobbyJoined{Code: m.Code, Members: m.Members}, true
		}
		return LobbyCreated{Code: m.Code, Members: m.Members}, true
	case *protocol.LobbyUpdate:
		return LobbyUpdate{Members: m.Members}, true
	case *protocol.Chat:
		return ChatMessage{From: m.From, Text: m.Text, Time: time.UnixMilli(m.Timestamp)}, true
	case *protocol.RoundStart:
		return RoundStart{}, true
	case *protocol.GameState:
		return GameState{Snapshot: m.State}, true
	case *protocol.Action:
		// Intents only ever travel from guest to host
		intent := protocol.Intent{Hand: m.Hand(), Action: m.Action, Issuer: protocol.Guest}
		if m.Type == protocol.TypeDealerAction {
			return DealerAction{Intent: intent, From: m.From}, true
		}
		return PlayerAction{Intent: intent, From: m.From}, true
	case *protocol.ErrorMessage:
		return Error{Err: protocol.FromWire(m)}, true
	case *protocol.Disconnected:
		return Disconnected{MemberID: m.ID}, true
	default:
		return nil, false
	}
}
