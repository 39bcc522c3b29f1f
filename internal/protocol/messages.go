package protocol

import (
	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/deck"
)

// Message is implemented by every protocol message. The wire form is a
// flat JSON object whose "type" field selects the payload shape.
type Message interface {
	MessageType() MessageType
}

// Member is the serialized form of a lobby member
type Member struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	NetworkRole NetworkRole `json:"networkRole"`
	Ready       bool        `json:"ready"`
}

// Lives holds the remaining lives of each network role
type Lives struct {
	Host  int `json:"host"`
	Guest int `json:"guest"`
}

// Of returns the lives of role
func (l Lives) Of(role NetworkRole) int {
	switch role {
	case Host:
		return l.Host
	case Guest:
		return l.Guest
	default:
		return 0
	}
}

// Snapshot is the complete replicated game state. It is always sent
// whole, never as a delta.
type Snapshot struct {
	Round         int                  `json:"round"`
	State         blackjack.RoundState `json:"state"`
	Turn          blackjack.GameRole   `json:"turn,omitempty"`
	HostRole      blackjack.GameRole   `json:"hostRole"`
	PlayerHand    []deck.Card          `json:"playerHand"`
	DealerHand    []deck.Card          `json:"dealerHand"`
	PlayerScore   int                  `json:"playerScore"`
	DealerScore   int                  `json:"dealerScore"`
	DeckRemaining int                  `json:"deckRemaining"`
	Outcome       *blackjack.Outcome   `json:"outcome,omitempty"`
	Lives         Lives                `json:"lives"`
	MatchWinner   NetworkRole          `json:"matchWinner,omitempty"`
}

// RoleOf returns the GameRole held by a network role in this snapshot
func (s Snapshot) RoleOf(role NetworkRole) blackjack.GameRole {
	switch role {
	case Host:
		return s.HostRole
	case Guest:
		return s.HostRole.Other()
	default:
		return blackjack.NoRole
	}
}

// Intent is a hit/stand request for one hand, tagged with who sent it
type Intent struct {
	Hand   blackjack.GameRole
	Action blackjack.Action
	Issuer NetworkRole
}

// Client → registry owner

type CreateLobby struct {
	Type MessageType `json:"type"`
	Name string      `json:"name"`
}

type JoinLobby struct {
	Type MessageType `json:"type"`
	Code string      `json:"code"`
	Name string      `json:"name"`
}

// Join is sent by a peer guest as soon as the direct channel opens
type Join struct {
	Type MessageType `json:"type"`
	Name string      `json:"name"`
}

type LeaveLobby struct {
	Type MessageType `json:"type"`
}

type StartRound struct {
	Type MessageType `json:"type"`
}

type SetReady struct {
	Type  MessageType `json:"type"`
	Ready bool        `json:"ready"`
}

// Both directions

// Chat is sent by a member with only Text set and fanned out with the
// sender's name and a millisecond timestamp filled in.
type Chat struct {
	Type      MessageType `json:"type"`
	From      string      `json:"from,omitempty"`
	Text      string      `json:"text"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// Action carries a hit/stand intent. The type tag names the hand.
type Action struct {
	Type   MessageType      `json:"type"`
	Action blackjack.Action `json:"action"`
	From   string           `json:"from,omitempty"`
}

// Hand returns the hand the action targets
func (m *Action) Hand() blackjack.GameRole {
	switch m.Type {
	case TypePlayerAction:
		return blackjack.Player
	case TypeDealerAction:
		return blackjack.Dealer
	default:
		return blackjack.NoRole
	}
}

type GameState struct {
	Type  MessageType `json:"type"`
	State Snapshot    `json:"state"`
}

// Registry owner → client

type Welcome struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
}

// LobbyInfo is used for both lobby_created and lobby_joined
type LobbyInfo struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Members []Member    `json:"members"`
}

type LobbyUpdate struct {
	Type    MessageType `json:"type"`
	Members []Member    `json:"members"`
}

type RoundStart struct {
	Type MessageType `json:"type"`
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Kind    ErrorKind   `json:"kind"`
	Message string      `json:"message"`
}

// Disconnected reports a lost connection. ID names the member whose
// connection dropped; it is empty when the receiver's own link is gone.
type Disconnected struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id,omitempty"`
}

func (m *CreateLobby) MessageType() MessageType  { return m.Type }
func (m *JoinLobby) MessageType() MessageType    { return m.Type }
func (m *Join) MessageType() MessageType         { return m.Type }
func (m *LeaveLobby) MessageType() MessageType   { return m.Type }
func (m *StartRound) MessageType() MessageType   { return m.Type }
func (m *SetReady) MessageType() MessageType     { return m.Type }
func (m *Chat) MessageType() MessageType         { return m.Type }
func (m *Action) MessageType() MessageType       { return m.Type }
func (m *GameState) MessageType() MessageType    { return m.Type }
func (m *Welcome) MessageType() MessageType      { return m.Type }
func (m *LobbyInfo) MessageType() MessageType    { return m.Type }
func (m *LobbyUpdate) MessageType() MessageType  { return m.Type }
func (m *RoundStart) MessageType() MessageType   { return m.Type }
func (m *ErrorMessage) MessageType() MessageType { return m.Type }
func (m *Disconnected) MessageType() MessageType { return m.Type }

// Constructors set the type tag so callers cannot forget it.

func NewCreateLobby(name string) *CreateLobby {
	return &CreateLobby{Type: TypeCreateLobby, Name: name}
}

func NewJoinLobby(code, name string) *JoinLobby {
	return &JoinLobby{Type: TypeJoinLobby, Code: code, Name: name}
}

func NewJoin(name string) *Join {
	return &Join{Type: TypeJoin, Name: name}
}

func NewLeaveLobby() *LeaveLobby {
	return &LeaveLobby{Type: TypeLeaveLobby}
}

func NewStartRound() *StartRound {
	return &StartRound{Type: TypeStartRound}
}

func NewSetReady(ready bool) *SetReady {
	return &SetReady{Type: TypeSetReady, Ready: ready}
}

func NewChat(from, text string, timestamp int64) *Chat {
	return &Chat{Type: TypeChatMessage, From: from, Text: text, Timestamp: timestamp}
}

// NewAction builds a player_action or dealer_action message for hand
func NewAction(hand blackjack.GameRole, action blackjack.Action) *Action {
	t := TypePlayerAction
	if hand == blackjack.Dealer {
		t = TypeDealerAction
	}
	return &Action{Type: t, Action: action}
}

func NewGameState(s Snapshot) *GameState {
	return &GameState{Type: TypeGameState, State: s}
}

func NewWelcome(id string) *Welcome {
	return &Welcome{Type: TypeWelcome, ID: id}
}

func NewLobbyCreated(code string, members []Member) *LobbyInfo {
	return &LobbyInfo{Type: TypeLobbyCreated, Code: code, Members: members}
}

func NewLobbyJoined(code string, members []Member) *LobbyInfo {
	return &LobbyInfo{Type: TypeLobbyJoined, Code: code, Members: members}
}

func NewLobbyUpdate(members []Member) *LobbyUpdate {
	return &LobbyUpdate{Type: TypeLobbyUpdate, Members: members}
}

func NewRoundStart() *RoundStart {
	return &RoundStart{Type: TypeRoundStart}
}

func NewErrorMessage(kind ErrorKind, message string) *ErrorMessage {
	return &ErrorMessage{Type: TypeError, Kind: kind, Message: message}
}

func NewDisconnected(id string) *Disconnected {
	return &Disconnected{Type: TypeDisconnected, ID: id}
}
