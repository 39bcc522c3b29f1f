package protocol

import (
	"encoding/json"
	"fmt"
)

var (
	// ErrUnknownMessageType is returned when a frame's type tag is not recognised
	ErrUnknownMessageType = NewError(KindProtocolError, "unknown message type")

	// ErrMalformedMessage is returned when a frame is not a JSON object with a type tag
	ErrMalformedMessage = NewError(KindProtocolError, "malformed message")
)

// factories maps a type tag to a constructor of its payload struct
var factories = map[MessageType]func() Message{
	TypeCreateLobby:  func() Message { return &CreateLobby{} },
	TypeJoinLobby:    func() Message { return &JoinLobby{} },
	TypeJoin:         func() Message { return &Join{} },
	TypeLeaveLobby:   func() Message { return &LeaveLobby{} },
	TypeStartRound:   func() Message { return &StartRound{} },
	TypeStartGame:    func() Message { return &StartRound{} },
	TypeSetReady:     func() Message { return &SetReady{} },
	TypeChatMessage:  func() Message { return &Chat{} },
	TypePlayerAction: func() Message { return &Action{} },
	TypeDealerAction: func() Message { return &Action{} },
	TypeGameState:    func() Message { return &GameState{} },
	TypeWelcome:      func() Message { return &Welcome{} },
	TypeLobbyCreated: func() Message { return &LobbyInfo{} },
	TypeLobbyJoined:  func() Message { return &LobbyInfo{} },
	TypeLobbyUpdate:  func() Message { return &LobbyUpdate{} },
	TypeRoundStart:   func() Message { return &RoundStart{} },
	TypeError:        func() Message { return &ErrorMessage{} },
	TypeDisconnected: func() Message { return &Disconnected{} },
}

// Marshal serializes a message to its flat JSON wire form
func Marshal(msg Message) ([]byte, error) {
	if msg == nil || msg.MessageType() == "" {
		return nil, fmt.Errorf("%w: missing type tag", ErrMalformedMessage)
	}
	return json.Marshal(msg)
}

// Unmarshal decodes a wire frame into its concrete message type
func Unmarshal(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type tag", ErrMalformedMessage)
	}

	factory, ok := factories[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, head.Type)
	}

	msg := factory()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, head.Type, err)
	}

	// start_game is folded into start_round
	if sr, ok := msg.(*StartRound); ok {
		sr.Type = TypeStartRound
	}
	return msg, nil
}
