package protocol

// MessageType is the "type" tag of every protocol message
type MessageType string

const (
	// Client to registry owner
	TypeCreateLobby MessageType = "create_lobby"
	TypeJoinLobby   MessageType = "join_lobby"
	TypeJoin        MessageType = "join" // peer guest handshake, code implied by the channel
	TypeLeaveLobby  MessageType = "leave_lobby"
	TypeStartRound  MessageType = "start_round"
	TypeStartGame   MessageType = "start_game" // accepted as an alias of start_round
	TypeSetReady    MessageType = "set_ready"

	// Both directions
	TypeChatMessage  MessageType = "chat_message"
	TypePlayerAction MessageType = "player_action"
	TypeDealerAction MessageType = "dealer_action"
	TypeGameState    MessageType = "game_state"

	// Registry owner to client
	TypeWelcome      MessageType = "welcome"
	TypeLobbyCreated MessageType = "lobby_created"
	TypeLobbyJoined  MessageType = "lobby_joined"
	TypeLobbyUpdate  MessageType = "lobby_update"
	TypeRoundStart   MessageType = "round_start"
	TypeError        MessageType = "error"
	TypeDisconnected MessageType = "disconnected"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
