package realtime

import "pictionary/models"

// Inbound message types.
const (
	TypeChatMessage = "chatMessage"
	TypeDraw        = "draw"
	TypeClearCanvas = "clearCanvas"
	TypeStartGame   = "startGame"
	TypeLeave       = "leave"
	TypePlayAgain   = "playAgain"
	TypeHeartbeat   = "heartbeat"
)

// Outbound message types.
const (
	TypeGameState = "gameState"
	TypeError     = "error"
	TypeGuess     = "guessResult"
)

type InboundMessage struct {
	Type   string              `json:"type"`
	Text   string              `json:"text,omitempty"`
	Stroke *models.StrokeEvent `json:"stroke,omitempty"`
}

type OutboundMessage struct {
	Type    string              `json:"type"`
	Session *models.SessionView `json:"session,omitempty"`
	Status  string              `json:"status,omitempty"`
	Error   string              `json:"error,omitempty"`
	Correct bool                `json:"correct,omitempty"`
	Settled bool                `json:"settled,omitempty"`
}
