package realtime

import (
	"bytes"
	"encoding/json"

	"github.com/casalena404/crypto-chess/internal/model"
)

// Events a client may send.
const (
	EventJoinGame    = "join-game"
	EventLeaveGame   = "leave-game"
	EventMakeMove    = "make-move"
	EventGameOver    = "game-over"
	EventFindMatch   = "find-match"
	EventCancelMatch = "cancel-match"
)

// Events the server sends.
const (
	EventGameJoined         = "game-joined"
	EventPlayerJoined       = "player-joined"
	EventPlayerLeft         = "player-left"
	EventMoveMade           = "move-made"
	EventGameEnded          = "game-ended"
	EventPlayerDisconnected = "player-disconnected"
	EventMatchFound         = "match-found"
	EventError              = "error"
)

// Envelope is an inbound frame. Data is decoded by the handler registered
// for Event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// gameRef is the payload of join-game and leave-game. Clients may send
// either a bare string or {"gameId": "..."}.
type gameRef struct {
	GameID string `json:"gameId"`
}

func (g *gameRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &g.GameID)
	}
	type plain gameRef
	return json.Unmarshal(b, (*plain)(g))
}

type makeMovePayload struct {
	GameID string          `json:"gameId"`
	Move   json.RawMessage `json:"move"`
	FEN    string          `json:"fen"`
}

type gameOverPayload struct {
	GameID     string       `json:"gameId"`
	GameResult model.Result `json:"gameResult"`
	Winner     string       `json:"winner"`
}

type findMatchPayload struct {
	PreferredColor model.Color `json:"preferredColor"`
}

type gameJoined struct {
	GameID string      `json:"gameId"`
	Game   *model.Game `json:"game"`
}

// playerRef identifies a player to the rest of a room.
type playerRef struct {
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
}

// moveMade echoes the move exactly as it was stored.
type moveMade struct {
	GameID string          `json:"gameId"`
	Move   json.RawMessage `json:"move"`
	FEN    string          `json:"fen"`
	UserID string          `json:"userId"`
}

type gameEnded struct {
	GameID     string        `json:"gameId"`
	GameResult *model.Result `json:"gameResult"`
	Winner     *string       `json:"winner"`
}

type matchFound struct {
	GameID   string      `json:"gameId"`
	Color    model.Color `json:"color"`
	Opponent string      `json:"opponent"`
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Event   string `json:"event,omitempty"`
}
