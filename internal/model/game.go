package model

import (
	"encoding/json"
	"time"
)

// Color is a side of the board, or a matchmaking preference.
type Color string

const (
	White  Color = "white"
	Black  Color = "black"
	Random Color = "random"
)

// Valid reports whether c is one of white, black or random.
func (c Color) Valid() bool {
	return c == White || c == Black || c == Random
}

// Result is the terminal outcome of a game.
type Result string

const (
	WhiteWins Result = "white-wins"
	BlackWins Result = "black-wins"
	Draw      Result = "draw"
	Abandoned Result = "abandoned"
)

func (r Result) Valid() bool {
	switch r {
	case WhiteWins, BlackWins, Draw, Abandoned:
		return true
	}
	return false
}

// Game is one chess game between two users.
//
// FEN is the position as last reported by a client; the server treats it as
// an opaque string. Moves holds each move as the client sent it, usually a
// SAN string or a {from, to, piece, color} object. Moves is append-only. Once GameOver is set no further
// moves are accepted, but the record itself is never deleted.
type Game struct {
	ID           string            `json:"id"`
	White        string            `json:"white"`
	Black        string            `json:"black"`
	FEN          string            `json:"fen"`
	Moves        []json.RawMessage `json:"moves"`
	GameOver     bool              `json:"gameOver"`
	GameResult   *Result           `json:"gameResult"`
	Winner       *string           `json:"winner"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
}

// IsPlayer reports whether userID sits on either side of the board.
func (g *Game) IsPlayer(userID string) bool {
	return userID != "" && (g.White == userID || g.Black == userID)
}
