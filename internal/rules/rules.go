// Package rules holds the little chess knowledge the server needs.
//
// Move legality belongs to the clients. The server only knows the starting
// position and, optionally, whether a reported position is well-formed FEN.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrMalformedFEN is returned by a strict checker for unparsable positions.
var ErrMalformedFEN = errors.New("malformed FEN")

// PositionChecker vets the position a client reports after a move.
type PositionChecker interface {
	CheckFEN(fen string) error
}

// NewPositionChecker returns the strict checker when strict is set and the
// trusting one otherwise.
func NewPositionChecker(strict bool) PositionChecker {
	if strict {
		return Strict{}
	}
	return Trusting{}
}

// Trusting accepts any non-empty position string.
type Trusting struct{}

func (Trusting) CheckFEN(fen string) error {
	if strings.TrimSpace(fen) == "" {
		return fmt.Errorf("%w: empty position", ErrMalformedFEN)
	}
	return nil
}

// Strict additionally requires the position to decode as FEN.
type Strict struct{}

func (Strict) CheckFEN(fen string) error {
	if err := (Trusting{}).CheckFEN(fen); err != nil {
		return err
	}
	if _, err := chess.FEN(fen); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFEN, err)
	}
	return nil
}
