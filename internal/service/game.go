// Package service contains the business rules of the chess server.
//
//	Handler / realtime hub → Service → Repository
//
// Services take primitives and return domain errors from apperror; they know
// nothing about HTTP or websockets, so the REST handlers and the realtime
// event handlers share one set of rules.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/repository"
	"github.com/casalena404/crypto-chess/internal/rules"
)

// MaxMoveBytes bounds the encoded size of one move. Moves are otherwise
// opaque: a SAN string and a {from, to, piece, color} object are both fine.
const MaxMoveBytes = 1024

// ColorAssignment names the player on each side of a new game. It is
// decided before CreateGame is called, never inside it.
type ColorAssignment struct {
	White string
	Black string
}

// GameUpdate carries the optional fields of PUT /games/{id}. Nil fields are
// left untouched; a JSON null move counts as absent.
type GameUpdate struct {
	FEN        *string         `json:"fen"`
	Move       json.RawMessage `json:"move"`
	GameOver   *bool           `json:"gameOver"`
	Winner     *string         `json:"winner"`
	GameResult *model.Result   `json:"gameResult"`
}

// GameService owns game records: creation, moves, and results.
//
// Every read-modify-write of a game runs under a per-game lock, so two moves
// on the same game never interleave while moves on different games proceed
// in parallel.
type GameService struct {
	games     repository.GameRepository
	users     repository.UserRepository
	positions rules.PositionChecker
	locks     *keyedMutex
	rec       Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewGameService(
	games repository.GameRepository,
	users repository.UserRepository,
	positions rules.PositionChecker,
	rec Recorder,
	logger *slog.Logger,
) *GameService {
	if positions == nil {
		positions = rules.Trusting{}
	}
	return &GameService{
		games:     games,
		users:     users,
		positions: positions,
		locks:     newKeyedMutex(),
		rec:       orNop(rec),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateGame starts a new game from the standard position.
func (s *GameService) CreateGame(ctx context.Context, seats ColorAssignment, source string) (*model.Game, error) {
	if seats.White == "" || seats.Black == "" {
		return nil, apperror.ValidationFailed("players", "a game needs two players")
	}
	if seats.White == seats.Black {
		return nil, apperror.ValidationFailed("opponentId", "cannot play against yourself")
	}

	game := &model.Game{
		White: seats.White,
		Black: seats.Black,
		FEN:   rules.StartingFEN,
		Moves: []json.RawMessage{},
	}
	if err := s.games.CreateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("service/game: creating game: %w", err)
	}

	s.rec.GameCreated(source)
	s.logger.Info("game created",
		slog.String("gameID", game.ID),
		slog.String("white", game.White),
		slog.String("black", game.Black),
		slog.String("source", source),
	)
	return game, nil
}

// CreateInvite creates a game between the caller and opponentID.
// color is the caller's side: black seats the caller as black, anything
// else seats the caller as white.
func (s *GameService) CreateInvite(ctx context.Context, callerID, opponentID string, color model.Color) (*model.Game, error) {
	opponentID = strings.TrimSpace(opponentID)
	if opponentID == "" {
		return nil, apperror.ValidationFailed("opponentId", "opponent ID is required")
	}
	if _, err := s.users.GetUserByID(ctx, opponentID); err != nil {
		return nil, err
	}

	seats := ColorAssignment{White: callerID, Black: opponentID}
	if color == model.Black {
		seats = ColorAssignment{White: opponentID, Black: callerID}
	}
	return s.CreateGame(ctx, seats, SourceInvite)
}

// GetGame returns the game if userID plays in it.
func (s *GameService) GetGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, apperror.ValidationFailed("gameId", "game ID is required")
	}

	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !game.IsPlayer(userID) {
		return nil, apperror.Forbidden("access denied to this game")
	}
	return game, nil
}

// ListGames returns every game userID plays in, newest first.
func (s *GameService) ListGames(ctx context.Context, userID string) ([]model.Game, error) {
	games, err := s.games.ListGamesByPlayer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/game: listing games: %w", err)
	}
	return games, nil
}

// ApplyMove appends move and stores fen as the new position. The move is
// recorded as given and not checked for legality; the clients' rules engine
// owns that.
func (s *GameService) ApplyMove(ctx context.Context, gameID, userID string, move json.RawMessage, fen string) (*model.Game, error) {
	if isAbsent(move) {
		return nil, apperror.ValidationFailed("move", "move is required")
	}
	return s.UpdateGame(ctx, gameID, userID, GameUpdate{Move: move, FEN: &fen})
}

// RecordResult ends the game. Calling it again overwrites the result.
func (s *GameService) RecordResult(ctx context.Context, gameID, userID string, result model.Result, winner string) (*model.Game, error) {
	over := true
	upd := GameUpdate{GameOver: &over, GameResult: &result}
	if winner != "" {
		upd.Winner = &winner
	}
	return s.UpdateGame(ctx, gameID, userID, upd)
}

// UpdateGame applies a partial update in one serialized step.
//
// A move or position on a finished game is rejected with Forbidden, and so
// is an attempt to clear the game-over flag. Result fields may be rewritten
// on a finished game; the last write wins.
func (s *GameService) UpdateGame(ctx context.Context, gameID, userID string, upd GameUpdate) (*model.Game, error) {
	if isAbsent(upd.Move) {
		upd.Move = nil
	}
	if err := s.validateUpdate(upd); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(gameID)
	defer unlock()

	game, err := s.GetGame(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}

	touchesBoard := upd.Move != nil || upd.FEN != nil
	if game.GameOver && (touchesBoard || (upd.GameOver != nil && !*upd.GameOver)) {
		return nil, apperror.Forbidden("game is already over")
	}

	wasOver := game.GameOver
	if upd.Move != nil {
		game.Moves = append(game.Moves, upd.Move)
	}
	if upd.FEN != nil {
		game.FEN = *upd.FEN
	}
	if upd.GameResult != nil {
		r := *upd.GameResult
		game.GameResult = &r
		game.GameOver = true
	}
	if upd.GameOver != nil && *upd.GameOver {
		game.GameOver = true
	}
	if upd.Winner != nil {
		w := *upd.Winner
		game.Winner = &w
		if w == "" {
			game.Winner = nil
		}
	}
	game.LastActivity = s.now()

	if err := s.games.UpdateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("service/game: saving game %s: %w", gameID, err)
	}

	if upd.Move != nil {
		s.rec.MoveApplied()
		s.logger.Debug("move applied",
			slog.String("gameID", gameID),
			slog.String("userID", userID),
			slog.String("move", string(upd.Move)),
			slog.Int("ply", len(game.Moves)),
		)
	}
	if game.GameOver && !wasOver {
		result := model.Result("")
		if game.GameResult != nil {
			result = *game.GameResult
		}
		s.rec.GameEnded(result)
		s.logger.Info("game ended",
			slog.String("gameID", gameID),
			slog.String("result", string(result)),
		)
	}
	return game, nil
}

func (s *GameService) validateUpdate(upd GameUpdate) error {
	if upd.Move != nil {
		if len(upd.Move) > MaxMoveBytes {
			return apperror.ValidationFailed("move",
				fmt.Sprintf("move must be %d bytes or less", MaxMoveBytes))
		}
		if !json.Valid(upd.Move) {
			return apperror.ValidationFailed("move", "move is not valid JSON")
		}
	}
	if upd.FEN != nil {
		if err := s.positions.CheckFEN(*upd.FEN); err != nil {
			if errors.Is(err, rules.ErrMalformedFEN) {
				return apperror.ValidationFailed("fen", "position is not a valid FEN string")
			}
			return err
		}
	}
	if upd.GameResult != nil && !upd.GameResult.Valid() {
		return apperror.ValidationFailed("gameResult",
			"game result must be one of white-wins, black-wins, draw, abandoned")
	}
	return nil
}

func isAbsent(move json.RawMessage) bool {
	m := bytes.TrimSpace(move)
	return len(m) == 0 || bytes.Equal(m, []byte("null"))
}
