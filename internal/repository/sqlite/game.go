package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/repository"
)

var _ repository.GameRepository = (*DB)(nil)

const gameColumns = `id, white_id, black_id, fen, moves, game_over, game_result, winner_id, created_at, last_activity`

// CreateGame inserts a new game. ID and timestamps are assigned here.
func (db *DB) CreateGame(ctx context.Context, game *model.Game) error {
	now := time.Now().UTC()
	game.ID = uuid.NewString()
	game.CreatedAt = now
	game.LastActivity = now
	if game.Moves == nil {
		game.Moves = []json.RawMessage{}
	}

	moves, err := json.Marshal(game.Moves)
	if err != nil {
		return fmt.Errorf("sqlite: encoding moves: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO games (`+gameColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		game.ID,
		game.White,
		game.Black,
		game.FEN,
		string(moves),
		game.GameOver,
		nullResult(game.GameResult),
		nullString(game.Winner),
		game.CreatedAt,
		game.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting game: %w", err)
	}
	return nil
}

// GetGame retrieves a game by id. Returns apperror.ErrNotFound if missing.
func (db *DB) GetGame(ctx context.Context, id string) (*model.Game, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = ?`, id)

	g, err := scanGame(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("game", id)
		}
		return nil, fmt.Errorf("sqlite: getting game %s: %w", id, err)
	}
	return g, nil
}

// ListGamesByPlayer returns every game userID plays in, newest first.
func (db *DB) ListGamesByPlayer(ctx context.Context, userID string) ([]model.Game, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+gameColumns+`
		 FROM games
		 WHERE white_id = ? OR black_id = ?
		 ORDER BY created_at DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing games for %s: %w", userID, err)
	}
	defer rows.Close()

	games := make([]model.Game, 0)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning game row: %w", err)
		}
		games = append(games, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating games: %w", err)
	}
	return games, nil
}

// UpdateGame writes the mutable state of a game: position, moves, and result.
// Player slots and created_at are immutable.
func (db *DB) UpdateGame(ctx context.Context, game *model.Game) error {
	moves, err := json.Marshal(game.Moves)
	if err != nil {
		return fmt.Errorf("sqlite: encoding moves: %w", err)
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE games
		 SET fen = ?, moves = ?, game_over = ?, game_result = ?, winner_id = ?, last_activity = ?
		 WHERE id = ?`,
		game.FEN,
		string(moves),
		game.GameOver,
		nullResult(game.GameResult),
		nullString(game.Winner),
		game.LastActivity,
		game.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating game %s: %w", game.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("game", game.ID)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanGame(s scanner) (*model.Game, error) {
	var (
		g      model.Game
		moves  string
		result sql.NullString
		winner sql.NullString
	)
	err := s.Scan(
		&g.ID,
		&g.White,
		&g.Black,
		&g.FEN,
		&moves,
		&g.GameOver,
		&result,
		&winner,
		&g.CreatedAt,
		&g.LastActivity,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(moves), &g.Moves); err != nil {
		return nil, fmt.Errorf("decoding moves of game %s: %w", g.ID, err)
	}
	if g.Moves == nil {
		g.Moves = []json.RawMessage{}
	}
	if result.Valid {
		r := model.Result(result.String)
		g.GameResult = &r
	}
	if winner.Valid {
		w := winner.String
		g.Winner = &w
	}
	return &g, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullResult(r *model.Result) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}
