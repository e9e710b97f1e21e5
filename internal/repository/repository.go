// Package repository declares the storage contracts the services depend on.
//
// Services receive these interfaces, never a concrete store, so the sqlite
// implementation can be swapped for another durable store (or a fake in
// tests) without touching business logic.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/casalena404/crypto-chess/internal/model"
)

// ErrTicketGone is returned by TicketRepository.RemovePair when either ticket
// was already removed. Callers treat it as "this pair is no longer available".
var ErrTicketGone = errors.New("ticket no longer queued")

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
}

type GameRepository interface {
	CreateGame(ctx context.Context, game *model.Game) error
	GetGame(ctx context.Context, id string) (*model.Game, error)
	ListGamesByPlayer(ctx context.Context, userID string) ([]model.Game, error)
	UpdateGame(ctx context.Context, game *model.Game) error
}

// TicketRepository is the matchmaking queue. Implementations keep tickets in
// insertion order and hold at most one ticket per user.
type TicketRepository interface {
	// Put stores t, replacing any ticket already held by t.UserID.
	Put(ctx context.Context, t *model.Ticket) error
	// Restore puts back a ticket taken by RemovePair at its place by
	// CreatedAt. It is a no-op when the user has queued again since.
	Restore(ctx context.Context, t *model.Ticket) error
	GetByUser(ctx context.Context, userID string) (*model.Ticket, error)
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	// List returns tickets in FIFO order.
	List(ctx context.Context) ([]model.Ticket, error)
	// RemoveByUser deletes the user's ticket and reports whether one existed.
	RemoveByUser(ctx context.Context, userID string) (bool, error)
	// RemovePair deletes both tickets in one step, or neither.
	RemovePair(ctx context.Context, a, b string) error
	// RemoveOlderThan deletes tickets created before cutoff and returns how many.
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
