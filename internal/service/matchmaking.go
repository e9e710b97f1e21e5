package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/repository"
)

// DefaultTicketTTL is how long a ticket may wait before it stops counting.
const DefaultTicketTTL = 5 * time.Minute

// MatchNotice tells one player about the game they were paired into.
type MatchNotice struct {
	GameID     string      `json:"gameId"`
	UserID     string      `json:"-"`
	Color      model.Color `json:"color"`
	OpponentID string      `json:"opponentId"`
	Opponent   string      `json:"opponent"`
}

// MatchNotifier delivers match notices. It is called from its own
// goroutine after the game exists; a failed delivery never undoes the game.
type MatchNotifier interface {
	NotifyMatch(n MatchNotice)
}

// NameResolver turns a user id into something to show an opponent.
type NameResolver interface {
	DisplayName(ctx context.Context, userID, fallback string) string
}

// MatchmakingService queues tickets and pairs them into games.
//
// Submitting a ticket and the periodic Sweep both run the same pairing
// routine under mu, so a ticket can be claimed by at most one pair.
// Tickets older than ttl are ignored everywhere tickets are read, and
// EvictStale deletes them for good.
type MatchmakingService struct {
	tickets repository.TicketRepository
	games   *GameService
	names   NameResolver
	ttl     time.Duration
	rec     Recorder
	logger  *slog.Logger

	now      func() time.Time
	coinFlip func() bool

	mu       sync.Mutex
	notifier MatchNotifier
}

func NewMatchmakingService(
	tickets repository.TicketRepository,
	games *GameService,
	names NameResolver,
	ttl time.Duration,
	rec Recorder,
	logger *slog.Logger,
) *MatchmakingService {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &MatchmakingService{
		tickets:  tickets,
		games:    games,
		names:    names,
		ttl:      ttl,
		rec:      orNop(rec),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		coinFlip: func() bool { return rand.IntN(2) == 0 },
	}
}

// SetNotifier installs the receiver of match notices. The realtime hub is
// built after this service, so it registers itself here.
func (s *MatchmakingService) SetNotifier(n MatchNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// SubmitTicket queues a ticket for userID, replacing any earlier one, and
// immediately tries to pair it. The returned game is nil when no opponent
// was available.
func (s *MatchmakingService) SubmitTicket(ctx context.Context, userID string, color model.Color) (*model.Ticket, *model.Game, error) {
	if userID == "" {
		return nil, nil, apperror.Unauthorized("authentication required")
	}
	if color == "" {
		color = model.Random
	}
	if !color.Valid() {
		return nil, nil, apperror.ValidationFailed("preferredColor",
			"preferred color must be one of white, black, random")
	}

	t := &model.Ticket{
		ID:             uuid.NewString(),
		UserID:         userID,
		PreferredColor: color,
		CreatedAt:      s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tickets.Put(ctx, t); err != nil {
		return nil, nil, fmt.Errorf("service/matchmaking: queueing ticket: %w", err)
	}
	s.logger.Info("ticket submitted",
		slog.String("userID", userID),
		slog.String("ticketID", t.ID),
		slog.String("preferredColor", string(color)),
	)

	game, err := s.pairLocked(ctx, *t)
	if err != nil {
		return t, nil, err
	}
	s.recordQueueLocked(ctx)
	return t, game, nil
}

// CancelTicket drops the user's ticket. Cancelling with no ticket queued is
// not an error; the bool reports whether one was removed.
func (s *MatchmakingService) CancelTicket(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.tickets.RemoveByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("service/matchmaking: cancelling ticket: %w", err)
	}
	if removed {
		s.logger.Info("ticket cancelled", slog.String("userID", userID))
		s.recordQueueLocked(ctx)
	}
	return removed, nil
}

// DeleteTicket removes ticketID on behalf of userID, who must own it.
func (s *MatchmakingService) DeleteTicket(ctx context.Context, userID, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if t.Stale(s.now(), s.ttl) {
		return apperror.NotFound("ticket", ticketID)
	}
	if t.UserID != userID {
		return apperror.Forbidden("access denied to this ticket")
	}
	if _, err := s.tickets.RemoveByUser(ctx, userID); err != nil {
		return fmt.Errorf("service/matchmaking: deleting ticket: %w", err)
	}
	s.recordQueueLocked(ctx)
	return nil
}

// ListTickets returns the waiting tickets, oldest first.
func (s *MatchmakingService) ListTickets(ctx context.Context) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveTicketsLocked(ctx)
}

// OnlineCount is the number of players currently searching.
func (s *MatchmakingService) OnlineCount(ctx context.Context) (int, error) {
	live, err := s.ListTickets(ctx)
	if err != nil {
		return 0, err
	}
	return len(live), nil
}

// Sweep tries to pair every waiting ticket, oldest first, and returns how
// many games it created.
func (s *MatchmakingService) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.liveTicketsLocked(ctx)
	if err != nil {
		return 0, err
	}

	paired := make(map[string]bool)
	created := 0
	for _, t := range snapshot {
		if paired[t.ID] {
			continue
		}
		game, err := s.pairLocked(ctx, t)
		if err != nil {
			s.logger.Error("pairing failed during sweep",
				slog.String("ticketID", t.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if game == nil {
			continue
		}
		created++
		for _, other := range snapshot {
			if game.IsPlayer(other.UserID) {
				paired[other.ID] = true
			}
		}
	}

	s.recordQueueLocked(ctx)
	return created, nil
}

// EvictStale deletes tickets that have outlived the ttl.
func (s *MatchmakingService) EvictStale(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.tickets.RemoveOlderThan(ctx, s.now().Add(-s.ttl).Add(time.Nanosecond))
	if err != nil {
		return 0, fmt.Errorf("service/matchmaking: evicting stale tickets: %w", err)
	}
	if n > 0 {
		s.rec.TicketsEvicted(n)
		s.logger.Info("evicted stale tickets", slog.Int("count", n))
		s.recordQueueLocked(ctx)
	}
	return n, nil
}

// pairLocked looks for the first waiting ticket compatible with t. On a
// match both tickets leave the queue together and a game is created.
// Caller holds s.mu.
func (s *MatchmakingService) pairLocked(ctx context.Context, t model.Ticket) (*model.Game, error) {
	queue, err := s.liveTicketsLocked(ctx)
	if err != nil {
		return nil, err
	}

	queued := false
	for _, q := range queue {
		if q.ID == t.ID {
			queued = true
			break
		}
	}
	if !queued {
		return nil, nil
	}

	for _, o := range queue {
		if o.UserID == t.UserID || !compatible(t.PreferredColor, o.PreferredColor) {
			continue
		}

		if err := s.tickets.RemovePair(ctx, t.ID, o.ID); err != nil {
			if errors.Is(err, repository.ErrTicketGone) {
				continue
			}
			return nil, fmt.Errorf("service/matchmaking: claiming pair: %w", err)
		}

		seats := assignColors(t, o, s.coinFlip)
		game, err := s.games.CreateGame(ctx, seats, SourceMatchmaking)
		if err != nil {
			s.requeueLocked(ctx, t, o)
			return nil, fmt.Errorf("service/matchmaking: creating matched game: %w", err)
		}

		oldest := t.CreatedAt
		if o.CreatedAt.Before(oldest) {
			oldest = o.CreatedAt
		}
		s.rec.MatchMade(s.now().Sub(oldest))
		s.logger.Info("match found",
			slog.String("gameID", game.ID),
			slog.String("white", game.White),
			slog.String("black", game.Black),
		)

		if s.notifier != nil {
			go s.notify(context.WithoutCancel(ctx), s.notifier, game)
		}
		return game, nil
	}
	return nil, nil
}

// requeueLocked puts a claimed pair back after game creation failed. Both
// tickets keep their original place in line.
func (s *MatchmakingService) requeueLocked(ctx context.Context, tickets ...model.Ticket) {
	for _, t := range tickets {
		if err := s.tickets.Restore(ctx, &t); err != nil {
			s.logger.Error("failed to requeue ticket",
				slog.String("ticketID", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *MatchmakingService) liveTicketsLocked(ctx context.Context) ([]model.Ticket, error) {
	all, err := s.tickets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/matchmaking: listing tickets: %w", err)
	}
	now := s.now()
	live := make([]model.Ticket, 0, len(all))
	for _, t := range all {
		if !t.Stale(now, s.ttl) {
			live = append(live, t)
		}
	}
	return live, nil
}

func (s *MatchmakingService) recordQueueLocked(ctx context.Context) {
	if live, err := s.liveTicketsLocked(ctx); err == nil {
		s.rec.TicketsQueued(len(live))
	}
}

func (s *MatchmakingService) notify(ctx context.Context, n MatchNotifier, game *model.Game) {
	whiteName := s.displayName(ctx, game.White)
	blackName := s.displayName(ctx, game.Black)

	n.NotifyMatch(MatchNotice{
		GameID:     game.ID,
		UserID:     game.White,
		Color:      model.White,
		OpponentID: game.Black,
		Opponent:   blackName,
	})
	n.NotifyMatch(MatchNotice{
		GameID:     game.ID,
		UserID:     game.Black,
		Color:      model.Black,
		OpponentID: game.White,
		Opponent:   whiteName,
	})
}

func (s *MatchmakingService) displayName(ctx context.Context, userID string) string {
	if s.names == nil {
		return "Opponent"
	}
	return s.names.DisplayName(ctx, userID, "Opponent")
}

// compatible reports whether two preferences can share a board: either side
// is random, or they want different colors.
func compatible(a, b model.Color) bool {
	return a == model.Random || b == model.Random || a != b
}

// assignColors seats t and o. A concrete preference on either side decides,
// checked from t's point of view first; two random tickets flip a coin.
func assignColors(t, o model.Ticket, coinFlip func() bool) ColorAssignment {
	tWhite := ColorAssignment{White: t.UserID, Black: o.UserID}
	oWhite := ColorAssignment{White: o.UserID, Black: t.UserID}

	switch {
	case t.PreferredColor == model.White || o.PreferredColor == model.Black:
		return tWhite
	case t.PreferredColor == model.Black || o.PreferredColor == model.White:
		return oWhite
	case coinFlip():
		return tWhite
	default:
		return oWhite
	}
}
