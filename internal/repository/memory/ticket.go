// Package memory holds the process-local matchmaking queue.
//
// Tickets are ephemeral: a restart empties the queue and clients simply
// search again, so there is nothing to persist.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/repository"
)

var _ repository.TicketRepository = (*TicketStore)(nil)

// TicketStore keeps tickets in arrival order behind a single mutex.
// byUser and byID index into the same set of tickets as queue.
type TicketStore struct {
	mu     sync.Mutex
	queue  []*model.Ticket
	byUser map[string]*model.Ticket
	byID   map[string]*model.Ticket
}

func NewTicketStore() *TicketStore {
	return &TicketStore{
		byUser: make(map[string]*model.Ticket),
		byID:   make(map[string]*model.Ticket),
	}
}

// Put enqueues t at the tail. A ticket the user already held is dropped,
// so re-submitting moves the user to the back of the line.
func (s *TicketStore) Put(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byUser[t.UserID]; ok {
		s.removeLocked(old)
	}

	stored := *t
	s.queue = append(s.queue, &stored)
	s.byUser[stored.UserID] = &stored
	s.byID[stored.ID] = &stored
	return nil
}

// Restore reinserts t ahead of every ticket created after it.
func (s *TicketStore) Restore(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUser[t.UserID]; ok {
		return nil
	}

	stored := *t
	at := len(s.queue)
	for i, q := range s.queue {
		if q.CreatedAt.After(stored.CreatedAt) {
			at = i
			break
		}
	}
	s.queue = slices.Insert(s.queue, at, &stored)
	s.byUser[stored.UserID] = &stored
	s.byID[stored.ID] = &stored
	return nil
}

func (s *TicketStore) GetByUser(_ context.Context, userID string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byUser[userID]
	if !ok {
		return nil, apperror.NotFound("ticket", "for user "+userID)
	}
	cp := *t
	return &cp, nil
}

func (s *TicketStore) GetByID(_ context.Context, id string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, apperror.NotFound("ticket", id)
	}
	cp := *t
	return &cp, nil
}

// List returns a snapshot of the queue, oldest first.
func (s *TicketStore) List(_ context.Context) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Ticket, 0, len(s.queue))
	for _, t := range s.queue {
		out = append(out, *t)
	}
	return out, nil
}

func (s *TicketStore) RemoveByUser(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byUser[userID]
	if !ok {
		return false, nil
	}
	s.removeLocked(t)
	return true, nil
}

// RemovePair removes tickets a and b together. If either is already gone
// nothing is removed and repository.ErrTicketGone is returned.
func (s *TicketStore) RemovePair(_ context.Context, a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ta, okA := s.byID[a]
	tb, okB := s.byID[b]
	if !okA || !okB || a == b {
		return repository.ErrTicketGone
	}
	s.removeLocked(ta)
	s.removeLocked(tb)
	return nil
}

func (s *TicketStore) RemoveOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.queue[:0]
	removed := 0
	for _, t := range s.queue {
		if t.CreatedAt.Before(cutoff) {
			delete(s.byUser, t.UserID)
			delete(s.byID, t.ID)
			removed++
			continue
		}
		kept = append(kept, t)
	}
	clear(s.queue[len(kept):])
	s.queue = kept
	return removed, nil
}

// Len is the number of queued tickets, stale or not.
func (s *TicketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *TicketStore) removeLocked(t *model.Ticket) {
	delete(s.byUser, t.UserID)
	delete(s.byID, t.ID)
	for i, q := range s.queue {
		if q == t {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}
