package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/repository"
)

func ticket(id, user string, color model.Color, at time.Time) *model.Ticket {
	return &model.Ticket{ID: id, UserID: user, PreferredColor: color, CreatedAt: at}
}

func ids(ts []model.Ticket) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestPut_KeepsFIFOOrder(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Put(ctx, ticket("t1", "a", model.White, now)))
	require.NoError(t, s.Put(ctx, ticket("t2", "b", model.Black, now)))
	require.NoError(t, s.Put(ctx, ticket("t3", "c", model.Random, now)))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(list))
}

func TestPut_ReplacesUsersTicket(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Put(ctx, ticket("t1", "a", model.White, now)))
	require.NoError(t, s.Put(ctx, ticket("t2", "b", model.White, now)))
	require.NoError(t, s.Put(ctx, ticket("t3", "a", model.Black, now)))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t3"}, ids(list))

	got, err := s.GetByUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.Black, got.PreferredColor)

	_, err = s.GetByID(ctx, "t1")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestGet_NotFound(t *testing.T) {
	s := NewTicketStore()

	_, err := s.GetByUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = s.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, ticket("t1", "a", model.White, time.Now())))

	got, err := s.GetByID(ctx, "t1")
	require.NoError(t, err)
	got.PreferredColor = model.Black

	again, err := s.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.White, again.PreferredColor)
}

func TestRemoveByUser(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, ticket("t1", "a", model.White, time.Now())))

	removed, err := s.RemoveByUser(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveByUser(ctx, "a")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 0, s.Len())
}

func TestRemovePair(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Put(ctx, ticket("t1", "a", model.White, now)))
	require.NoError(t, s.Put(ctx, ticket("t2", "b", model.Black, now)))
	require.NoError(t, s.Put(ctx, ticket("t3", "c", model.Random, now)))

	require.NoError(t, s.RemovePair(ctx, "t1", "t3"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids(list))
}

func TestRemovePair_AllOrNothing(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, ticket("t1", "a", model.White, time.Now())))

	err := s.RemovePair(ctx, "t1", "gone")
	assert.ErrorIs(t, err, repository.ErrTicketGone)
	assert.Equal(t, 1, s.Len(), "surviving ticket must stay queued")

	err = s.RemovePair(ctx, "t1", "t1")
	assert.ErrorIs(t, err, repository.ErrTicketGone)
	assert.Equal(t, 1, s.Len())
}

func TestRemovePair_Concurrent(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Put(ctx, ticket("t1", "a", model.White, now)))
	require.NoError(t, s.Put(ctx, ticket("t2", "b", model.Black, now)))
	require.NoError(t, s.Put(ctx, ticket("t3", "c", model.Black, now)))

	// Two pairings race for t1; exactly one may win.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, other := range []string{"t2", "t3"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.RemovePair(ctx, "t1", other)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, repository.ErrTicketGone)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Len())
}

func TestRemoveOlderThan(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Put(ctx, ticket("old1", "a", model.White, now.Add(-10*time.Minute))))
	require.NoError(t, s.Put(ctx, ticket("new", "b", model.White, now)))
	require.NoError(t, s.Put(ctx, ticket("old2", "c", model.White, now.Add(-6*time.Minute))))

	n, err := s.RemoveOlderThan(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(list))

	_, err = s.GetByUser(ctx, "a")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRestore_KeepsOriginalPlace(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	now := time.Now()
	first := ticket("t1", "a", model.White, now)
	second := ticket("t2", "b", model.Black, now.Add(time.Second))
	require.NoError(t, s.Put(ctx, first))
	require.NoError(t, s.Put(ctx, ticket("t3", "c", model.White, now.Add(2*time.Second))))
	require.NoError(t, s.Put(ctx, second))
	require.NoError(t, s.Put(ctx, ticket("t4", "d", model.White, now.Add(3*time.Second))))

	require.NoError(t, s.RemovePair(ctx, "t1", "t2"))
	require.NoError(t, s.Restore(ctx, second))
	require.NoError(t, s.Restore(ctx, first))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t3", "t2", "t4"}, ids(list))

	got, err := s.GetByUser(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.ID)
}

func TestRestore_SkipsUserWhoQueuedAgain(t *testing.T) {
	s := NewTicketStore()
	ctx := context.Background()
	now := time.Now()
	old := ticket("t1", "a", model.White, now)
	require.NoError(t, s.Put(ctx, old))
	_, err := s.RemoveByUser(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, ticket("t2", "a", model.Black, now.Add(time.Second))))

	require.NoError(t, s.Restore(ctx, old))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids(list))
}
