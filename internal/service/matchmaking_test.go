package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/repository/memory"
	"github.com/casalena404/crypto-chess/internal/rules"
)

type mmFixture struct {
	svc      *MatchmakingService
	tickets  *memory.TicketStore
	games    *fakeGameRepo
	notifier *chanNotifier
	rec      *countingRecorder
	clock    *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newMMFixture(t *testing.T) *mmFixture {
	t.Helper()
	users := newFakeUserRepo()
	for _, id := range []string{"a", "b", "c", "d"} {
		users.add(id, "Player "+id)
	}

	f := &mmFixture{
		tickets:  memory.NewTicketStore(),
		games:    newFakeGameRepo(),
		notifier: newChanNotifier(),
		rec:      newCountingRecorder(),
		clock:    &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	gameSvc := NewGameService(f.games, users, rules.Trusting{}, f.rec, discardLogger())
	names := NewAuthService(users, nil, nil, discardLogger())
	f.svc = NewMatchmakingService(f.tickets, gameSvc, names, DefaultTicketTTL, f.rec, discardLogger())
	f.svc.now = f.clock.Now
	f.svc.coinFlip = func() bool { return true }
	f.svc.SetNotifier(f.notifier)
	return f
}

func (f *mmFixture) submit(t *testing.T, user string, color model.Color) (*model.Ticket, *model.Game) {
	t.Helper()
	ticket, game, err := f.svc.SubmitTicket(context.Background(), user, color)
	require.NoError(t, err)
	return ticket, game
}

// noticesFor collects the two notices of one match, keyed by user.
func (f *mmFixture) noticesFor(t *testing.T) map[string]MatchNotice {
	t.Helper()
	out := make(map[string]MatchNotice)
	for range 2 {
		n, ok := f.notifier.next()
		require.True(t, ok, "timed out waiting for match notice")
		out[n.UserID] = n
	}
	return out
}

func TestSubmitTicket_WhiteMeetsRandom(t *testing.T) {
	f := newMMFixture(t)

	_, g := f.submit(t, "a", model.White)
	assert.Nil(t, g, "a lone ticket cannot be matched")

	_, g = f.submit(t, "b", model.Random)
	require.NotNil(t, g)
	assert.Equal(t, "a", g.White)
	assert.Equal(t, "b", g.Black)
	assert.Equal(t, 1, f.games.count())
	assert.Equal(t, 0, f.tickets.Len(), "both tickets must be consumed")

	notices := f.noticesFor(t)
	assert.Equal(t, MatchNotice{GameID: g.ID, UserID: "a", Color: model.White, OpponentID: "b", Opponent: "Player b"}, notices["a"])
	assert.Equal(t, MatchNotice{GameID: g.ID, UserID: "b", Color: model.Black, OpponentID: "a", Opponent: "Player a"}, notices["b"])
	assert.Equal(t, 1, f.rec.matches)
	assert.Equal(t, 1, f.rec.created[SourceMatchmaking])
}

func TestSubmitTicket_SameConcreteColorsWait(t *testing.T) {
	f := newMMFixture(t)

	f.submit(t, "a", model.White)
	_, g := f.submit(t, "b", model.White)

	assert.Nil(t, g)
	assert.Equal(t, 2, f.tickets.Len())
	assert.Equal(t, 0, f.games.count())
}

func TestSubmitTicket_FirstCompatibleWins(t *testing.T) {
	f := newMMFixture(t)

	f.submit(t, "a", model.White)
	f.submit(t, "b", model.Black)
	// a and b paired already; queue is empty again.
	f.submit(t, "c", model.Black)
	f.submit(t, "d", model.White)

	games, err := f.games.ListGamesByPlayer(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "d", games[0].White)
	assert.Equal(t, "c", games[0].Black)
}

func TestSubmitTicket_PicksOldestCompatible(t *testing.T) {
	f := newMMFixture(t)

	f.submit(t, "a", model.White)
	f.submit(t, "b", model.White)
	_, g := f.submit(t, "c", model.Random)

	require.NotNil(t, g)
	assert.Equal(t, "a", g.White, "FIFO: the oldest compatible ticket is paired")
	assert.Equal(t, "c", g.Black)

	list, err := f.svc.ListTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].UserID)
}

func TestSubmitTicket_ResubmitReplaces(t *testing.T) {
	f := newMMFixture(t)

	first, _ := f.submit(t, "a", model.White)
	second, _ := f.submit(t, "a", model.Black)

	list, err := f.svc.ListTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
	assert.NotEqual(t, first.ID, second.ID)

	// Only the newer (black) preference is used for pairing.
	_, g := f.submit(t, "b", model.Random)
	require.NotNil(t, g)
	assert.Equal(t, "b", g.White)
	assert.Equal(t, "a", g.Black)
}

func TestSubmitTicket_Validation(t *testing.T) {
	f := newMMFixture(t)

	_, _, err := f.svc.SubmitTicket(context.Background(), "a", model.Color("purple"))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	ticket, _ := f.submit(t, "a", "")
	assert.Equal(t, model.Random, ticket.PreferredColor)
}

func TestAssignColors(t *testing.T) {
	tk := func(user string, c model.Color) model.Ticket {
		return model.Ticket{ID: user, UserID: user, PreferredColor: c}
	}
	heads := func() bool { return true }
	tails := func() bool { return false }

	cases := []struct {
		name      string
		t, o      model.Color
		coin      func() bool
		wantWhite string
	}{
		{"t white, o random", model.White, model.Random, heads, "t"},
		{"t random, o black", model.Random, model.Black, tails, "t"},
		{"t black, o random", model.Black, model.Random, heads, "o"},
		{"t random, o white", model.Random, model.White, heads, "o"},
		{"t white, o black", model.White, model.Black, tails, "t"},
		{"both random heads", model.Random, model.Random, heads, "t"},
		{"both random tails", model.Random, model.Random, tails, "o"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seats := assignColors(tk("t", tc.t), tk("o", tc.o), tc.coin)
			assert.Equal(t, tc.wantWhite, seats.White)
			assert.NotEqual(t, seats.White, seats.Black)
		})
	}
}

func TestCompatible(t *testing.T) {
	assert.True(t, compatible(model.White, model.Black))
	assert.True(t, compatible(model.Random, model.White))
	assert.True(t, compatible(model.Black, model.Random))
	assert.True(t, compatible(model.Random, model.Random))
	assert.False(t, compatible(model.White, model.White))
	assert.False(t, compatible(model.Black, model.Black))
}

func TestCancelTicket(t *testing.T) {
	f := newMMFixture(t)
	ctx := context.Background()

	removed, err := f.svc.CancelTicket(ctx, "a")
	require.NoError(t, err)
	assert.False(t, removed, "cancel without a ticket is a no-op")

	f.submit(t, "a", model.White)
	removed, err = f.svc.CancelTicket(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	n, err := f.svc.OnlineCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeleteTicket(t *testing.T) {
	f := newMMFixture(t)
	ctx := context.Background()
	ticket, _ := f.submit(t, "a", model.White)

	assert.ErrorIs(t, f.svc.DeleteTicket(ctx, "b", ticket.ID), apperror.ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteTicket(ctx, "a", "missing"), apperror.ErrNotFound)
	require.NoError(t, f.svc.DeleteTicket(ctx, "a", ticket.ID))
	assert.ErrorIs(t, f.svc.DeleteTicket(ctx, "a", ticket.ID), apperror.ErrNotFound)
}

func TestStaleTicketsAreInvisible(t *testing.T) {
	f := newMMFixture(t)
	ctx := context.Background()

	old, _ := f.submit(t, "a", model.White)
	f.clock.Advance(DefaultTicketTTL)

	list, err := f.svc.ListTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err := f.svc.OnlineCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.ErrorIs(t, f.svc.DeleteTicket(ctx, "a", old.ID), apperror.ErrNotFound)

	_, g := f.submit(t, "b", model.Random)
	assert.Nil(t, g, "a stale ticket must never be paired")
}

func TestEvictStale(t *testing.T) {
	f := newMMFixture(t)
	ctx := context.Background()

	f.submit(t, "a", model.White)
	f.clock.Advance(4 * time.Minute)
	f.submit(t, "b", model.White)
	f.clock.Advance(time.Minute)

	n, err := f.svc.EvictStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.tickets.Len())
	assert.Equal(t, 1, f.rec.evicted)
}

func TestSweep_PairsWaitingTickets(t *testing.T) {
	f := newMMFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	// Queue directly so the on-submit pairing does not run.
	for i, tc := range []struct {
		user  string
		color model.Color
	}{
		{"a", model.White},
		{"b", model.White},
		{"c", model.Black},
		{"d", model.Random},
	} {
		require.NoError(t, f.tickets.Put(ctx, &model.Ticket{
			ID: fmt.Sprintf("t%d", i), UserID: tc.user, PreferredColor: tc.color, CreatedAt: now,
		}))
	}

	created, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, f.tickets.Len())

	ga, _ := f.games.ListGamesByPlayer(ctx, "a")
	require.Len(t, ga, 1)
	assert.Equal(t, "c", ga[0].Black, "a pairs with the first compatible ticket, c")

	gb, _ := f.games.ListGamesByPlayer(ctx, "b")
	require.Len(t, gb, 1)
	assert.Equal(t, "d", gb[0].Black)

	created, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created, "a second sweep finds nothing to do")
}

func TestSweepAndSubmitNeverDoublePair(t *testing.T) {
	f := newMMFixture(t)
	ctx := context.Background()

	users := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.SubmitTicket(ctx, u, model.Random)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Sweep(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, u := range users {
		games, err := f.games.ListGamesByPlayer(ctx, u)
		require.NoError(t, err)
		seen[u] = len(games)
	}
	for u, n := range seen {
		assert.Equal(t, 1, n, "user %s should be in exactly one game", u)
	}
	assert.Equal(t, 2, f.games.count())
}

func TestPairing_GameCreationFailureRequeues(t *testing.T) {
	f := newMMFixture(t)
	f.games.createErr = errors.New("disk full")

	f.submit(t, "a", model.White)
	_, _, err := f.svc.SubmitTicket(context.Background(), "b", model.Black)
	require.Error(t, err)

	assert.Equal(t, 2, f.tickets.Len(), "tickets go back to the queue when the game cannot be stored")
}

func TestPairing_RequeueKeepsQueuePosition(t *testing.T) {
	f := newMMFixture(t)

	f.submit(t, "c", model.White)
	f.clock.Advance(time.Second)
	f.submit(t, "d", model.White)
	f.clock.Advance(time.Second)

	f.games.createErr = errors.New("disk full")
	_, _, err := f.svc.SubmitTicket(context.Background(), "b", model.Black)
	require.Error(t, err)

	list, err := f.svc.ListTickets(context.Background())
	require.NoError(t, err)
	users := make([]string, 0, len(list))
	for _, tk := range list {
		users = append(users, tk.UserID)
	}
	assert.Equal(t, []string{"c", "d", "b"}, users, "c keeps its place ahead of d")
}
