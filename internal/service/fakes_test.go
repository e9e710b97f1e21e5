package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/model"
)

// fakeUserRepo is an in-memory repository.UserRepository. Hand-written fakes
// keep the tests readable: everything the fake does is right here.
type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]*model.User
	nextID  int

	createErr error
	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return apperror.Conflict("user", user.Email)
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now().UTC()
	user.LastSeen = user.CreatedAt
	stored := *user
	f.byID[user.ID] = &stored
	f.byEmail[user.Email] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byID[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	stored := *user
	f.byID[user.ID] = &stored
	f.byEmail[user.Email] = &stored
	return nil
}

// add seeds a user directly, bypassing the service.
func (f *fakeUserRepo) add(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &model.User{ID: id, Email: id + "@x.com", DisplayName: name, Rating: model.DefaultRating}
	f.byID[id] = u
	f.byEmail[u.Email] = u
}

type fakeGameRepo struct {
	mu      sync.Mutex
	games   map[string]*model.Game
	order   []string
	nextID  int
	updates int

	createErr error
}

func newFakeGameRepo() *fakeGameRepo {
	return &fakeGameRepo{games: make(map[string]*model.Game)}
}

func (f *fakeGameRepo) CreateGame(_ context.Context, g *model.Game) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	g.ID = fmt.Sprintf("game-%d", f.nextID)
	g.CreatedAt = time.Now().UTC()
	g.LastActivity = g.CreatedAt
	f.games[g.ID] = cloneGame(g)
	f.order = append(f.order, g.ID)
	return nil
}

func (f *fakeGameRepo) GetGame(_ context.Context, id string) (*model.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	if !ok {
		return nil, apperror.NotFound("game", id)
	}
	return cloneGame(g), nil
}

func (f *fakeGameRepo) ListGamesByPlayer(_ context.Context, userID string) ([]model.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Game, 0)
	for i := len(f.order) - 1; i >= 0; i-- {
		g := f.games[f.order[i]]
		if g.IsPlayer(userID) {
			out = append(out, *cloneGame(g))
		}
	}
	return out, nil
}

func (f *fakeGameRepo) UpdateGame(_ context.Context, g *model.Game) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.games[g.ID]; !ok {
		return apperror.NotFound("game", g.ID)
	}
	f.games[g.ID] = cloneGame(g)
	f.updates++
	return nil
}

func (f *fakeGameRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.games)
}

func cloneGame(g *model.Game) *model.Game {
	cp := *g
	cp.Moves = append([]json.RawMessage{}, g.Moves...)
	return &cp
}

// chanNotifier records match notices on a channel.
type chanNotifier struct {
	ch chan MatchNotice
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{ch: make(chan MatchNotice, 16)}
}

func (n *chanNotifier) NotifyMatch(notice MatchNotice) {
	n.ch <- notice
}

// next waits for one notice or fails after a second.
func (n *chanNotifier) next() (MatchNotice, bool) {
	select {
	case m := <-n.ch:
		return m, true
	case <-time.After(time.Second):
		return MatchNotice{}, false
	}
}

// countingRecorder counts the events the services report.
type countingRecorder struct {
	mu      sync.Mutex
	created map[string]int
	moves   int
	ended   map[model.Result]int
	matches int
	queued  int
	evicted int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{created: map[string]int{}, ended: map[model.Result]int{}}
}

func (r *countingRecorder) GameCreated(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created[source]++
}

func (r *countingRecorder) MoveApplied() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves++
}

func (r *countingRecorder) GameEnded(result model.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended[result]++
}

func (r *countingRecorder) MatchMade(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches++
}

func (r *countingRecorder) TicketsQueued(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = n
}

func (r *countingRecorder) TicketsEvicted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted += n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
