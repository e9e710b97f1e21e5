// Package realtime is the websocket side of the server: one Hub tracks every
// connected client, the game rooms they sit in, and who is searching for a
// match.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/casalena404/crypto-chess/internal/auth"
	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/service"
)

// Games is the part of the game service the hub drives.
type Games interface {
	GetGame(ctx context.Context, gameID, userID string) (*model.Game, error)
	ApplyMove(ctx context.Context, gameID, userID string, move json.RawMessage, fen string) (*model.Game, error)
	RecordResult(ctx context.Context, gameID, userID string, result model.Result, winner string) (*model.Game, error)
}

// Matchmaker is the part of the matchmaking service the hub drives.
type Matchmaker interface {
	SubmitTicket(ctx context.Context, userID string, color model.Color) (*model.Ticket, *model.Game, error)
	CancelTicket(ctx context.Context, userID string) (bool, error)
}

// Authenticator checks the handshake token.
type Authenticator interface {
	Verify(token string) (auth.Identity, error)
}

// Recorder receives connection and event counts.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	EventHandled(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ConnectionOpened() {}
func (nopRecorder) ConnectionClosed() {}
func (nopRecorder) EventHandled(string, string) {}

// Options tunes per-connection behavior. Zero values take the defaults.
type Options struct {
	// EventRate is the sustained number of inbound events per second a
	// connection may send; EventBurst is the bucket size.
	EventRate  float64
	EventBurst int
	SendBuffer int
	// HandlerTimeout bounds the service calls made for one event.
	HandlerTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.EventRate <= 0 {
		o.EventRate = 10
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 20
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 5 * time.Second
	}
	return o
}

// room is the set of clients watching one game. mu serializes
// apply-then-broadcast for moves and results so the room sees them in
// accept order.
type room struct {
	mu      sync.Mutex
	members map[*Client]struct{}
}

// Hub owns all client bookkeeping. Every send on a client's channel and
// every close of it happens under mu, so a dropped client is never written
// to afterwards.
type Hub struct {
	games  Games
	match  Matchmaker
	authn  Authenticator
	rec    Recorder
	opts   Options
	logger *slog.Logger

	handlers map[string]handlerFunc

	mu        sync.Mutex
	clients   map[string]map[*Client]struct{}
	rooms     map[string]*room
	searching map[*Client]struct{}
	closed    bool
}

var _ service.MatchNotifier = (*Hub)(nil)

func NewHub(games Games, match Matchmaker, authn Authenticator, rec Recorder, opts Options, logger *slog.Logger) *Hub {
	if rec == nil {
		rec = nopRecorder{}
	}
	h := &Hub{
		games:     games,
		match:     match,
		authn:     authn,
		rec:       rec,
		opts:      opts.withDefaults(),
		logger:    logger,
		clients:   make(map[string]map[*Client]struct{}),
		rooms:     make(map[string]*room),
		searching: make(map[*Client]struct{}),
	}
	h.handlers = h.handlerTable()
	return h
}

func (h *Hub) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(h.opts.EventRate), h.opts.EventBurst)
}

// register adds c to the hub. It fails once the hub is shut down.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	h.rec.ConnectionOpened()
	return true
}

// unregister removes c and cleans up after it: the room hears about the
// disconnect, and the user's ticket is cancelled if c was searching or was
// the user's last connection. The game itself is left alone.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(conns, c)
	last := len(conns) == 0
	if last {
		delete(h.clients, c.userID)
	}
	_, wasSearching := h.searching[c]
	delete(h.searching, c)

	if gameID := c.room; gameID != "" {
		h.leaveRoomLocked(c)
		h.broadcastLocked(gameID, Message{
			Event: EventPlayerDisconnected,
			Data:  playerRef{UserID: c.userID, UserEmail: c.email},
		}, nil)
	}
	h.closeClientLocked(c)
	h.rec.ConnectionClosed()
	h.mu.Unlock()

	if wasSearching || last {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.HandlerTimeout)
		defer cancel()
		if _, err := h.match.CancelTicket(ctx, c.userID); err != nil {
			h.logger.Error("failed to cancel ticket on disconnect",
				slog.String("userID", c.userID),
				slog.String("error", err.Error()),
			)
		}
	}

	h.logger.Info("client disconnected", slog.String("userID", c.userID))
}

// NotifyMatch sends match-found to every connection of the matched user
// and takes them out of the searching set. Users with no connection simply
// miss the notice; the game is already stored.
func (h *Hub) NotifyMatch(n service.MatchNotice) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[n.UserID]
	for c := range conns {
		delete(h.searching, c)
		h.sendLocked(c, Message{
			Event: EventMatchFound,
			Data:  matchFound{GameID: n.GameID, Color: n.Color, Opponent: n.Opponent},
		})
	}
	if len(conns) == 0 {
		h.logger.Debug("match notice had no recipient",
			slog.String("userID", n.UserID),
			slog.String("gameID", n.GameID),
		)
	}
}

// Connected reports how many live connections a user has.
func (h *Hub) Connected(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Searching reports how many connections are waiting for a match.
func (h *Hub) Searching() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.searching)
}

// RoomSize reports how many connections are in gameID's room.
func (h *Hub) RoomSize(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[gameID]; ok {
		return len(r.members)
	}
	return 0
}

// Shutdown disconnects every client. http.Server.Shutdown does not track
// hijacked websocket connections, so the server calls this explicitly.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, conns := range h.clients {
		for c := range conns {
			h.closeClientLocked(c)
		}
	}
}

func (h *Hub) setSearching(c *Client, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if on {
		h.searching[c] = struct{}{}
		return
	}
	delete(h.searching, c)
}

// stopSearchingUser clears every connection of userID from the searching
// set; the ticket is per user, not per connection.
func (h *Hub) stopSearchingUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		delete(h.searching, c)
	}
}

// joinRoomLocked moves c into gameID's room, leaving any previous room.
// It returns the game id c left, if any.
func (h *Hub) joinRoomLocked(c *Client, gameID string) (left string) {
	if c.room == gameID {
		return ""
	}
	if c.room != "" {
		left = c.room
		h.leaveRoomLocked(c)
	}
	r, ok := h.rooms[gameID]
	if !ok {
		r = &room{members: make(map[*Client]struct{})}
		h.rooms[gameID] = r
	}
	r.members[c] = struct{}{}
	c.room = gameID
	return left
}

func (h *Hub) leaveRoomLocked(c *Client) {
	r, ok := h.rooms[c.room]
	if ok {
		delete(r.members, c)
		if len(r.members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// roomFor returns the room c is in if it is gameID's room.
func (h *Hub) roomFor(c *Client, gameID string) (*room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room != gameID || gameID == "" {
		return nil, false
	}
	r, ok := h.rooms[gameID]
	return r, ok
}

// lookupRoom returns gameID's room, or nil when nobody is watching it.
func (h *Hub) lookupRoom(gameID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[gameID]
}

// broadcastLocked sends msg to every member of gameID's room except skip.
func (h *Hub) broadcastLocked(gameID string, msg Message, skip *Client) {
	r, ok := h.rooms[gameID]
	if !ok {
		return
	}
	for c := range r.members {
		if c != skip {
			h.sendLocked(c, msg)
		}
	}
}

func (h *Hub) broadcast(gameID string, msg Message, skip *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(gameID, msg, skip)
}

func (h *Hub) send(c *Client, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(c, msg)
}

// sendLocked queues msg for c. A client whose queue is full is too slow to
// keep up and is dropped.
func (h *Hub) sendLocked(c *Client, msg Message) {
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("dropping slow client", slog.String("userID", c.userID))
		h.closeClientLocked(c)
	}
}

// closeClientLocked closes c's queue; writePump then closes the socket,
// which ends readPump and triggers unregister.
func (h *Hub) closeClientLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
