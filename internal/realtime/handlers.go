package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/model"
)

// handlerFunc handles one inbound event for client c. A returned error is
// sent back to c alone as an error event.
type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) error

func (h *Hub) handlerTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		EventJoinGame:    h.handleJoinGame,
		EventLeaveGame:   h.handleLeaveGame,
		EventMakeMove:    h.handleMakeMove,
		EventGameOver:    h.handleGameOver,
		EventFindMatch:   h.handleFindMatch,
		EventCancelMatch: h.handleCancelMatch,
	}
}

func (h *Hub) dispatch(c *Client, env Envelope) {
	handle, ok := h.handlers[env.Event]
	if !ok {
		h.rec.EventHandled("unknown", "rejected")
		h.sendError(c, env.Event, apperror.ValidationFailed("event", "unknown event "+env.Event))
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, h.opts.HandlerTimeout)
	defer cancel()

	if err := handle(ctx, c, env.Data); err != nil {
		h.rec.EventHandled(env.Event, apperror.Kind(err))
		h.sendError(c, env.Event, err)
		return
	}
	h.rec.EventHandled(env.Event, "ok")
}

// sendError delivers err to c only. Internal errors are logged and replaced
// by a generic message.
func (h *Hub) sendError(c *Client, event string, err error) {
	payload := errorPayload{Event: event}
	switch {
	case errors.Is(err, errRateLimited):
		payload.Kind = "rate_limited"
		payload.Message = err.Error()
	default:
		payload.Kind = apperror.Kind(err)
		payload.Message = apperror.PublicMessage(err)
		if payload.Kind == apperror.Kind(apperror.ErrInternal) {
			h.logger.Error("realtime event failed",
				slog.String("event", event),
				slog.String("userID", c.userID),
				slog.String("error", err.Error()),
			)
		}
	}
	h.send(c, Message{Event: EventError, Data: payload})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperror.ValidationFailed("data", "missing event data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperror.ValidationFailed("data", "malformed event data")
	}
	return nil
}

func (h *Hub) handleJoinGame(ctx context.Context, c *Client, data json.RawMessage) error {
	var ref gameRef
	if err := decode(data, &ref); err != nil {
		return err
	}
	ref.GameID = strings.TrimSpace(ref.GameID)
	if ref.GameID == "" {
		return apperror.ValidationFailed("gameId", "game ID is required")
	}

	game, err := h.games.GetGame(ctx, ref.GameID, c.userID)
	if err != nil {
		return err
	}

	me := playerRef{UserID: c.userID, UserEmail: c.email}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return nil
	}
	if left := h.joinRoomLocked(c, ref.GameID); left != "" {
		h.broadcastLocked(left, Message{Event: EventPlayerLeft, Data: me}, c)
	}
	h.sendLocked(c, Message{Event: EventGameJoined, Data: gameJoined{GameID: game.ID, Game: game}})
	h.broadcastLocked(ref.GameID, Message{Event: EventPlayerJoined, Data: me}, c)

	h.logger.Info("player joined game",
		slog.String("userID", c.userID),
		slog.String("gameID", ref.GameID),
	)
	return nil
}

// handleLeaveGame takes c out of its room. Leaving when not in a room, or
// naming a different room, is a no-op.
func (h *Hub) handleLeaveGame(_ context.Context, c *Client, data json.RawMessage) error {
	var ref gameRef
	if len(data) > 0 {
		if err := decode(data, &ref); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	gameID := c.room
	if gameID == "" || (ref.GameID != "" && ref.GameID != gameID) {
		return nil
	}
	h.leaveRoomLocked(c)
	h.broadcastLocked(gameID, Message{
		Event: EventPlayerLeft,
		Data:  playerRef{UserID: c.userID, UserEmail: c.email},
	}, nil)
	return nil
}

// handleMakeMove applies a move and relays it to the room, sender included.
// The room lock spans both steps, so broadcasts leave in the order the
// moves were accepted.
func (h *Hub) handleMakeMove(ctx context.Context, c *Client, data json.RawMessage) error {
	var p makeMovePayload
	if err := decode(data, &p); err != nil {
		return err
	}

	r, ok := h.roomFor(c, p.GameID)
	if !ok {
		return apperror.Forbidden("not in this game")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	game, err := h.games.ApplyMove(ctx, p.GameID, c.userID, p.Move, p.FEN)
	if err != nil {
		return err
	}

	h.broadcast(p.GameID, Message{
		Event: EventMoveMade,
		Data: moveMade{
			GameID: game.ID,
			Move:   game.Moves[len(game.Moves)-1],
			FEN:    game.FEN,
			UserID: c.userID,
		},
	}, nil)
	return nil
}

// handleGameOver records the result and announces it to the room. A caller
// outside the room still gets the announcement. Like make-move it holds the
// room lock across both steps, so game-ended never overtakes a move-made.
func (h *Hub) handleGameOver(ctx context.Context, c *Client, data json.RawMessage) error {
	var p gameOverPayload
	if err := decode(data, &p); err != nil {
		return err
	}

	if r := h.lookupRoom(p.GameID); r != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	game, err := h.games.RecordResult(ctx, p.GameID, c.userID, p.GameResult, p.Winner)
	if err != nil {
		return err
	}

	msg := Message{
		Event: EventGameEnded,
		Data:  gameEnded{GameID: game.ID, GameResult: game.GameResult, Winner: game.Winner},
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(game.ID, msg, nil)
	if c.room != game.ID {
		h.sendLocked(c, msg)
	}
	return nil
}

// handleFindMatch queues a ticket. The match-found notice arrives later
// through NotifyMatch, possibly before this handler returns.
func (h *Hub) handleFindMatch(ctx context.Context, c *Client, data json.RawMessage) error {
	var p findMatchPayload
	if len(data) > 0 && string(data) != "null" {
		if err := decode(data, &p); err != nil {
			return err
		}
	}
	if p.PreferredColor == "" {
		p.PreferredColor = model.Random
	}

	h.setSearching(c, true)
	_, game, err := h.match.SubmitTicket(ctx, c.userID, p.PreferredColor)
	if err != nil {
		h.setSearching(c, false)
		return err
	}
	if game != nil {
		h.stopSearchingUser(c.userID)
	}

	h.logger.Info("player searching",
		slog.String("userID", c.userID),
		slog.String("preferredColor", string(p.PreferredColor)),
	)
	return nil
}

func (h *Hub) handleCancelMatch(ctx context.Context, c *Client, _ json.RawMessage) error {
	h.stopSearchingUser(c.userID)
	if _, err := h.match.CancelTicket(ctx, c.userID); err != nil {
		return err
	}
	return nil
}
