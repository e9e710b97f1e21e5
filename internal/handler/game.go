package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/auth"
	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/service"
)

// Games is the part of service.GameService the HTTP layer uses.
type Games interface {
	CreateInvite(ctx context.Context, callerID, opponentID string, color model.Color) (*model.Game, error)
	GetGame(ctx context.Context, gameID, userID string) (*model.Game, error)
	ListGames(ctx context.Context, userID string) ([]model.Game, error)
	UpdateGame(ctx context.Context, gameID, userID string, upd service.GameUpdate) (*model.Game, error)
}

// GameHandler serves the caller's games. Every route requires a token and
// only participants may see or change a game.
type GameHandler struct {
	games  Games
	logger *slog.Logger
}

func NewGameHandler(games Games, logger *slog.Logger) *GameHandler {
	return &GameHandler{games: games, logger: logger}
}

type createGameRequest struct {
	OpponentID string      `json:"opponentId"`
	Color      model.Color `json:"color"`
}

type gameResponse struct {
	Game *model.Game `json:"game"`
}

type gamesResponse struct {
	Games []model.Game `json:"games"`
}

// HandleList returns every game the caller plays in.
//
// HTTP: GET /games
func (h *GameHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	games, err := h.games.ListGames(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, gamesResponse{Games: games})
}

// HandleCreate starts a game against a named opponent. color is the
// caller's side: "black" seats the caller as black, anything else as white.
//
// HTTP: POST /games
func (h *GameHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createGameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.OpponentID = strings.TrimSpace(req.OpponentID)
	if req.OpponentID == "" {
		writeError(w, h.logger, apperror.ValidationFailed("opponentId", "opponent ID is required"))
		return
	}

	game, err := h.games.CreateInvite(r.Context(), userID, req.OpponentID, req.Color)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, gameResponse{Game: game})
}

// HTTP: GET /games/{id}
func (h *GameHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	game, err := h.games.GetGame(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: game})
}

// HandleUpdate applies any of fen, move, gameOver, winner and gameResult in
// one step. Absent fields are left alone.
//
// HTTP: PUT /games/{id}
func (h *GameHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var upd service.GameUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, h.logger, err)
		return
	}

	game, err := h.games.UpdateGame(r.Context(), chi.URLParam(r, "id"), userID, upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Game: game})
}
