package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/casalena404/crypto-chess/internal/auth"
	"github.com/casalena404/crypto-chess/internal/model"
)

// Matchmaker is the part of service.MatchmakingService the HTTP layer uses.
type Matchmaker interface {
	SubmitTicket(ctx context.Context, userID string, color model.Color) (*model.Ticket, *model.Game, error)
	DeleteTicket(ctx context.Context, userID, ticketID string) error
	ListTickets(ctx context.Context) ([]model.Ticket, error)
	OnlineCount(ctx context.Context) (int, error)
}

// MatchmakingHandler exposes the ticket queue over HTTP. Pairing results
// reach players through the realtime channel; a ticket submitted here that
// pairs at once also carries the new game in the response.
type MatchmakingHandler struct {
	match  Matchmaker
	logger *slog.Logger
}

func NewMatchmakingHandler(match Matchmaker, logger *slog.Logger) *MatchmakingHandler {
	return &MatchmakingHandler{match: match, logger: logger}
}

type submitTicketRequest struct {
	PreferredColor model.Color `json:"preferredColor"`
}

type ticketResponse struct {
	Ticket *model.Ticket `json:"ticket"`
	Game   *model.Game   `json:"game,omitempty"`
}

type ticketsResponse struct {
	Tickets []model.Ticket `json:"tickets"`
}

type onlineResponse struct {
	OnlineCount int `json:"onlineCount"`
}

// HTTP: GET /games/matchmaking/tickets
func (h *MatchmakingHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.match.ListTickets(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketsResponse{Tickets: tickets})
}

// HandleSubmit queues the caller, replacing any earlier ticket.
//
// HTTP: POST /games/matchmaking/tickets
func (h *MatchmakingHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req submitTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ticket, game, err := h.match.SubmitTicket(r.Context(), userID, req.PreferredColor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticketResponse{Ticket: ticket, Game: game})
}

// HTTP: DELETE /games/matchmaking/tickets/{id}
func (h *MatchmakingHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.match.DeleteTicket(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Ticket deleted successfully"})
}

// HandleOnline reports how many players are searching. No token needed.
//
// HTTP: GET /games/matchmaking/online
func (h *MatchmakingHandler) HandleOnline(w http.ResponseWriter, r *http.Request) {
	n, err := h.match.OnlineCount(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, onlineResponse{OnlineCount: n})
}
