package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/auth"
	"github.com/casalena404/crypto-chess/internal/model"
	"github.com/casalena404/crypto-chess/internal/service"
)

// Accounts is the part of service.AuthService the HTTP layer uses.
type Accounts interface {
	Register(ctx context.Context, email, password, displayName string) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Profile(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID, displayName string) (*model.User, error)
}

// AuthHandler serves registration, login and the caller's profile.
//
//   - HandleRegister → POST /auth/register
//   - HandleLogin    → POST /auth/login
//   - HandleLogout   → POST /auth/logout
//   - HandleProfile  → GET  /auth/profile
//   - HandleUpdate   → PUT  /auth/profile
//
// Tokens are bearer tokens returned in the body; the server keeps no
// session state.
type AuthHandler struct {
	accounts Accounts
	logger   *slog.Logger
}

func NewAuthHandler(accounts Accounts, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
}

type userResponse struct {
	User *model.User `json:"user"`
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, h.logger, apperror.ValidationFailed("email", "email and password are required"))
		return
	}

	res, err := h.accounts.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, h.logger, apperror.ValidationFailed("email", "email and password are required"))
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout acknowledges a logout. Tokens are stateless, so the client
// discarding its copy is the whole operation; the token stays valid until
// it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		h.logger.Info("user logged out", slog.String("userID", id))
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleUpdate changes the caller's display name. An empty name leaves the
// profile unchanged.
func (h *AuthHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), userID, req.DisplayName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}
