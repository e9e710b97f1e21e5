package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks that the database is reachable.
type Pinger interface {
	Ping() error
}

type HealthHandler struct {
	db     Pinger
	now    func() time.Time
	logger *slog.Logger
}

func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, now: time.Now, logger: logger}
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// HandleHealth answers 200 {"status":"OK"} while the database responds,
// 503 otherwise.
//
// HTTP: GET /health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ts := h.now().UTC().Format(time.RFC3339Nano)
	if err := h.db.Ping(); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "UNAVAILABLE", Timestamp: ts})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "OK", Timestamp: ts})
}
