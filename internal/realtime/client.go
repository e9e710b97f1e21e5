package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/casalena404/crypto-chess/internal/apperror"
	"github.com/casalena404/crypto-chess/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection of an authenticated user.
//
// room and closed are guarded by Hub.mu; send is written and closed only
// under Hub.mu.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan Message
	limiter *rate.Limiter
	ctx     context.Context

	userID string
	email  string

	room   string
	closed bool
}

// Upgrader is shared by every connection. Cross-origin checks are left to
// the CORS policy on the HTTP routes; the token is what authorizes a socket.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS authenticates the handshake and then runs the connection until
// it closes. A missing or invalid token is answered with 401 and the
// connection is never upgraded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, err := h.authn.Verify(auth.HandshakeToken(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(errorPayload{
			Message: "authentication error: invalid token",
			Kind:    apperror.Kind(apperror.ErrUnauthorized),
		})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan Message, h.opts.SendBuffer),
		limiter: h.newLimiter(),
		ctx:     context.WithoutCancel(r.Context()),
		userID:  id.UserID,
		email:   id.Email,
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	h.logger.Info("client connected",
		slog.String("userID", c.userID),
		slog.String("remote", r.RemoteAddr),
	)

	go c.writePump()
	c.readPump()
}

// readPump decodes inbound frames and dispatches them in order. It is the
// only reader of the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error",
					slog.String("userID", c.userID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.hub.sendError(c, "", apperror.ValidationFailed("event", "malformed message"))
			continue
		}

		if !c.limiter.Allow() {
			c.hub.rec.EventHandled(env.Event, "rate_limited")
			c.hub.sendError(c, env.Event, errRateLimited)
			continue
		}

		c.hub.dispatch(c, env)
	}
}

// writePump is the only writer of the connection. It exits when the hub
// closes the send queue or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var errRateLimited = errors.New("rate limit exceeded")
