package model

import "time"

// Ticket is a user's standing request to be matched into a game.
// A user holds at most one ticket at a time.
type Ticket struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	PreferredColor Color     `json:"preferredColor"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Stale reports whether the ticket is older than ttl at time now.
func (t *Ticket) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.CreatedAt) >= ttl
}
