// Package model defines the data structures used throughout the application.
package model

import "time"

// DefaultRating is the rating every new account starts with.
const DefaultRating = 1200

// User represents a registered player account.
//
// PasswordHash carries the bcrypt hash and is tagged json:"-" so a User can be
// written straight into a response body without leaking the credential.
type User struct {
	ID           string    `json:"id"          db:"id"`
	Email        string    `json:"email"       db:"email"`
	PasswordHash string    `json:"-"           db:"password_hash"`
	DisplayName  string    `json:"displayName" db:"display_name"`
	Rating       int       `json:"rating"      db:"rating"`
	CreatedAt    time.Time `json:"createdAt"   db:"created_at"`
	LastSeen     time.Time `json:"lastSeen"    db:"last_seen"`
}
