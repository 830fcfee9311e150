package models

import "time"

// Session is an auth-provider session row. The core only ever reads these;
// the external auth subsystem is the sole writer. Token is the credential
// presented by clients, ID is an internal row key, and the two are distinct
// fields: lookups go by Token, never by ID.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}
