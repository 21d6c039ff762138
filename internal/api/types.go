package api

import "time"

// TokenResponse represents the response payload for token issuance
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	SessionID string    `json:"sessionId"`
}

// SessionsResponse lists the sessions currently allowed to receive output
type SessionsResponse struct {
	Sessions    []string `json:"sessions"`
	Connections int      `json:"connections"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
