package domain

import "time"

// Session is a server-recorded grant of access tied to one issued token.
// TokenHash is a SHA-256 digest of the token; the raw token is never persisted.
type Session struct {
	ID           string
	UserID       string
	TokenHash    string
	DeviceInfo   string // optional; empty when the client sent no user agent
	IPAddress    string // optional
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
}

// Live reports whether the session has not yet expired at the given instant.
func (s *Session) Live(now time.Time) bool {
	return s.ExpiresAt.After(now)
}
