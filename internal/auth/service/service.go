// Package service implements the authenticated-session core: credential
// verification, token issuance with a per-user session cap, token validation
// against live session records, and session introspection/revocation.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"zahnflow/backend/internal/security"
	sessiondomain "zahnflow/backend/internal/session/domain"
	userdomain "zahnflow/backend/internal/user/domain"
)

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// responses never reveal which check failed.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// DefaultMaxSessions is the per-user cap on live sessions when none is configured.
const DefaultMaxSessions = 3

// SessionInfo carries optional client metadata recorded on the session at login.
type SessionInfo struct {
	DeviceInfo string
	IPAddress  string
}

// Payload is the decoded identity carried by a validated token.
type Payload struct {
	UserID string
	Email  string
}

// ActiveSession describes one live session for introspection. The token hash
// is deliberately absent.
type ActiveSession struct {
	ID           string    `json:"id"`
	DeviceInfo   string    `json:"deviceInfo"`
	IPAddress    string    `json:"ipAddress"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	Insert(ctx context.Context, s *sessiondomain.Session) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteByID(ctx context.Context, id, userID string) (bool, error)
	DeleteExpired(ctx context.Context, userID string) error
	DeleteOldestByActivity(ctx context.Context, userID string) error
	CountLive(ctx context.Context, userID string) (int, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*sessiondomain.Session, error)
	TouchActivity(ctx context.Context, tokenHash string) error
	ListLive(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
}

// Service implements login, token validation, and session management.
type Service struct {
	userRepo    UserRepo
	sessionRepo SessionRepo
	hasher      *security.Hasher
	tokens      *security.TokenProvider
	maxSessions int
}

// New returns a Service with the given dependencies. maxSessions <= 0 falls
// back to DefaultMaxSessions.
func New(userRepo UserRepo, sessionRepo SessionRepo, hasher *security.Hasher, tokens *security.TokenProvider, maxSessions int) *Service {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		tokens:      tokens,
		maxSessions: maxSessions,
	}
}

// Login verifies the credentials and issues a signed token backed by a new
// session record. Expired sessions are purged first; if the user is at the
// session cap, the least-recently-active session is evicted. Unknown email
// and wrong password both return ErrInvalidCredentials.
//
// The count-evict-insert sequence is not transactional: two concurrent logins
// near the cap can transiently overshoot it until a later login cleans up.
func (s *Service) Login(ctx context.Context, email, password string, info SessionInfo) (*userdomain.Sanitized, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if u == nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := s.sessionRepo.DeleteExpired(ctx, u.ID); err != nil {
		return nil, "", err
	}
	count, err := s.sessionRepo.CountLive(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	if count >= s.maxSessions {
		if err := s.sessionRepo.DeleteOldestByActivity(ctx, u.ID); err != nil {
			return nil, "", err
		}
	}

	token, expiresAt, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()
	sess := &sessiondomain.Session{
		ID:           uuid.New().String(),
		UserID:       u.ID,
		TokenHash:    security.HashToken(token),
		DeviceInfo:   info.DeviceInfo,
		IPAddress:    info.IPAddress,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		LastActivity: now,
	}
	if err := s.sessionRepo.Insert(ctx, sess); err != nil {
		return nil, "", err
	}
	return u.Sanitize(), token, nil
}

// ValidateToken checks the token signature and expiry claim, then requires a
// live session record with the token's hash; the session row, not the claim,
// is the source of truth, so revoked tokens fail here even while
// cryptographically valid. Returns nil without error on any validation
// failure; errors are database failures only. On success the session's
// last-activity timestamp is refreshed (expiry is never extended).
func (s *Service) ValidateToken(ctx context.Context, token string) (*Payload, error) {
	userID, email, err := s.tokens.Validate(token)
	if err != nil {
		return nil, nil
	}
	tokenHash := security.HashToken(token)
	sess, err := s.sessionRepo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if err := s.sessionRepo.TouchActivity(ctx, tokenHash); err != nil {
		return nil, err
	}
	return &Payload{UserID: userID, Email: email}, nil
}

// Logout deletes the session matching the token's hash. Idempotent: a token
// with no session (already logged out, revoked) is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessionRepo.DeleteByTokenHash(ctx, security.HashToken(token))
}

// LogoutAll deletes all of the user's sessions.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.sessionRepo.DeleteByUser(ctx, userID)
}

// ActiveSessions returns the user's live sessions, most recently active
// first, with placeholder text for absent device/IP metadata.
func (s *Service) ActiveSessions(ctx context.Context, userID string) ([]ActiveSession, error) {
	sessions, err := s.sessionRepo.ListLive(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ActiveSession, 0, len(sessions))
	for _, sess := range sessions {
		deviceInfo := sess.DeviceInfo
		if deviceInfo == "" {
			deviceInfo = "Unbekanntes Gerät"
		}
		ipAddress := sess.IPAddress
		if ipAddress == "" {
			ipAddress = "Unbekannt"
		}
		out = append(out, ActiveSession{
			ID:           sess.ID,
			DeviceInfo:   deviceInfo,
			IPAddress:    ipAddress,
			LastActivity: sess.LastActivity,
			CreatedAt:    sess.CreatedAt,
		})
	}
	return out, nil
}

// RevokeSession deletes the session only when it belongs to userID, so a user
// cannot revoke another user's session. Returns false when nothing was
// deleted (missing or foreign session).
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) (bool, error) {
	return s.sessionRepo.DeleteByID(ctx, sessionID, userID)
}

// UserByID returns the sanitized user for id, or nil if not found.
func (s *Service) UserByID(ctx context.Context, id string) (*userdomain.Sanitized, error) {
	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Sanitize(), nil
}
