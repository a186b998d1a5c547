package repository

import (
	"context"

	"zahnflow/backend/internal/session/domain"
)

// Repository defines persistence for sessions. "Live" always means
// expires_at is in the future; each method is a single logical store
// operation (no cross-method transactions).
type Repository interface {
	Insert(ctx context.Context, s *domain.Session) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID string) error
	// DeleteByID deletes the session only when it belongs to userID and
	// reports whether a row was removed.
	DeleteByID(ctx context.Context, id, userID string) (bool, error)
	DeleteExpired(ctx context.Context, userID string) error
	// DeleteOldestByActivity removes the user's single least-recently-active session.
	DeleteOldestByActivity(ctx context.Context, userID string) error
	CountLive(ctx context.Context, userID string) (int, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	TouchActivity(ctx context.Context, tokenHash string) error
	ListLive(ctx context.Context, userID string) ([]*domain.Session, error)
}
