package repository

import (
	"context"

	"zahnflow/backend/internal/user/domain"
)

// Repository defines read access to user credentials.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
