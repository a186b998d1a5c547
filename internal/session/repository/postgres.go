package repository

import (
	"context"
	"database/sql"
	"errors"

	"zahnflow/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Insert(ctx context.Context, s *domain.Session) error {
	deviceInfo := sql.NullString{String: s.DeviceInfo, Valid: s.DeviceInfo != ""}
	ipAddress := sql.NullString{String: s.IPAddress, Valid: s.IPAddress != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, device_info, ip_address, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.TokenHash, deviceInfo, ipAddress, s.ExpiresAt)
	return err
}

// DeleteByTokenHash removes the session with the given token hash.
// Deleting zero rows is not an error (idempotent logout).
func (r *PostgresRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

// DeleteByUser removes all sessions for the given user.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteByID removes the session with the given id only if it belongs to userID.
// Returns whether a row was deleted, so callers can distinguish a missing or
// foreign session from a successful revocation.
func (r *PostgresRepository) DeleteByID(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpired removes the user's sessions whose expiry has passed.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND expires_at < NOW()`, userID)
	return err
}

// DeleteOldestByActivity removes the user's single session with the oldest
// last_activity timestamp.
func (r *PostgresRepository) DeleteOldestByActivity(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions
		 WHERE id = (
		   SELECT id FROM sessions
		   WHERE user_id = $1
		   ORDER BY last_activity ASC
		   LIMIT 1
		 )`, userID)
	return err
}

// CountLive returns the number of the user's sessions with expires_at in the future.
func (r *PostgresRepository) CountLive(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND expires_at > NOW()`,
		userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// FindByTokenHash returns the live session with the given token hash, or nil
// if no live session matches. It returns an error only for database failures.
func (r *PostgresRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, device_info, ip_address, created_at, expires_at, last_activity
		 FROM sessions WHERE token_hash = $1 AND expires_at > NOW()`, tokenHash)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// TouchActivity sets last_activity to now for the session with the given token hash.
func (r *PostgresRepository) TouchActivity(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = NOW() WHERE token_hash = $1`, tokenHash)
	return err
}

// ListLive returns the user's live sessions ordered by last_activity descending.
func (r *PostgresRepository) ListLive(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, token_hash, device_info, ip_address, created_at, expires_at, last_activity
		 FROM sessions
		 WHERE user_id = $1 AND expires_at > NOW()
		 ORDER BY last_activity DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var deviceInfo, ipAddress sql.NullString
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &deviceInfo, &ipAddress,
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivity)
	if err != nil {
		return nil, err
	}
	if deviceInfo.Valid {
		s.DeviceInfo = deviceInfo.String
	}
	if ipAddress.Valid {
		s.IPAddress = ipAddress.String
	}
	return &s, nil
}
