package domain

import "time"

// User is the core user entity. Users are created out-of-band (seed); the
// auth core only reads them. PasswordHash must never be returned to clients.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized is a User stripped of the password hash, safe to serialize in responses.
type Sanitized struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sanitize returns a copy of u without the password hash.
func (u *User) Sanitize() *Sanitized {
	if u == nil {
		return nil
	}
	return &Sanitized{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
