// seed inserts the development login for local testing.
// Idempotent: skips the insert if the user already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"zahnflow/backend/internal/config"
	"zahnflow/backend/internal/db"
	"zahnflow/backend/internal/security"
)

const (
	devUserEmail = "zahnarzt@zahnflow.de"
	devPassword  = "ZahnFlow2024!"
	devUserName  = "Dr. Max Mustermann"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var exists bool
	err = conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, devUserEmail).Scan(&exists)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if exists {
		log.Printf("seed: user %s already exists, nothing to do", devUserEmail)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	_, err = conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), devUserEmail, hash, devUserName)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("seed: created user %s", devUserEmail)
}
