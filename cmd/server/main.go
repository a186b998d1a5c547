package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zahnflow/backend/internal/auth/service"
	"zahnflow/backend/internal/config"
	"zahnflow/backend/internal/db"
	"zahnflow/backend/internal/security"
	"zahnflow/backend/internal/server"
	sessionrepo "zahnflow/backend/internal/session/repository"
	userrepo "zahnflow/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	tokens, err := security.NewTokenProvider(cfg.JWTSecret, cfg.TTL())
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	svc := service.New(
		userrepo.NewPostgresRepository(conn),
		sessionrepo.NewPostgresRepository(conn),
		security.NewHasher(cfg.BcryptCost),
		tokens,
		cfg.MaxSessionsPerUser,
	)

	e := server.New(cfg, svc)

	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
	log.Println("server stopped")
}
