// Package server wires the HTTP routes and middleware.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	authhandler "zahnflow/backend/internal/auth/handler"
	"zahnflow/backend/internal/auth/service"
	"zahnflow/backend/internal/config"
	"zahnflow/backend/internal/server/middleware"
)

// New builds the echo instance with all routes registered. The caller owns
// starting and shutting it down.
func New(cfg *config.Config, svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.ClientURL},
		AllowCredentials: true,
	}))
	e.Use(middleware.RateLimit(cfg.GeneralRateLimit, "Zu viele Anfragen. Bitte versuchen Sie es später erneut."))

	api := e.Group("/api")
	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Tighter limit on the auth surface to slow down credential guessing.
	auth := api.Group("/auth", middleware.RateLimit(cfg.LoginRateLimit, "Zu viele Anmeldeversuche. Bitte versuchen Sie es später erneut."))
	h := authhandler.New(svc, cfg.TTL(), cfg.Production())
	h.Register(auth, middleware.Authenticate(svc))

	return e
}
