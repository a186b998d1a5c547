// Package handler exposes the auth service over REST.
package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/labstack/echo/v4"

	"zahnflow/backend/internal/auth/service"
	"zahnflow/backend/internal/server/middleware"
)

// Handler serves the /auth endpoints.
type Handler struct {
	svc           *service.Service
	cookieTTL     time.Duration
	secureCookies bool
}

// New returns a Handler. secureCookies should be true in production so the
// token cookie is only sent over TLS.
func New(svc *service.Service, cookieTTL time.Duration, secureCookies bool) *Handler {
	return &Handler{svc: svc, cookieTTL: cookieTTL, secureCookies: secureCookies}
}

// Register mounts the auth routes on g. Login and logout are public; the rest
// require an authenticated session.
func (h *Handler) Register(g *echo.Group, authenticate echo.MiddlewareFunc) {
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)

	g.GET("/me", h.Me, authenticate)
	g.GET("/sessions", h.Sessions, authenticate)
	g.POST("/logout-all", h.LogoutAll, authenticate)
	g.DELETE("/sessions/:sessionId", h.RevokeSession, authenticate)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func validationError(c echo.Context, details []fieldError) error {
	return c.JSON(http.StatusBadRequest, map[string]any{
		"error":   "Validierungsfehler",
		"details": details,
	})
}

// Login verifies credentials, sets the HTTP-only token cookie, and returns
// the sanitized user together with the token.
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return validationError(c, []fieldError{{Field: "body", Message: "Ungültiger Request-Body"}})
	}
	var details []fieldError
	if _, err := mail.ParseAddress(req.Email); err != nil {
		details = append(details, fieldError{Field: "email", Message: "Ungültige E-Mail-Adresse"})
	}
	if req.Password == "" {
		details = append(details, fieldError{Field: "password", Message: "Passwort ist erforderlich"})
	}
	if len(details) > 0 {
		return validationError(c, details)
	}

	info := service.SessionInfo{
		DeviceInfo: c.Request().UserAgent(),
		IPAddress:  c.RealIP(),
	}
	if info.DeviceInfo == "" {
		info.DeviceInfo = "Unknown"
	}
	if info.IPAddress == "" {
		info.IPAddress = "Unknown"
	}

	user, token, err := h.svc.Login(c.Request().Context(), req.Email, req.Password, info)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Ungültige E-Mail oder Passwort.",
			})
		}
		return err
	}

	h.setTokenCookie(c, token)
	return c.JSON(http.StatusOK, map[string]any{
		"user":  user,
		"token": token,
	})
}

// Logout revokes the session for the presented token, if any, and clears the
// cookie. Always succeeds, so a stale client can log out cleanly.
func (h *Handler) Logout(c echo.Context) error {
	if token := middleware.TokenFromRequest(c); token != "" {
		if err := h.svc.Logout(c.Request().Context(), token); err != nil {
			return err
		}
	}
	h.clearTokenCookie(c)
	return c.JSON(http.StatusOK, map[string]string{"message": "Erfolgreich abgemeldet."})
}

// Me returns the authenticated user's sanitized record.
func (h *Handler) Me(c echo.Context) error {
	userID, ok := middleware.GetUserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Nicht autorisiert."})
	}
	user, err := h.svc.UserByID(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if user == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Benutzer nicht gefunden."})
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user})
}

// Sessions lists the caller's live sessions, most recently active first.
func (h *Handler) Sessions(c echo.Context) error {
	userID, ok := middleware.GetUserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Nicht autorisiert."})
	}
	sessions, err := h.svc.ActiveSessions(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

// LogoutAll revokes every session of the caller and clears the cookie.
func (h *Handler) LogoutAll(c echo.Context) error {
	userID, ok := middleware.GetUserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Nicht autorisiert."})
	}
	if err := h.svc.LogoutAll(c.Request().Context(), userID); err != nil {
		return err
	}
	h.clearTokenCookie(c)
	return c.JSON(http.StatusOK, map[string]string{"message": "Von allen Geräten abgemeldet."})
}

// RevokeSession deletes one of the caller's sessions by id. Sessions of other
// users are reported as not found.
func (h *Handler) RevokeSession(c echo.Context) error {
	userID, ok := middleware.GetUserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Nicht autorisiert."})
	}
	deleted, err := h.svc.RevokeSession(c.Request().Context(), userID, c.Param("sessionId"))
	if err != nil {
		return err
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session nicht gefunden."})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Session beendet."})
}

func (h *Handler) setTokenCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookieTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearTokenCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
