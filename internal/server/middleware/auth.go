package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"zahnflow/backend/internal/auth/service"
)

// TokenCookie is the name of the HTTP-only cookie carrying the session token.
const TokenCookie = "token"

const bearerPrefix = "Bearer "

// TokenValidator checks a raw token and returns the identity it carries, or
// nil when the token is not backed by a live session.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*service.Payload, error)
}

// TokenFromRequest extracts the session token from the cookie or, failing
// that, from the Authorization header. Returns "" when neither is present.
func TokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	}
	return ""
}

// Authenticate rejects requests without a token backed by a live session and
// places the authenticated identity on the request context for handlers.
func Authenticate(validator TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := TokenFromRequest(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Nicht autorisiert. Bitte melden Sie sich an.",
				})
			}

			payload, err := validator.ValidateToken(c.Request().Context(), token)
			if err != nil {
				return err
			}
			if payload == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Session abgelaufen oder ungültig. Bitte erneut anmelden.",
				})
			}

			req := c.Request()
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), payload.UserID, payload.Email)))
			return next(c)
		}
	}
}
