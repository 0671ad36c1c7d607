package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"magazyn/internal/apperr"
	"magazyn/internal/model"
	"magazyn/pkg/logger"
	"magazyn/prometheus"
)

// Context keys set by the auth middleware
const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
)

// Authenticator resolves a bearer token to its user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// JWTAuthMiddleware requires a valid bearer token whose user still exists
func JWTAuthMiddleware(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			user, err := auth.Authenticate(c.Request().Context(), parts[1])
			if err != nil {
				if apperr.KindOf(err) == apperr.KindInternal {
					log.Error("Failed to authenticate request", zap.Error(err))
				} else {
					log.Warn("Rejected bearer token", zap.Error(err))
				}
				return c.JSON(apperr.Status(err), echo.Map{"error": apperr.Message(err)})
			}

			c.Set(UserIDKey, user.ID)
			c.Set(UsernameKey, user.Username)
			logger.SetContext(c, log.With(zap.String("user_id", user.ID)))

			return next(c)
		}
	}
}

// UserID returns the authenticated user's id
func UserID(c echo.Context) string {
	id, _ := c.Get(UserIDKey).(string)
	return id
}
