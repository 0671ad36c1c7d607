package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"magazyn/pkg/logger"
)

// RequestIDMiddleware keeps a client supplied X-Request-ID or generates one,
// echoes it back and binds a request scoped logger to it.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(logger.RequestIDKey)
			if requestID == "" {
				requestID = uuid.New().String()
				c.Request().Header.Set(logger.RequestIDKey, requestID)
			}

			c.Set(logger.RequestIDKey, requestID)
			c.Response().Header().Set(logger.RequestIDKey, requestID)

			logger.SetContext(c, logger.GetLogger().With(zap.String("request_id", requestID)))
			return next(c)
		}
	}
}
