package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"magazyn/internal/apperr"
	"magazyn/internal/model"
	"magazyn/pkg/logger"
)

// WarehouseKey holds the authorized *model.Warehouse
const WarehouseKey = "warehouse"

// WarehouseAuthorizer checks warehouse membership
type WarehouseAuthorizer interface {
	Authorize(ctx context.Context, userID, warehouseID string) (*model.Warehouse, error)
}

// RequireMember lets the request through only when the authenticated user
// belongs to the warehouse named by the :id route parameter. It must run
// after JWTAuthMiddleware.
func RequireMember(warehouses WarehouseAuthorizer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			wh, err := warehouses.Authorize(c.Request().Context(), UserID(c), c.Param("id"))
			if err != nil {
				if apperr.KindOf(err) == apperr.KindInternal {
					log.Error("Failed to authorize warehouse access", zap.Error(err))
				} else {
					log.Warn("Warehouse access denied",
						zap.String("warehouse_id", c.Param("id")),
						zap.Stringer("reason", apperr.KindOf(err)))
				}
				return c.JSON(apperr.Status(err), echo.Map{"error": apperr.Message(err)})
			}

			c.Set(WarehouseKey, wh)
			logger.SetContext(c, log.With(zap.String("warehouse_id", wh.ID)))
			return next(c)
		}
	}
}

// CurrentWarehouse returns the warehouse set by RequireMember
func CurrentWarehouse(c echo.Context) *model.Warehouse {
	wh, _ := c.Get(WarehouseKey).(*model.Warehouse)
	return wh
}
