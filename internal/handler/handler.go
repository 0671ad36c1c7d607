// Package handler exposes the services over HTTP with echo.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"magazyn/internal/apperr"
	"magazyn/internal/middleware"
	"magazyn/internal/service"
	"magazyn/pkg/logger"
)

// Services bundles the use cases the routes need
type Services struct {
	Auth       *service.AuthService
	Warehouses *service.WarehouseService
	Products   *service.ProductService
}

// RegisterRoutes mounts the API on g, normally the /api group
func RegisterRoutes(g *echo.Group, svc *Services) {
	auth := NewAuthHandler(svc.Auth)
	warehouses := NewWarehouseHandler(svc.Warehouses)
	products := NewProductHandler(svc.Products)

	authGroup := g.Group("/auth")
	authGroup.POST("/register", auth.Register)
	authGroup.POST("/login", auth.Login)

	magazines := g.Group("/magazines", middleware.JWTAuthMiddleware(svc.Auth))
	magazines.GET("", warehouses.List)
	magazines.POST("", warehouses.Create)
	magazines.POST("/connect", warehouses.Connect)

	member := magazines.Group("/:id", middleware.RequireMember(svc.Warehouses))
	member.DELETE("", warehouses.Delete)
	member.GET("/products", products.List)
	member.POST("/products", products.Create)
	member.GET("/products/:productId", products.Get)
	member.PUT("/products/:productId", products.Update)
	member.DELETE("/products/:productId", products.Delete)
}

// respondError answers with the status of err's kind. Unclassified errors are
// logged in full and answered with a generic message.
func respondError(c echo.Context, msg string, err error) error {
	log := logger.FromContext(c)
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
	} else {
		log.Warn(msg, zap.Error(err))
	}
	return c.JSON(status, echo.Map{"error": apperr.Message(err)})
}

func badRequest(c echo.Context, err error) error {
	logger.FromContext(c).Warn("Failed to parse request", zap.Error(err))
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
}
