package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"magazyn/internal/middleware"
	"magazyn/internal/service"
)

type warehouseRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type WarehouseHandler struct {
	warehouses *service.WarehouseService
}

func NewWarehouseHandler(warehouses *service.WarehouseService) *WarehouseHandler {
	return &WarehouseHandler{warehouses: warehouses}
}

func (h *WarehouseHandler) List(c echo.Context) error {
	list, err := h.warehouses.List(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, "Failed to list warehouses", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *WarehouseHandler) Create(c echo.Context) error {
	// Parse request
	var req warehouseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	wh, err := h.warehouses.Create(c.Request().Context(), req.Name, req.Password, middleware.UserID(c))
	if err != nil {
		return respondError(c, "Failed to create warehouse", err)
	}
	return c.JSON(http.StatusCreated, wh)
}

// Connect joins the warehouse identified by name and password
func (h *WarehouseHandler) Connect(c echo.Context) error {
	var req warehouseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	wh, err := h.warehouses.Join(c.Request().Context(), req.Name, req.Password, middleware.UserID(c))
	if err != nil {
		return respondError(c, "Failed to connect to warehouse", err)
	}
	return c.JSON(http.StatusOK, wh)
}

// Delete removes the warehouse for its owner and the membership for anyone else
func (h *WarehouseHandler) Delete(c echo.Context) error {
	wh := middleware.CurrentWarehouse(c)
	scope, err := h.warehouses.LeaveOrDelete(c.Request().Context(), wh.ID, middleware.UserID(c))
	if err != nil {
		return respondError(c, "Failed to remove warehouse", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": true, "scope": scope})
}
