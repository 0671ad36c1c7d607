package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"magazyn/internal/middleware"
	"magazyn/internal/model"
	"magazyn/internal/query"
	"magazyn/internal/service"
	"magazyn/pkg/logger"
)

type ProductHandler struct {
	products *service.ProductService
}

func NewProductHandler(products *service.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// List answers one page of the warehouse catalog plus its facet values
func (h *ProductHandler) List(c echo.Context) error {
	// Membership was checked by RequireMember
	wh := middleware.CurrentWarehouse(c)
	params := query.ParseValues(c.QueryParams())

	page, err := h.products.List(c.Request().Context(), wh.ID, params)
	if err != nil {
		return respondError(c, "Failed to list products", err)
	}

	logger.FromContext(c).Debug("Products listed",
		zap.Int64("total", page.Total),
		zap.Int("page", page.Page),
		zap.String("sort", params.Sort))
	return c.JSON(http.StatusOK, page)
}

func (h *ProductHandler) Get(c echo.Context) error {
	wh := middleware.CurrentWarehouse(c)
	p, err := h.products.Get(c.Request().Context(), wh.ID, c.Param("productId"))
	if err != nil {
		return respondError(c, "Failed to get product", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) Create(c echo.Context) error {
	wh := middleware.CurrentWarehouse(c)

	var draft model.ProductDraft
	if err := c.Bind(&draft); err != nil {
		return badRequest(c, err)
	}

	p, err := h.products.Create(c.Request().Context(), wh.ID, &draft)
	if err != nil {
		return respondError(c, "Failed to create product", err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Update applies only the keys present in the body
func (h *ProductHandler) Update(c echo.Context) error {
	wh := middleware.CurrentWarehouse(c)

	// Parse request, keeping absent keys apart from nulls
	var patch model.ProductPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, err)
	}

	p, err := h.products.Update(c.Request().Context(), wh.ID, c.Param("productId"), &patch)
	if err != nil {
		return respondError(c, "Failed to update product", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) Delete(c echo.Context) error {
	wh := middleware.CurrentWarehouse(c)
	if err := h.products.Remove(c.Request().Context(), wh.ID, c.Param("productId")); err != nil {
		return respondError(c, "Failed to delete product", err)
	}
	return c.NoContent(http.StatusNoContent)
}
