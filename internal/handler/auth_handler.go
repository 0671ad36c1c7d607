package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"magazyn/internal/service"
	"magazyn/prometheus"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register creates an account and returns a session
func (h *AuthHandler) Register(c echo.Context) error {
	// Parse request
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return badRequest(c, err)
	}

	session, err := h.auth.Register(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respondError(c, "Registration failed", err)
	}

	// 201 since a new account resource was created
	return c.JSON(http.StatusCreated, session)
}

// Login exchanges credentials for a session
func (h *AuthHandler) Login(c echo.Context) error {
	// Parse request
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return badRequest(c, err)
	}

	session, err := h.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respondError(c, "Login failed", err)
	}
	return c.JSON(http.StatusOK, session)
}
