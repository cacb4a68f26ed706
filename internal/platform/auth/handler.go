package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterRoutes mounts POST /session on api, wrapped in m.
func (s *Sessions) RegisterRoutes(api *echo.Group, m ...echo.MiddlewareFunc) {
	api.POST("/session", s.CreateSession, m...)
}

// CreateSession exchanges the shared password for a session token.
func (s *Sessions) CreateSession(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, expires, err := s.Login(req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid password")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}
