package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the standard API error body (message only).
type ErrorResponse struct {
	Message string `json:"message"`
}

func notFound(format string, args ...any) error {
	return echo.NewHTTPError(http.StatusNotFound, ErrorResponse{Message: fmt.Sprintf(format, args...)})
}
