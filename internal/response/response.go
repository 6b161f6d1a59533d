package response

import (
	"github.com/labstack/echo/v4"
)

// Envelope is the wire format every API handler responds with. Clients key
// off Success rather than the HTTP status alone.
type Envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Errors  map[string]any `json:"errors,omitempty"`
}

type Meta struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

func Success(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func Error(c echo.Context, status int, message string, errors map[string]any) error {
	return c.JSON(status, Envelope{
		Success: false,
		Message: message,
		Errors:  errors,
	})
}

func Paginated(c echo.Context, status int, data any, meta Meta, message string) error {
	return c.JSON(status, Envelope{
		Success: true,
		Message: message,
		Data:    map[string]any{"items": data, "meta": meta},
	})
}
