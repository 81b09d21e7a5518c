// Package handler contains the echo HTTP handlers for members and staff.
// All business rules live in the booking coordinator; handlers only parse,
// delegate and translate errors.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/classfit/gym-class-reservation/internal/booking"
)

// getUserID extracts the authenticated user id placed in context by the JWT
// middleware and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// coordError translates the coordinator's error taxonomy into an HTTP
// response.  Every branch is a recoverable, user-facing condition.
func coordError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, booking.ErrClassNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "class not found"})
	case errors.Is(err, booking.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, booking.ErrAlreadyReserved):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already reserved"})
	case errors.Is(err, booking.ErrNotOwner):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, booking.ErrNotPending):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation is not awaiting confirmation"})
	case errors.Is(err, booking.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "promotion offer expired"})
	case errors.Is(err, booking.ErrUnavailable):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
