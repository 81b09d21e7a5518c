package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/classfit/gym-class-reservation/internal/booking"
	"github.com/classfit/gym-class-reservation/internal/model"
)

// StaffHandler exposes class scheduling, the attendance roster and walk-in
// sign-ups.  All routes require the STAFF role.
type StaffHandler struct {
	Coord *booking.Coordinator
}

// NewStaffHandler constructs a StaffHandler.
func NewStaffHandler(coord *booking.Coordinator) *StaffHandler {
	if coord == nil {
		panic("nil coordinator passed to NewStaffHandler")
	}
	return &StaffHandler{Coord: coord}
}

// CreateClass handles POST /v1/classes.
func (h *StaffHandler) CreateClass(c echo.Context) error {
	var body struct {
		Title       string    `json:"title"`
		CoachName   string    `json:"coach_name"`
		StartsAt    time.Time `json:"starts_at"`
		MaxCapacity uint32    `json:"max_capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Title == "" || body.MaxCapacity == 0 || body.StartsAt.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title, starts_at and max_capacity are required"})
	}
	cs := &model.ClassSession{
		Title:       body.Title,
		CoachName:   body.CoachName,
		StartsAt:    body.StartsAt.UTC(),
		MaxCapacity: body.MaxCapacity,
	}
	if err := h.Coord.CreateClass(c.Request().Context(), cs); err != nil {
		return coordError(c, err)
	}
	return c.JSON(http.StatusCreated, cs)
}

// ListClasses handles GET /v1/classes.
func (h *StaffHandler) ListClasses(c echo.Context) error {
	items, err := h.Coord.Classes(c.Request().Context())
	if err != nil {
		return coordError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// WalkIn handles POST /v1/classes/:id/walkins.  Staff record an on-site
// sign-up for the given member; capacity gating is bypassed.
func (h *StaffHandler) WalkIn(c echo.Context) error {
	classID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid class id"})
	}
	var body struct {
		UserID uint64 `json:"user_id"`
	}
	if err := c.Bind(&body); err != nil || body.UserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	res, err := h.Coord.WalkIn(c.Request().Context(), classID, body.UserID)
	if err != nil {
		return coordError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id": res.ID,
		"status":         res.Status,
	})
}

// Roster handles GET /v1/classes/:id/roster: confirmed seats, unanswered
// promotion holds and the waitlist in queue order.
func (h *StaffHandler) Roster(c echo.Context) error {
	classID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid class id"})
	}
	roster, err := h.Coord.RosterFor(c.Request().Context(), classID)
	if err != nil {
		return coordError(c, err)
	}
	return c.JSON(http.StatusOK, roster)
}
