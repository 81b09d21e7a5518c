package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/classfit/gym-class-reservation/internal/booking"
	"github.com/classfit/gym-class-reservation/internal/model"
)

// MemberHandler exposes the booking operations a gym member can perform on
// their own reservations.  JWT auth and the MEMBER role gate run before any
// of these methods.
type MemberHandler struct {
	Coord *booking.Coordinator
}

// NewMemberHandler constructs a MemberHandler.
func NewMemberHandler(coord *booking.Coordinator) *MemberHandler {
	if coord == nil {
		panic("nil coordinator passed to NewMemberHandler")
	}
	return &MemberHandler{Coord: coord}
}

// Join handles POST /v1/classes/:id/join.  Returns 201 with the reservation;
// when the class is full the reservation is waitlisted and the response
// carries the queue position assigned inside the join transaction.
func (h *MemberHandler) Join(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	classID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid class id"})
	}

	res, position, err := h.Coord.Join(c.Request().Context(), classID, userID)
	if err != nil {
		return coordError(c, err)
	}

	body := echo.Map{
		"reservation_id": res.ID,
		"status":         res.Status,
	}
	if res.Status == model.StatusWaitlist {
		body["position"] = position
	}
	return c.JSON(http.StatusCreated, body)
}

// Cancel handles DELETE /v1/reservations/:id.  204 on success; retrying a
// completed cancel yields 404, never a second promotion.
func (h *MemberHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	if err := h.Coord.Cancel(c.Request().Context(), resID, userID); err != nil {
		return coordError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ConfirmSeat handles POST /v1/reservations/:id/confirm: the promoted member
// accepts their offered seat.
func (h *MemberHandler) ConfirmSeat(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	if err := h.Coord.AcceptPromotion(c.Request().Context(), resID, userID); err != nil {
		return coordError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.StatusConfirmed})
}

// Status handles GET /v1/classes/:id/status and reports the caller's claim
// on the class, driving the booking-button state in the UI.
func (h *MemberHandler) Status(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	classID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid class id"})
	}
	st, err := h.Coord.StatusFor(c.Request().Context(), classID, userID)
	if err != nil {
		return coordError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// PendingOffer handles GET /v1/pending-offer.  Returns the caller's open
// promotion offer, or {"offer": null} when there is none.
func (h *MemberHandler) PendingOffer(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	offer, err := h.Coord.PendingPromotionFor(c.Request().Context(), userID)
	if err != nil {
		return coordError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"offer": offer})
}

// MyReservations handles GET /v1/my-reservations.
func (h *MemberHandler) MyReservations(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Coord.ReservationsFor(c.Request().Context(), userID)
	if err != nil {
		return coordError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
