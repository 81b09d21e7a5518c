// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/classfit/gym-class-reservation/internal/handler"
	"github.com/classfit/gym-class-reservation/internal/middleware"
)

// RegisterRoutes registers routes that require no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterMember registers member booking endpoints under /v1.  Every route
// requires a valid JWT with the MEMBER role.
func RegisterMember(e *echo.Echo, h *handler.MemberHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleMember),
	)
	g.POST("/classes/:id/join", h.Join)
	g.GET("/classes/:id/status", h.Status)
	g.DELETE("/reservations/:id", h.Cancel)
	g.POST("/reservations/:id/confirm", h.ConfirmSeat)
	g.GET("/pending-offer", h.PendingOffer)
	g.GET("/my-reservations", h.MyReservations)
}

// RegisterStaff registers scheduling and attendance endpoints under /v1.
// Every route requires the STAFF role.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleStaff),
	)
	g.POST("/classes", h.CreateClass)
	g.GET("/classes", h.ListClasses)
	g.POST("/classes/:id/walkins", h.WalkIn)
	g.GET("/classes/:id/roster", h.Roster)
}
