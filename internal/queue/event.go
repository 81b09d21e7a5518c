// Package queue defines the message payloads exchanged over the broker and
// the background consumer that drains them.  Delivery to members' devices is
// someone else's problem; this service only emits the facts.
package queue

// Queue names used for both publishing and consuming.
const (
	PromotionOfferedQueue     = "reservation.promoted"
	ReservationConfirmedQueue = "reservation.confirmed"
)

// PromotionOfferedEvent is published whenever a freed seat is offered to the
// head of a class's waitlist.  The offer token is a fresh UUID that lets a
// notification deep-link back to the exact promotion it announces.
type PromotionOfferedEvent struct {
	ReservationID uint64 `json:"reservation_id"`
	ClassID       uint64 `json:"class_id"`
	ClassTitle    string `json:"class_title"`
	UserID        uint64 `json:"user_id"`
	OfferToken    string `json:"offer_token"`
	PromotedAt    string `json:"promoted_at"`
	ExpiresAt     string `json:"expires_at"`
}

// ReservationConfirmedEvent is published when a member lands a counted seat:
// a join that found room, an accepted promotion, or a staff walk-in.
type ReservationConfirmedEvent struct {
	ReservationID uint64 `json:"reservation_id"`
	ClassID       uint64 `json:"class_id"`
	ClassTitle    string `json:"class_title"`
	UserID        uint64 `json:"user_id"`
	Via           string `json:"via"` // "join", "promotion" or "walk_in"
	ConfirmedAt   string `json:"confirmed_at"`
}
