package model

import "time"

// ReservationStatus enumerates the live states of a reservation.  Cancelled
// reservations are deleted outright, so there is no terminal status value.
type ReservationStatus string

const (
	// StatusConfirmed means the user holds a counted seat.
	StatusConfirmed ReservationStatus = "confirmed"
	// StatusWaitlist means the user is queued and holds no seat.  Waitlist
	// entries never contribute to a class's occupied count.
	StatusWaitlist ReservationStatus = "waitlist"
	// StatusPendingConfirmation means the user was promoted off the waitlist
	// and holds a seat that still needs their confirmation.  The seat is
	// already counted, so new joins cannot snipe it.
	StatusPendingConfirmation ReservationStatus = "pending_confirmation"
)

// Reservation records one user's claim on one class.  At most one live
// reservation exists per (class, user) pair.
//
// OrderedAt is assigned once when the reservation is created and orders the
// waitlist; promotion deliberately leaves it untouched so the original
// queue-entry order survives for auditing.  PromotedAt and OfferToken are set
// only while the reservation is a promotion hold.
type Reservation struct {
	ID         uint64            `json:"id"`                     // reservations.id
	ClassID    uint64            `json:"class_id"`               // reservations.class_id
	UserID     uint64            `json:"user_id"`                // reservations.user_id
	Status     ReservationStatus `json:"status"`                 // reservations.status
	OrderedAt  time.Time         `json:"ordered_at"`             // reservations.ordered_at
	PromotedAt *time.Time        `json:"promoted_at,omitempty"`  // reservations.promoted_at (nullable)
	OfferToken *string           `json:"offer_token,omitempty"`  // reservations.offer_token (nullable)
	CreatedAt  time.Time         `json:"created_at"`             // reservations.created_at
}

// CountsSeat reports whether this reservation occupies a capacity unit.
func (r *Reservation) CountsSeat() bool {
	return r.Status == StatusConfirmed || r.Status == StatusPendingConfirmation
}
