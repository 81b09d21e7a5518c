package booking

import (
	"errors"

	"github.com/classfit/gym-class-reservation/internal/store"
)

// Error taxonomy of the coordinator.  Everything here is recoverable at the
// caller; handlers translate these into HTTP responses.
var (
	// ErrAlreadyReserved means the user already has a live claim on the
	// class.  Claims are rejected, never merged.
	ErrAlreadyReserved = errors.New("user already has a reservation for this class")

	// ErrNotOwner means the caller does not own the reservation.
	ErrNotOwner = errors.New("reservation belongs to another user")

	// ErrNotPending means AcceptPromotion was called on a reservation that
	// is not awaiting confirmation.
	ErrNotPending = errors.New("reservation is not awaiting confirmation")

	// ErrExpired means the promotion offer lapsed before the user answered.
	// The seat has already been passed on.
	ErrExpired = errors.New("promotion offer expired")

	// ErrUnavailable is the transient failure surfaced when per-class
	// transactions kept conflicting past the retry budget.
	ErrUnavailable = errors.New("service temporarily unavailable, retry")

	// ErrClassNotFound and ErrReservationNotFound are the store's sentinels,
	// re-exported so callers need only this package for matching.
	ErrClassNotFound       = store.ErrClassNotFound
	ErrReservationNotFound = store.ErrReservationNotFound
)

// mapStoreErr normalizes store-level transient failures into the
// coordinator's taxonomy.  Domain errors pass through untouched.
func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrBusy) {
		return ErrUnavailable
	}
	return err
}
