// Sentinel errors shared by all store implementations.  Higher layers match
// them with errors.Is to translate persistence failures into their own
// taxonomy.
package store

import "errors"

// ErrClassNotFound is returned when the referenced class session does not
// exist.
var ErrClassNotFound = errors.New("class session not found")

// ErrReservationNotFound is returned when a reservation lookup matches no
// live row.  Cancelled reservations are deleted, so a stale id lands here.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrDuplicateReservation is returned when creating a reservation would give
// a user two simultaneous claims on the same class.
var ErrDuplicateReservation = errors.New("duplicate reservation for class and user")

// ErrBusy is returned by Atomic when the per-class transaction kept
// conflicting past the retry budget.  Callers may retry the whole operation.
var ErrBusy = errors.New("store busy, retry")
