// Package store defines the persistence seam of the reservation engine.  The
// coordinator is written against these interfaces; MySQL and an in-memory
// implementation live in subpackages.  Any backend works as long as it can
// run an atomic read-modify-write scoped to a single class session.
package store

import (
	"context"
	"time"

	"github.com/classfit/gym-class-reservation/internal/model"
)

// Tx is the handle passed to the function run by Store.Atomic.  Every method
// operates on the single class the transaction was opened for; reservation
// lookups outside that class fail with ErrReservationNotFound.
//
// Implementations must guarantee that reads through a Tx observe all writes
// made earlier in the same Tx, and that nothing outside the Tx observes any
// write until Atomic returns nil.
type Tx interface {
	// Class returns the class session row, locked for the duration of the
	// transaction.
	Class(ctx context.Context) (*model.ClassSession, error)

	// SetOccupied overwrites the class's occupied seat counter.
	SetOccupied(ctx context.Context, n uint32) error

	// Reservation loads a reservation of this class by id.
	Reservation(ctx context.Context, id uint64) (*model.Reservation, error)

	// LiveReservation loads the user's reservation on this class, if any.
	LiveReservation(ctx context.Context, userID uint64) (*model.Reservation, error)

	// CreateReservation inserts a reservation and fills in its generated ID.
	CreateReservation(ctx context.Context, r *model.Reservation) error

	// DeleteReservation removes a reservation row outright.
	DeleteReservation(ctx context.Context, id uint64) error

	// Promote moves a reservation to pending_confirmation, stamping the
	// promotion time and offer token.
	Promote(ctx context.Context, id uint64, at time.Time, token string) error

	// Confirm moves a pending_confirmation reservation to confirmed.  The
	// promotion audit fields are left in place.
	Confirm(ctx context.Context, id uint64) error

	// WaitlistHead returns the waitlisted reservation with the smallest
	// OrderedAt (ties broken by id), or nil when the waitlist is empty.
	WaitlistHead(ctx context.Context) (*model.Reservation, error)

	// WaitlistSize returns the number of waitlisted reservations on this
	// class, including rows created earlier in the same Tx.
	WaitlistSize(ctx context.Context) (int, error)
}

// Store is the full persistence surface.  Atomic is the only way to mutate a
// class or its reservations; the remaining methods are plain reads used by
// views and the expiry sweeper.
type Store interface {
	// Atomic runs fn inside a transaction that linearizes all mutations of
	// classID.  Two Atomic calls for the same class never interleave; calls
	// for different classes may run in parallel.  When fn returns an error
	// the transaction is rolled back and the error is returned unchanged.
	// ErrBusy is returned when the transaction could not be completed within
	// the implementation's conflict-retry budget.
	Atomic(ctx context.Context, classID uint64, fn func(Tx) error) error

	CreateClass(ctx context.Context, cs *model.ClassSession) error
	ClassByID(ctx context.Context, classID uint64) (*model.ClassSession, error)
	ListClasses(ctx context.Context) ([]model.ClassSession, error)

	// ReservationByID resolves a reservation without knowing its class.
	ReservationByID(ctx context.Context, id uint64) (*model.Reservation, error)

	// LiveReservation returns the user's reservation on a class, or
	// ErrReservationNotFound.
	LiveReservation(ctx context.Context, classID, userID uint64) (*model.Reservation, error)

	// ReservationsByUser lists a user's live reservations across all classes,
	// newest first.
	ReservationsByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)

	// ReservationsByClass lists all live reservations of a class ordered by
	// OrderedAt ascending.
	ReservationsByClass(ctx context.Context, classID uint64) ([]model.Reservation, error)

	// PendingByUser returns the user's pending_confirmation reservation
	// across all classes, or ErrReservationNotFound.  The uniqueness
	// invariant is per class, but in practice a user rarely holds more than
	// one offer; when they do, the oldest promotion wins.
	PendingByUser(ctx context.Context, userID uint64) (*model.Reservation, error)

	// ExpiredHolds lists pending_confirmation reservations promoted at or
	// before cutoff, across all classes.
	ExpiredHolds(ctx context.Context, cutoff time.Time) ([]model.Reservation, error)

	// WaitlistPosition returns the 1-based queue position a waitlisted
	// reservation occupies on its class.
	WaitlistPosition(ctx context.Context, r *model.Reservation) (int, error)
}
