package booking

import (
	"context"
	"errors"
	"time"

	"github.com/classfit/gym-class-reservation/internal/model"
	"github.com/classfit/gym-class-reservation/internal/store"
)

// StatusNone is the Status.State value for a user with no live claim.
const StatusNone = "none"

// Status describes one user's relationship to one class.  It drives the
// booking button: RESERVE for none, JOIN QUEUE when full, CANCEL for a held
// claim, CONFIRM SEAT for a pending promotion.
type Status struct {
	State       string             `json:"state"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
	Position    int                `json:"position,omitempty"`   // 1-based, waitlist only
	ConfirmBy   *time.Time         `json:"confirm_by,omitempty"` // pending_confirmation only
}

// StatusFor reports the user's current claim on a class.
func (c *Coordinator) StatusFor(ctx context.Context, classID, userID uint64) (*Status, error) {
	if _, err := c.store.ClassByID(ctx, classID); err != nil {
		return nil, err
	}
	r, err := c.store.LiveReservation(ctx, classID, userID)
	if errors.Is(err, store.ErrReservationNotFound) {
		return &Status{State: StatusNone}, nil
	}
	if err != nil {
		return nil, err
	}

	st := &Status{State: string(r.Status), Reservation: r}
	switch r.Status {
	case model.StatusWaitlist:
		pos, err := c.store.WaitlistPosition(ctx, r)
		if err != nil {
			return nil, err
		}
		st.Position = pos
	case model.StatusPendingConfirmation:
		deadline := r.PromotedAt.Add(c.promotionTTL)
		st.ConfirmBy = &deadline
	}
	return st, nil
}

// Offer is a pending promotion surfaced to its owner as a must-act item.
type Offer struct {
	Reservation model.Reservation `json:"reservation"`
	ConfirmBy   time.Time         `json:"confirm_by"`
}

// PendingPromotionFor returns the user's open promotion offer across all
// classes, or nil when there is none.
func (c *Coordinator) PendingPromotionFor(ctx context.Context, userID uint64) (*Offer, error) {
	r, err := c.store.PendingByUser(ctx, userID)
	if errors.Is(err, store.ErrReservationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Offer{
		Reservation: *r,
		ConfirmBy:   r.PromotedAt.Add(c.promotionTTL),
	}, nil
}

// Roster is the staff attendance view of one class: who holds a seat, who
// is sitting on an unanswered offer, and who is queued, in queue order.
type Roster struct {
	Class     model.ClassSession  `json:"class"`
	Confirmed []model.Reservation `json:"confirmed"`
	Pending   []model.Reservation `json:"pending"`
	Waitlist  []model.Reservation `json:"waitlist"`
}

// RosterFor assembles the roster for one class.
func (c *Coordinator) RosterFor(ctx context.Context, classID uint64) (*Roster, error) {
	cls, err := c.store.ClassByID(ctx, classID)
	if err != nil {
		return nil, err
	}
	rs, err := c.store.ReservationsByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	roster := &Roster{
		Class:     *cls,
		Confirmed: make([]model.Reservation, 0),
		Pending:   make([]model.Reservation, 0),
		Waitlist:  make([]model.Reservation, 0),
	}
	for _, r := range rs {
		switch r.Status {
		case model.StatusConfirmed:
			roster.Confirmed = append(roster.Confirmed, r)
		case model.StatusPendingConfirmation:
			roster.Pending = append(roster.Pending, r)
		case model.StatusWaitlist:
			roster.Waitlist = append(roster.Waitlist, r)
		}
	}
	return roster, nil
}

// ReservationsFor lists the user's live reservations, newest first.
func (c *Coordinator) ReservationsFor(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	return c.store.ReservationsByUser(ctx, userID)
}

// CreateClass schedules a new class session with an empty roster.
func (c *Coordinator) CreateClass(ctx context.Context, cs *model.ClassSession) error {
	return c.store.CreateClass(ctx, cs)
}

// Classes lists all class sessions with their current headcounts.
func (c *Coordinator) Classes(ctx context.Context) ([]model.ClassSession, error) {
	return c.store.ListClasses(ctx)
}
