// Package booking implements the reservation coordinator: the only code path
// allowed to mutate a class's seat counter or a reservation's status.  Each
// operation runs as one atomic transaction scoped to a single class, so a
// cancel and a concurrent join can never both see the same free seat.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classfit/gym-class-reservation/internal/model"
	"github.com/classfit/gym-class-reservation/internal/queue"
	"github.com/classfit/gym-class-reservation/internal/store"
)

// DefaultPromotionTTL is how long a promoted member has to confirm their
// seat before the offer lapses and cascades to the next in line.  Fifteen
// minutes is long enough to answer a push notification and short enough that
// an unresponsive member does not strand the seat.
const DefaultPromotionTTL = 15 * time.Minute

// Notifier receives domain events after a transaction commits.  Publishing
// is fire-and-forget: implementations log failures and never block the
// booking path for long.
type Notifier interface {
	PromotionOffered(ctx context.Context, ev queue.PromotionOfferedEvent)
	ReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent)
}

// Coordinator applies the five reservation operations against a Store.
type Coordinator struct {
	store        store.Store
	notifier     Notifier
	log          *zap.Logger
	promotionTTL time.Duration

	now func() time.Time // swapped out by tests
}

// New builds a Coordinator.  notifier may be nil when no broker is
// configured; log may be nil; promotionTTL <= 0 selects the default.
func New(st store.Store, notifier Notifier, log *zap.Logger, promotionTTL time.Duration) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if promotionTTL <= 0 {
		promotionTTL = DefaultPromotionTTL
	}
	return &Coordinator{
		store:        st,
		notifier:     notifier,
		log:          log,
		promotionTTL: promotionTTL,
		now:          time.Now,
	}
}

// PromotionTTL reports the configured response window for promotion offers.
func (c *Coordinator) PromotionTTL() time.Duration { return c.promotionTTL }

// Join books a seat in the class, or queues the user when the class is full.
// The capacity check and the reservation insert happen in one transaction,
// which closes the "N users race the last seat" hole.  For a waitlisted join
// the returned position is the 1-based queue slot computed inside that same
// transaction; it is zero when the seat was confirmed outright.
func (c *Coordinator) Join(ctx context.Context, classID, userID uint64) (*model.Reservation, int, error) {
	var (
		res      *model.Reservation
		position int
		title    string
	)
	err := c.store.Atomic(ctx, classID, func(tx store.Tx) error {
		res, position = nil, 0
		cls, err := tx.Class(ctx)
		if err != nil {
			return err
		}
		title = cls.Title
		if _, err := tx.LiveReservation(ctx, userID); err == nil {
			return ErrAlreadyReserved
		} else if !errors.Is(err, store.ErrReservationNotFound) {
			return err
		}

		r := &model.Reservation{
			UserID:    userID,
			Status:    model.StatusWaitlist,
			OrderedAt: c.now().UTC(),
		}
		if cls.OccupiedCount < cls.MaxCapacity {
			r.Status = model.StatusConfirmed
			if err := tx.SetOccupied(ctx, cls.OccupiedCount+1); err != nil {
				return err
			}
		}
		if err := tx.CreateReservation(ctx, r); err != nil {
			if errors.Is(err, store.ErrDuplicateReservation) {
				return ErrAlreadyReserved
			}
			return err
		}
		if r.Status == model.StatusWaitlist {
			// The new entry has the latest OrderedAt, so it sits at the
			// tail: its position is the waitlist size.
			n, err := tx.WaitlistSize(ctx)
			if err != nil {
				return err
			}
			position = n
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, 0, mapStoreErr(err)
	}

	c.log.Info("join",
		zap.Uint64("class_id", classID),
		zap.Uint64("user_id", userID),
		zap.Uint64("reservation_id", res.ID),
		zap.String("status", string(res.Status)),
		zap.Int("position", position),
	)
	if res.Status == model.StatusConfirmed {
		c.notifyConfirmed(ctx, res, title, "join")
	}
	return res, position, nil
}

// Cancel removes the caller's reservation.  Cancelling a waitlist entry
// touches nothing else; cancelling a counted seat hands it to the waitlist
// head as a hold, or returns it to the pool when nobody is queued.  A retry
// of an already-completed cancel sees ErrReservationNotFound, never a second
// promotion.
func (c *Coordinator) Cancel(ctx context.Context, reservationID, callerID uint64) error {
	stale, err := c.store.ReservationByID(ctx, reservationID)
	if err != nil {
		return mapStoreErr(err)
	}
	if stale.UserID != callerID {
		return ErrNotOwner
	}

	var (
		promoted *model.Reservation
		title    string
	)
	err = c.store.Atomic(ctx, stale.ClassID, func(tx store.Tx) error {
		promoted = nil
		cls, err := tx.Class(ctx)
		if err != nil {
			return err
		}
		title = cls.Title
		r, err := tx.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.UserID != callerID {
			return ErrNotOwner
		}
		if err := tx.DeleteReservation(ctx, r.ID); err != nil {
			return err
		}
		if r.Status == model.StatusWaitlist {
			// Never counted; the seat pool is untouched.
			return nil
		}
		promoted, err = c.releaseSeat(ctx, tx)
		return err
	})
	if err != nil {
		return mapStoreErr(err)
	}

	c.log.Info("cancel",
		zap.Uint64("class_id", stale.ClassID),
		zap.Uint64("user_id", callerID),
		zap.Uint64("reservation_id", reservationID),
		zap.String("prior_status", string(stale.Status)),
		zap.Bool("promoted_next", promoted != nil),
	)
	if promoted != nil {
		c.notifyPromoted(ctx, promoted, title)
	}
	return nil
}

// releaseSeat runs inside a transaction that just freed a counted seat.  The
// waitlist head, if any, takes the seat over as a pending hold; the counter
// stays put so new joins cannot snipe the seat out from under the queue.
// Only with an empty waitlist does the counter actually drop.
func (c *Coordinator) releaseSeat(ctx context.Context, tx store.Tx) (*model.Reservation, error) {
	head, err := tx.WaitlistHead(ctx)
	if err != nil {
		return nil, err
	}
	if head != nil {
		at := c.now().UTC()
		token := uuid.NewString()
		if err := tx.Promote(ctx, head.ID, at, token); err != nil {
			return nil, err
		}
		head.Status = model.StatusPendingConfirmation
		head.PromotedAt = &at
		head.OfferToken = &token
		return head, nil
	}
	cls, err := tx.Class(ctx)
	if err != nil {
		return nil, err
	}
	if cls.OccupiedCount > 0 {
		if err := tx.SetOccupied(ctx, cls.OccupiedCount-1); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// AcceptPromotion confirms the caller's promotion hold.  The seat was
// counted the moment they were promoted, so the counter does not move.  An
// offer answered after its deadline is expired in place: the hold cascades
// to the next head and the caller gets ErrExpired.
func (c *Coordinator) AcceptPromotion(ctx context.Context, reservationID, callerID uint64) error {
	stale, err := c.store.ReservationByID(ctx, reservationID)
	if err != nil {
		return mapStoreErr(err)
	}
	if stale.UserID != callerID {
		return ErrNotOwner
	}

	var (
		confirmed *model.Reservation
		promoted  *model.Reservation
		lapsed    bool
		title     string
	)
	err = c.store.Atomic(ctx, stale.ClassID, func(tx store.Tx) error {
		confirmed, promoted, lapsed = nil, nil, false
		cls, err := tx.Class(ctx)
		if err != nil {
			return err
		}
		title = cls.Title
		r, err := tx.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.UserID != callerID {
			return ErrNotOwner
		}
		if r.Status != model.StatusPendingConfirmation {
			return ErrNotPending
		}
		if c.now().After(r.PromotedAt.Add(c.promotionTTL)) {
			// Too late; same cascade as a cancel with no response.
			lapsed = true
			if err := tx.DeleteReservation(ctx, r.ID); err != nil {
				return err
			}
			promoted, err = c.releaseSeat(ctx, tx)
			return err
		}
		if err := tx.Confirm(ctx, r.ID); err != nil {
			return err
		}
		r.Status = model.StatusConfirmed
		confirmed = r
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	if lapsed {
		c.log.Info("promotion expired on accept",
			zap.Uint64("reservation_id", reservationID),
			zap.Uint64("user_id", callerID),
			zap.Bool("promoted_next", promoted != nil),
		)
		if promoted != nil {
			c.notifyPromoted(ctx, promoted, title)
		}
		return ErrExpired
	}

	c.log.Info("promotion accepted",
		zap.Uint64("class_id", stale.ClassID),
		zap.Uint64("user_id", callerID),
		zap.Uint64("reservation_id", reservationID),
	)
	c.notifyConfirmed(ctx, confirmed, title, "promotion")
	return nil
}

// WalkIn records a staff-entered on-site sign-up.  The reservation is
// confirmed immediately and the counter is bumped unconditionally; a class
// showing over capacity after walk-ins is accepted behaviour, not a bug.
func (c *Coordinator) WalkIn(ctx context.Context, classID, userID uint64) (*model.Reservation, error) {
	var (
		res   *model.Reservation
		title string
	)
	err := c.store.Atomic(ctx, classID, func(tx store.Tx) error {
		cls, err := tx.Class(ctx)
		if err != nil {
			return err
		}
		title = cls.Title
		if _, err := tx.LiveReservation(ctx, userID); err == nil {
			return ErrAlreadyReserved
		} else if !errors.Is(err, store.ErrReservationNotFound) {
			return err
		}
		r := &model.Reservation{
			UserID:    userID,
			Status:    model.StatusConfirmed,
			OrderedAt: c.now().UTC(),
		}
		if err := tx.SetOccupied(ctx, cls.OccupiedCount+1); err != nil {
			return err
		}
		if err := tx.CreateReservation(ctx, r); err != nil {
			if errors.Is(err, store.ErrDuplicateReservation) {
				return ErrAlreadyReserved
			}
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	c.log.Info("walk-in",
		zap.Uint64("class_id", classID),
		zap.Uint64("user_id", userID),
		zap.Uint64("reservation_id", res.ID),
	)
	c.notifyConfirmed(ctx, res, title, "walk_in")
	return res, nil
}

func (c *Coordinator) notifyPromoted(ctx context.Context, r *model.Reservation, classTitle string) {
	if c.notifier == nil {
		return
	}
	c.notifier.PromotionOffered(ctx, queue.PromotionOfferedEvent{
		ReservationID: r.ID,
		ClassID:       r.ClassID,
		ClassTitle:    classTitle,
		UserID:        r.UserID,
		OfferToken:    derefString(r.OfferToken),
		PromotedAt:    r.PromotedAt.Format(time.RFC3339),
		ExpiresAt:     r.PromotedAt.Add(c.promotionTTL).Format(time.RFC3339),
	})
}

func (c *Coordinator) notifyConfirmed(ctx context.Context, r *model.Reservation, classTitle, via string) {
	if c.notifier == nil {
		return
	}
	c.notifier.ReservationConfirmed(ctx, queue.ReservationConfirmedEvent{
		ReservationID: r.ID,
		ClassID:       r.ClassID,
		ClassTitle:    classTitle,
		UserID:        r.UserID,
		Via:           via,
		ConfirmedAt:   c.now().UTC().Format(time.RFC3339),
	})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
