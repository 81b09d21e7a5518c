package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/classfit/gym-class-reservation/internal/model"
	"github.com/classfit/gym-class-reservation/internal/store"
)

// ExpireDueHolds expires every promotion hold whose response window has
// closed, cascading each freed seat to the next waitlist head.  It returns
// the number of holds expired.  Each hold is re-checked inside its class
// transaction, so a concurrent AcceptPromotion that slips in first simply
// wins and the sweep moves on.
func (c *Coordinator) ExpireDueHolds(ctx context.Context) (int, error) {
	cutoff := c.now().UTC().Add(-c.promotionTTL)
	due, err := c.store.ExpiredHolds(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, hold := range due {
		ok, err := c.expireHold(ctx, &hold)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// expireHold removes one lapsed hold.  Returns false when the hold was
// already gone, confirmed, or no longer lapsed by the time we held the
// class lock.
func (c *Coordinator) expireHold(ctx context.Context, hold *model.Reservation) (bool, error) {
	var (
		promoted *model.Reservation
		title    string
	)
	err := c.store.Atomic(ctx, hold.ClassID, func(tx store.Tx) error {
		promoted = nil
		cls, err := tx.Class(ctx)
		if err != nil {
			return err
		}
		title = cls.Title
		r, err := tx.Reservation(ctx, hold.ID)
		if err != nil {
			return err
		}
		if r.Status != model.StatusPendingConfirmation {
			return errSkipHold
		}
		if c.now().Before(r.PromotedAt.Add(c.promotionTTL)) {
			return errSkipHold
		}
		if err := tx.DeleteReservation(ctx, r.ID); err != nil {
			return err
		}
		promoted, err = c.releaseSeat(ctx, tx)
		return err
	})
	if errors.Is(err, errSkipHold) || errors.Is(err, store.ErrReservationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreErr(err)
	}

	c.log.Info("promotion hold expired",
		zap.Uint64("class_id", hold.ClassID),
		zap.Uint64("user_id", hold.UserID),
		zap.Uint64("reservation_id", hold.ID),
		zap.Bool("promoted_next", promoted != nil),
	)
	if promoted != nil {
		c.notifyPromoted(ctx, promoted, title)
	}
	return true, nil
}

// errSkipHold aborts an expiry transaction that found the hold already
// resolved.  Never escapes this file.
var errSkipHold = errors.New("hold no longer due")

// Reaper drives ExpireDueHolds on a fixed interval until its context ends.
type Reaper struct {
	coord    *Coordinator
	interval time.Duration
	log      *zap.Logger
}

// NewReaper builds a reaper.  interval <= 0 selects one minute.
func NewReaper(coord *Coordinator, interval time.Duration, log *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{coord: coord, interval: interval, log: log}
}

// Run blocks until ctx is cancelled.  Sweep failures are logged and the next
// tick tries again; a broken store must not kill the process.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.coord.ExpireDueHolds(ctx)
			if err != nil {
				r.log.Warn("expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				r.log.Info("expiry sweep", zap.Int("expired", n))
			}
		}
	}
}
