package booking

import (
	"context"
	"testing"
	"time"

	"github.com/classfit/gym-class-reservation/internal/model"
)

func TestExpireDueHoldsCascades(t *testing.T) {
	c, _, fn, clk := newTestCoordinator(t)
	ctx := context.Background()
	classID := mustClass(t, c, 1)

	a, _, _ := c.Join(ctx, classID, 1)
	c.Join(ctx, classID, 2)
	clk.Advance(time.Second)
	c.Join(ctx, classID, 3)
	if err := c.Cancel(ctx, a.ID, 1); err != nil {
		t.Fatal(err)
	}

	// Fresh hold: the sweep leaves it alone.
	n, err := c.ExpireDueHolds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expired %d fresh holds, want 0", n)
	}

	clk.Advance(DefaultPromotionTTL + time.Second)
	n, err = c.ExpireDueHolds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}

	// User 2's lapsed hold cascaded to user 3; the seat stays counted.
	st, _ := c.StatusFor(ctx, classID, 2)
	if st.State != StatusNone {
		t.Fatalf("user 2 state=%s, want none", st.State)
	}
	st, _ = c.StatusFor(ctx, classID, 3)
	if st.State != string(model.StatusPendingConfirmation) {
		t.Fatalf("user 3 state=%s, want pending_confirmation", st.State)
	}
	roster, _ := c.RosterFor(ctx, classID)
	if roster.Class.OccupiedCount != 1 {
		t.Fatalf("occupied_count=%d, want 1", roster.Class.OccupiedCount)
	}
	if fn.offerCount() != 2 {
		t.Fatalf("offers=%d, want 2", fn.offerCount())
	}
	checkCounter(t, c, classID)
}

func TestExpireFreesSeatWhenQueueEmpty(t *testing.T) {
	c, _, _, clk := newTestCoordinator(t)
	ctx := context.Background()
	classID := mustClass(t, c, 1)

	a, _, _ := c.Join(ctx, classID, 1)
	c.Join(ctx, classID, 2)
	if err := c.Cancel(ctx, a.ID, 1); err != nil {
		t.Fatal(err)
	}

	clk.Advance(DefaultPromotionTTL + time.Second)
	n, err := c.ExpireDueHolds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	roster, _ := c.RosterFor(ctx, classID)
	if roster.Class.OccupiedCount != 0 {
		t.Fatalf("occupied_count=%d, want 0 after last hold lapses", roster.Class.OccupiedCount)
	}
	// The seat is bookable again.
	r, _, err := c.Join(ctx, classID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != model.StatusConfirmed {
		t.Fatalf("status=%s, want confirmed", r.Status)
	}
}

func TestExpireSkipsAcceptedHold(t *testing.T) {
	c, _, _, clk := newTestCoordinator(t)
	ctx := context.Background()
	classID := mustClass(t, c, 1)

	a, _, _ := c.Join(ctx, classID, 1)
	b, _, _ := c.Join(ctx, classID, 2)
	if err := c.Cancel(ctx, a.ID, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.AcceptPromotion(ctx, b.ID, 2); err != nil {
		t.Fatal(err)
	}

	clk.Advance(DefaultPromotionTTL + time.Hour)
	n, err := c.ExpireDueHolds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expired %d, want 0: confirmed seats never lapse", n)
	}
	st, _ := c.StatusFor(ctx, classID, 2)
	if st.State != string(model.StatusConfirmed) {
		t.Fatalf("user 2 state=%s, want confirmed", st.State)
	}
}

func TestReaperStopsOnContextCancel(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewReaper(c, 5*time.Millisecond, nil).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after context cancel")
	}
}
