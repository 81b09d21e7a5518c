// Package memory implements store.Store entirely in process memory.  Each
// class carries its own mutex, so transactions for different classes run in
// parallel while all mutations of one class are serialized, mirroring the
// row-lock behaviour of the MySQL backend.  It backs the test suite and the
// local development mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/classfit/gym-class-reservation/internal/model"
	"github.com/classfit/gym-class-reservation/internal/store"
)

// Store holds all state.  The outer RWMutex guards the class map and the
// reservation index; per-class mutexes guard class contents.  Lock order is
// classState.mu before Store.mu, never the other way around while both are
// held.
type Store struct {
	mu       sync.RWMutex
	classes  map[uint64]*classState
	resIndex map[uint64]uint64 // reservation id -> class id

	nextClassID atomic.Uint64
	nextResID   atomic.Uint64
}

type classState struct {
	mu           sync.Mutex
	class        model.ClassSession
	reservations map[uint64]model.Reservation
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		classes:  make(map[uint64]*classState),
		resIndex: make(map[uint64]uint64),
	}
}

func (s *Store) classState(classID uint64) *classState {
	s.mu.RLock()
	cs := s.classes[classID]
	s.mu.RUnlock()
	return cs
}

// Atomic runs fn against working copies of the class row and its
// reservations.  Only when fn succeeds are the copies swapped in, so a
// failing fn leaves no partial writes behind.
func (s *Store) Atomic(ctx context.Context, classID uint64, fn func(store.Tx) error) error {
	cs := s.classState(classID)
	if cs == nil {
		return store.ErrClassNotFound
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:       s,
		classID: classID,
		class:   cs.class,
		res:     cloneReservations(cs.reservations),
	}
	if err := fn(tx); err != nil {
		return err
	}

	cs.class = tx.class
	cs.reservations = tx.res
	if len(tx.created) > 0 || len(tx.deleted) > 0 {
		s.mu.Lock()
		for _, id := range tx.created {
			s.resIndex[id] = classID
		}
		for _, id := range tx.deleted {
			delete(s.resIndex, id)
		}
		s.mu.Unlock()
	}
	return nil
}

func cloneReservations(in map[uint64]model.Reservation) map[uint64]model.Reservation {
	out := make(map[uint64]model.Reservation, len(in))
	for id, r := range in {
		out[id] = r
	}
	return out
}

// memTx mutates working copies only; Atomic commits them on success.
type memTx struct {
	s       *Store
	classID uint64
	class   model.ClassSession
	res     map[uint64]model.Reservation
	created []uint64
	deleted []uint64
}

func (t *memTx) Class(ctx context.Context) (*model.ClassSession, error) {
	c := t.class
	return &c, nil
}

func (t *memTx) SetOccupied(ctx context.Context, n uint32) error {
	t.class.OccupiedCount = n
	t.class.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) Reservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, ok := t.res[id]
	if !ok {
		return nil, store.ErrReservationNotFound
	}
	cp := r
	return &cp, nil
}

func (t *memTx) LiveReservation(ctx context.Context, userID uint64) (*model.Reservation, error) {
	for _, r := range t.res {
		if r.UserID == userID {
			cp := r
			return &cp, nil
		}
	}
	return nil, store.ErrReservationNotFound
}

func (t *memTx) CreateReservation(ctx context.Context, r *model.Reservation) error {
	for _, existing := range t.res {
		if existing.UserID == r.UserID {
			return store.ErrDuplicateReservation
		}
	}
	r.ID = t.s.nextResID.Add(1)
	r.ClassID = t.classID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = r.OrderedAt
	}
	t.res[r.ID] = *r
	t.created = append(t.created, r.ID)
	return nil
}

func (t *memTx) DeleteReservation(ctx context.Context, id uint64) error {
	if _, ok := t.res[id]; !ok {
		return store.ErrReservationNotFound
	}
	delete(t.res, id)
	t.deleted = append(t.deleted, id)
	return nil
}

func (t *memTx) Promote(ctx context.Context, id uint64, at time.Time, token string) error {
	r, ok := t.res[id]
	if !ok {
		return store.ErrReservationNotFound
	}
	at = at.UTC()
	r.Status = model.StatusPendingConfirmation
	r.PromotedAt = &at
	r.OfferToken = &token
	t.res[id] = r
	return nil
}

func (t *memTx) Confirm(ctx context.Context, id uint64) error {
	r, ok := t.res[id]
	if !ok {
		return store.ErrReservationNotFound
	}
	r.Status = model.StatusConfirmed
	t.res[id] = r
	return nil
}

func (t *memTx) WaitlistHead(ctx context.Context) (*model.Reservation, error) {
	var head *model.Reservation
	for _, r := range t.res {
		if r.Status != model.StatusWaitlist {
			continue
		}
		r := r
		if head == nil || before(&r, head) {
			head = &r
		}
	}
	return head, nil
}

func (t *memTx) WaitlistSize(ctx context.Context) (int, error) {
	n := 0
	for _, r := range t.res {
		if r.Status == model.StatusWaitlist {
			n++
		}
	}
	return n, nil
}

// before orders waitlist entries by OrderedAt, ties broken by id.
func before(a, b *model.Reservation) bool {
	if a.OrderedAt.Equal(b.OrderedAt) {
		return a.ID < b.ID
	}
	return a.OrderedAt.Before(b.OrderedAt)
}

func (s *Store) CreateClass(ctx context.Context, cs *model.ClassSession) error {
	now := time.Now().UTC()
	cs.ID = s.nextClassID.Add(1)
	cs.CreatedAt = now
	cs.UpdatedAt = now
	state := &classState{
		class:        *cs,
		reservations: make(map[uint64]model.Reservation),
	}
	s.mu.Lock()
	s.classes[cs.ID] = state
	s.mu.Unlock()
	return nil
}

func (s *Store) ClassByID(ctx context.Context, classID uint64) (*model.ClassSession, error) {
	cs := s.classState(classID)
	if cs == nil {
		return nil, store.ErrClassNotFound
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c := cs.class
	return &c, nil
}

func (s *Store) ListClasses(ctx context.Context) ([]model.ClassSession, error) {
	states := s.snapshot()
	out := make([]model.ClassSession, 0, len(states))
	for _, cs := range states {
		cs.mu.Lock()
		out = append(out, cs.class)
		cs.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) snapshot() []*classState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*classState, 0, len(s.classes))
	for _, cs := range s.classes {
		out = append(out, cs)
	}
	return out
}

func (s *Store) ReservationByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	s.mu.RLock()
	classID, ok := s.resIndex[id]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrReservationNotFound
	}
	cs := s.classState(classID)
	if cs == nil {
		return nil, store.ErrReservationNotFound
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	r, ok := cs.reservations[id]
	if !ok {
		return nil, store.ErrReservationNotFound
	}
	cp := r
	return &cp, nil
}

func (s *Store) LiveReservation(ctx context.Context, classID, userID uint64) (*model.Reservation, error) {
	cs := s.classState(classID)
	if cs == nil {
		return nil, store.ErrClassNotFound
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, r := range cs.reservations {
		if r.UserID == userID {
			cp := r
			return &cp, nil
		}
	}
	return nil, store.ErrReservationNotFound
}

func (s *Store) ReservationsByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, cs := range s.snapshot() {
		cs.mu.Lock()
		for _, r := range cs.reservations {
			if r.UserID == userID {
				out = append(out, r)
			}
		}
		cs.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderedAt.After(out[j].OrderedAt) })
	return out, nil
}

func (s *Store) ReservationsByClass(ctx context.Context, classID uint64) ([]model.Reservation, error) {
	cs := s.classState(classID)
	if cs == nil {
		return nil, store.ErrClassNotFound
	}
	cs.mu.Lock()
	out := make([]model.Reservation, 0, len(cs.reservations))
	for _, r := range cs.reservations {
		out = append(out, r)
	}
	cs.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		return before(&a, &b)
	})
	return out, nil
}

func (s *Store) PendingByUser(ctx context.Context, userID uint64) (*model.Reservation, error) {
	var oldest *model.Reservation
	for _, cs := range s.snapshot() {
		cs.mu.Lock()
		for _, r := range cs.reservations {
			if r.UserID != userID || r.Status != model.StatusPendingConfirmation {
				continue
			}
			r := r
			if oldest == nil || r.PromotedAt.Before(*oldest.PromotedAt) {
				oldest = &r
			}
		}
		cs.mu.Unlock()
	}
	if oldest == nil {
		return nil, store.ErrReservationNotFound
	}
	return oldest, nil
}

func (s *Store) ExpiredHolds(ctx context.Context, cutoff time.Time) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, cs := range s.snapshot() {
		cs.mu.Lock()
		for _, r := range cs.reservations {
			if r.Status == model.StatusPendingConfirmation && !r.PromotedAt.After(cutoff) {
				out = append(out, r)
			}
		}
		cs.mu.Unlock()
	}
	return out, nil
}

func (s *Store) WaitlistPosition(ctx context.Context, r *model.Reservation) (int, error) {
	cs := s.classState(r.ClassID)
	if cs == nil {
		return 0, store.ErrClassNotFound
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	pos := 1
	for _, other := range cs.reservations {
		if other.Status != model.StatusWaitlist || other.ID == r.ID {
			continue
		}
		other := other
		if before(&other, r) {
			pos++
		}
	}
	return pos, nil
}
