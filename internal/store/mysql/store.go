// Package mysql implements store.Store on MySQL.  Every Atomic call locks
// the class session row with SELECT ... FOR UPDATE before anything else, so
// all mutators of one class are serialized by the database while classes
// stay independent.  Deadlocks and lock-wait timeouts are retried a bounded
// number of times before surfacing as store.ErrBusy.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/classfit/gym-class-reservation/internal/model"
	"github.com/classfit/gym-class-reservation/internal/store"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrDuplicateEntry  = 1062

	maxAttempts  = 3
	retryBackoff = 50 * time.Millisecond
)

// Store wraps a MySQL connection pool.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New returns a Store bound to the given database handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Atomic begins a transaction, takes the class row lock, runs fn and
// commits.  The whole sequence is retried on deadlock or lock-wait timeout;
// errors returned by fn abort without retry.
func (s *Store) Atomic(ctx context.Context, classID uint64, fn func(store.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff << attempt):
			}
		}
		err := s.runOnce(ctx, classID, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", store.ErrBusy, lastErr)
}

func (s *Store) runOnce(ctx context.Context, classID uint64, fn func(store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock the class row up front; this is what linearizes the class.
	var id uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM class_sessions WHERE id = ? FOR UPDATE`, classID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrClassNotFound
	}
	if err != nil {
		return fmt.Errorf("lock class row: %w", err)
	}

	if err := fn(&sqlTx{tx: tx, classID: classID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

func retryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTimeout
	}
	return false
}

const reservationCols = `id, class_id, user_id, status, ordered_at, promoted_at, offer_token, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		r          model.Reservation
		promotedAt sql.NullTime
		offerToken sql.NullString
	)
	err := row.Scan(&r.ID, &r.ClassID, &r.UserID, &r.Status, &r.OrderedAt,
		&promotedAt, &offerToken, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if promotedAt.Valid {
		at := promotedAt.Time.UTC()
		r.PromotedAt = &at
	}
	if offerToken.Valid {
		tok := offerToken.String
		r.OfferToken = &tok
	}
	return &r, nil
}

// sqlTx scopes store.Tx operations to one class inside an open transaction.
type sqlTx struct {
	tx      *sql.Tx
	classID uint64
}

func (t *sqlTx) Class(ctx context.Context) (*model.ClassSession, error) {
	const q = `SELECT id, title, coach_name, starts_at, max_capacity, occupied_count, created_at, updated_at
	           FROM class_sessions WHERE id = ?`
	var c model.ClassSession
	err := t.tx.QueryRowContext(ctx, q, t.classID).Scan(
		&c.ID, &c.Title, &c.CoachName, &c.StartsAt, &c.MaxCapacity, &c.OccupiedCount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load class: %w", err)
	}
	return &c, nil
}

func (t *sqlTx) SetOccupied(ctx context.Context, n uint32) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE class_sessions SET occupied_count = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		n, t.classID,
	)
	if err != nil {
		return fmt.Errorf("update occupied count: %w", err)
	}
	return nil
}

func (t *sqlTx) Reservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = ? AND class_id = ?`,
		id, t.classID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	return r, nil
}

func (t *sqlTx) LiveReservation(ctx context.Context, userID uint64) (*model.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE class_id = ? AND user_id = ?`,
		t.classID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load live reservation: %w", err)
	}
	return r, nil
}

func (t *sqlTx) CreateReservation(ctx context.Context, r *model.Reservation) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO reservations (class_id, user_id, status, ordered_at) VALUES (?, ?, ?, ?)`,
		t.classID, r.UserID, r.Status, r.OrderedAt.UTC(),
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry {
			return store.ErrDuplicateReservation
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reservation insert id: %w", err)
	}
	r.ID = uint64(id)
	r.ClassID = t.classID
	// Query back the DB-assigned creation timestamp.
	err = t.tx.QueryRowContext(ctx,
		`SELECT created_at FROM reservations WHERE id = ?`, r.ID,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("read back reservation: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteReservation(ctx context.Context, id uint64) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM reservations WHERE id = ? AND class_id = ?`, id, t.classID,
	)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reservation rows: %w", err)
	}
	if n == 0 {
		return store.ErrReservationNotFound
	}
	return nil
}

func (t *sqlTx) Promote(ctx context.Context, id uint64, at time.Time, token string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, promoted_at = ?, offer_token = ? WHERE id = ? AND class_id = ?`,
		model.StatusPendingConfirmation, at.UTC(), token, id, t.classID,
	)
	if err != nil {
		return fmt.Errorf("promote reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("promote reservation rows: %w", err)
	}
	if n == 0 {
		return store.ErrReservationNotFound
	}
	return nil
}

func (t *sqlTx) Confirm(ctx context.Context, id uint64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE reservations SET status = ? WHERE id = ? AND class_id = ?`,
		model.StatusConfirmed, id, t.classID,
	)
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm reservation rows: %w", err)
	}
	if n == 0 {
		return store.ErrReservationNotFound
	}
	return nil
}

func (t *sqlTx) WaitlistHead(ctx context.Context) (*model.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations
		 WHERE class_id = ? AND status = ?
		 ORDER BY ordered_at ASC, id ASC LIMIT 1`,
		t.classID, model.StatusWaitlist,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load waitlist head: %w", err)
	}
	return r, nil
}

func (t *sqlTx) WaitlistSize(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE class_id = ? AND status = ?`,
		t.classID, model.StatusWaitlist,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("waitlist size: %w", err)
	}
	return n, nil
}

func (s *Store) CreateClass(ctx context.Context, cs *model.ClassSession) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO class_sessions (title, coach_name, starts_at, max_capacity, occupied_count)
		 VALUES (?, ?, ?, ?, 0)`,
		cs.Title, cs.CoachName, cs.StartsAt.UTC(), cs.MaxCapacity,
	)
	if err != nil {
		return fmt.Errorf("insert class: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("class insert id: %w", err)
	}
	cs.ID = uint64(id)
	cs.OccupiedCount = 0
	err = s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM class_sessions WHERE id = ?`, cs.ID,
	).Scan(&cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("read back class: %w", err)
	}
	return nil
}

func (s *Store) ClassByID(ctx context.Context, classID uint64) (*model.ClassSession, error) {
	const q = `SELECT id, title, coach_name, starts_at, max_capacity, occupied_count, created_at, updated_at
	           FROM class_sessions WHERE id = ?`
	var c model.ClassSession
	err := s.db.QueryRowContext(ctx, q, classID).Scan(
		&c.ID, &c.Title, &c.CoachName, &c.StartsAt, &c.MaxCapacity, &c.OccupiedCount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load class: %w", err)
	}
	return &c, nil
}

func (s *Store) ListClasses(ctx context.Context) ([]model.ClassSession, error) {
	const q = `SELECT id, title, coach_name, starts_at, max_capacity, occupied_count, created_at, updated_at
	           FROM class_sessions ORDER BY starts_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()
	out := make([]model.ClassSession, 0)
	for rows.Next() {
		var c model.ClassSession
		if err := rows.Scan(&c.ID, &c.Title, &c.CoachName, &c.StartsAt, &c.MaxCapacity,
			&c.OccupiedCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return out, nil
}

func (s *Store) ReservationByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, err := scanReservation(s.db.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	return r, nil
}

func (s *Store) LiveReservation(ctx context.Context, classID, userID uint64) (*model.Reservation, error) {
	r, err := scanReservation(s.db.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE class_id = ? AND user_id = ?`,
		classID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load live reservation: %w", err)
	}
	return r, nil
}

func (s *Store) ReservationsByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	return s.listReservations(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE user_id = ? ORDER BY ordered_at DESC, id DESC`,
		userID,
	)
}

func (s *Store) ReservationsByClass(ctx context.Context, classID uint64) ([]model.Reservation, error) {
	return s.listReservations(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE class_id = ? ORDER BY ordered_at ASC, id ASC`,
		classID,
	)
}

func (s *Store) listReservations(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

func (s *Store) PendingByUser(ctx context.Context, userID uint64) (*model.Reservation, error) {
	r, err := scanReservation(s.db.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations
		 WHERE user_id = ? AND status = ?
		 ORDER BY promoted_at ASC LIMIT 1`,
		userID, model.StatusPendingConfirmation,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending reservation: %w", err)
	}
	return r, nil
}

func (s *Store) ExpiredHolds(ctx context.Context, cutoff time.Time) ([]model.Reservation, error) {
	return s.listReservations(ctx,
		`SELECT `+reservationCols+` FROM reservations
		 WHERE status = ? AND promoted_at <= ?
		 ORDER BY promoted_at ASC`,
		model.StatusPendingConfirmation, cutoff.UTC(),
	)
}

func (s *Store) WaitlistPosition(ctx context.Context, r *model.Reservation) (int, error) {
	const q = `SELECT COUNT(*) FROM reservations
	           WHERE class_id = ? AND status = ?
	             AND (ordered_at < ? OR (ordered_at = ? AND id < ?))`
	var ahead int
	err := s.db.QueryRowContext(ctx, q,
		r.ClassID, model.StatusWaitlist, r.OrderedAt.UTC(), r.OrderedAt.UTC(), r.ID,
	).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("waitlist position: %w", err)
	}
	return ahead + 1, nil
}
