package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

type pgSpotLedger struct {
	db *sql.DB
}

// NewPgSpotLedger runs transitions in one transaction and detects lost races through the
// spot's version column instead of holding row locks across the guard.
func NewPgSpotLedger(db *sql.DB) repository.SpotLedger {
	return &pgSpotLedger{db: db}
}

func (l *pgSpotLedger) RunAtomic(ctx context.Context, spotID string, guard repository.GuardFunc) (repository.WriteSet, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.WriteSet{}, fmt.Errorf("SpotLedger.RunAtomic (begin): %w", classify(err))
	}
	defer tx.Rollback()

	snap, err := l.readSet(ctx, tx, spotID)
	if err != nil {
		return repository.WriteSet{}, err
	}

	ws, err := guard(snap)
	if err != nil {
		return repository.WriteSet{}, err
	}

	if err := l.writeSpot(ctx, tx, snap.Spot, &ws); err != nil {
		return repository.WriteSet{}, err
	}
	if ws.CloseSession != nil {
		if err := closeSession(ctx, tx, ws.CloseSession); err != nil {
			return repository.WriteSet{}, err
		}
	}
	if ws.OpenSession != nil {
		if err := openSession(ctx, tx, ws.OpenSession); err != nil {
			return repository.WriteSet{}, err
		}
	}
	if ws.Payment != nil {
		if err := insertPayment(ctx, tx, ws.Payment); err != nil {
			return repository.WriteSet{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return repository.WriteSet{}, fmt.Errorf("SpotLedger.RunAtomic (commit): %w", classify(err))
	}
	return ws, nil
}

func (l *pgSpotLedger) readSet(ctx context.Context, tx *sql.Tx, spotID string) (repository.SpotSnapshot, error) {
	var snap repository.SpotSnapshot
	spot, err := scanSpot(tx.QueryRowContext(ctx, `SELECT `+spotColumns+` FROM parking_spots WHERE id = $1`, spotID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, fmt.Errorf("%w: spot %s", repository.ErrNotFound, spotID)
		}
		return snap, fmt.Errorf("SpotLedger.RunAtomic (read spot): %w", classify(err))
	}
	snap.Spot = *spot

	active, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM parking_history WHERE parking_spot_id = $1 AND status = $2`,
		spotID, domain.SessionActive))
	switch {
	case err == nil:
		snap.Active = active
	case errors.Is(err, sql.ErrNoRows):
	default:
		return snap, fmt.Errorf("SpotLedger.RunAtomic (read active session): %w", classify(err))
	}
	return snap, nil
}

// writeSpot applies the spot part of ws guarded by the version that was read. A spot the
// guard left untouched still gets its version bumped so a concurrent transition cannot
// commit on the same read.
func (l *pgSpotLedger) writeSpot(ctx context.Context, tx *sql.Tx, read domain.ParkingSpot, ws *repository.WriteSet) error {
	var res sql.Result
	var err error
	switch {
	case ws.DeleteSpot:
		res, err = tx.ExecContext(ctx, `DELETE FROM parking_spots WHERE id = $1 AND version = $2`, read.ID, read.Version)
	case ws.Spot != nil:
		s := ws.Spot
		res, err = tx.ExecContext(ctx,
			`UPDATE parking_spots
			    SET status = $1, user_id = $2, plate_number = $3, entry_time = $4, reservation_time = $5,
			        updated_at = $6, version = version + 1
			  WHERE id = $7 AND version = $8`,
			s.State, s.OccupantID, s.Plate, s.EntryTime, s.ReservationTime, s.UpdatedAt, read.ID, read.Version)
	default:
		res, err = tx.ExecContext(ctx, `UPDATE parking_spots SET version = version + 1 WHERE id = $1 AND version = $2`, read.ID, read.Version)
	}
	if err != nil {
		return fmt.Errorf("SpotLedger.RunAtomic (write spot): %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SpotLedger.RunAtomic (write spot): %w", classify(err))
	}
	if n == 0 {
		return fmt.Errorf("%w: spot %s changed concurrently", domain.ErrInvalidTransition, read.ID)
	}
	if ws.Spot != nil {
		next := *ws.Spot
		next.Version = read.Version + 1
		ws.Spot = &next
	}
	return nil
}

func openSession(ctx context.Context, tx *sql.Tx, s *domain.ParkingSession) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO parking_history (id, parking_spot_id, user_id, plate_number, entry_time, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.SpotID, s.UserID, s.Plate, s.EntryTime, s.Status)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "parking_history_one_active_per_spot" {
			return fmt.Errorf("%w: spot %s", domain.ErrDuplicateActiveSession, s.SpotID)
		}
		return fmt.Errorf("SpotLedger.RunAtomic (open session): %w", classify(err))
	}
	return nil
}

func closeSession(ctx context.Context, tx *sql.Tx, s *domain.ParkingSession) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE parking_history
		    SET exit_time = $1, duration = $2, amount = $3, status = $4, payment_id = $5
		  WHERE id = $6 AND status = $7`,
		s.ExitTime, s.DurationHours, s.Amount, s.Status, s.PaymentID, s.ID, domain.SessionActive)
	if err != nil {
		return fmt.Errorf("SpotLedger.RunAtomic (close session): %w", classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s is no longer active", domain.ErrInconsistentState, s.ID)
	}
	return nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (id, history_id, user_id, amount, method, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.SessionID, p.UserID, p.Amount, p.Method, p.Status, p.CreatedAt)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return fmt.Errorf("%w: payment for session %s", repository.ErrDuplicateEntry, p.SessionID)
		}
		return fmt.Errorf("SpotLedger.RunAtomic (insert payment): %w", classify(err))
	}
	return nil
}
