package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

const sessionColumns = `id, parking_spot_id, user_id, plate_number, entry_time, exit_time, duration, amount, status, payment_id`

type pgSessionRepository struct {
	db *sql.DB
}

func NewPgSessionRepository(db *sql.DB) repository.SessionRepository {
	return &pgSessionRepository{db: db}
}

func (r *pgSessionRepository) FindByID(ctx context.Context, id string) (*domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_history WHERE id = $1`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SessionRepository.FindByID: %w", classify(err))
	}
	return session, nil
}

func (r *pgSessionRepository) Find(ctx context.Context, filter domain.SessionFilter) ([]domain.ParkingSession, error) {
	baseQuery := `SELECT ` + sessionColumns + ` FROM parking_history`

	var conditions []string
	var args []interface{}
	argID := 1

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argID))
		args = append(args, *filter.UserID)
		argID++
	}
	if filter.Plate != nil {
		conditions = append(conditions, fmt.Sprintf("plate_number = $%d", argID))
		args = append(args, *filter.Plate)
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}
	if filter.SpotID != nil {
		conditions = append(conditions, fmt.Sprintf("parking_spot_id = $%d", argID))
		args = append(args, *filter.SpotID)
	}

	query := baseQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY entry_time DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SessionRepository.Find: %w", classify(err))
	}
	defer rows.Close()

	sessions := []domain.ParkingSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("SessionRepository.Find (scanning row): %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SessionRepository.Find (rows error): %w", classify(err))
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*domain.ParkingSession, error) {
	session := &domain.ParkingSession{}
	err := row.Scan(
		&session.ID, &session.SpotID, &session.UserID, &session.Plate,
		&session.EntryTime, &session.ExitTime, &session.DurationHours, &session.Amount,
		&session.Status, &session.PaymentID,
	)
	if err != nil {
		return nil, err
	}
	session.EntryTime = session.EntryTime.In(time.UTC)
	if session.ExitTime.Valid {
		session.ExitTime.Time = session.ExitTime.Time.In(time.UTC)
	}
	return session, nil
}
