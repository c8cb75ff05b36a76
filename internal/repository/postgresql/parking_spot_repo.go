package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

const spotColumns = `id, number, floor, section, status, user_id, plate_number, entry_time, reservation_time, created_at, updated_at, version`

type pgSpotRepository struct {
	db *sql.DB
}

func NewPgSpotRepository(db *sql.DB) repository.SpotRepository {
	return &pgSpotRepository{db: db}
}

func (r *pgSpotRepository) Create(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error) {
	query := `INSERT INTO parking_spots (id, number, floor, section, status, created_at, updated_at, version)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
	           RETURNING version`
	err := r.db.QueryRowContext(ctx, query,
		spot.ID, spot.Number, spot.Floor, spot.Section, spot.State, spot.CreatedAt, spot.UpdatedAt,
	).Scan(&spot.Version)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == "parking_spots_floor_section_number_key" {
				return nil, fmt.Errorf("%w: spot %s already exists on floor %d section %s", repository.ErrDuplicateEntry, spot.Number, spot.Floor, spot.Section)
			}
			return nil, fmt.Errorf("%w: spot %s", repository.ErrDuplicateEntry, spot.ID)
		}
		return nil, fmt.Errorf("SpotRepository.Create: %w", classify(err))
	}
	return spot, nil
}

func (r *pgSpotRepository) FindByID(ctx context.Context, id string) (*domain.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots WHERE id = $1`
	spot, err := scanSpot(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SpotRepository.FindByID: %w", classify(err))
	}
	return spot, nil
}

func (r *pgSpotRepository) Find(ctx context.Context, filter domain.SpotFilter) ([]domain.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots`
	var args []interface{}
	if filter.State != nil {
		query += ` WHERE status = $1`
		args = append(args, *filter.State)
	}
	query += ` ORDER BY floor, section, number`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SpotRepository.Find: %w", classify(err))
	}
	defer rows.Close()

	spots := []domain.ParkingSpot{}
	for rows.Next() {
		spot, err := scanSpot(rows)
		if err != nil {
			return nil, fmt.Errorf("SpotRepository.Find (scanning row): %w", err)
		}
		spots = append(spots, *spot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SpotRepository.Find (rows error): %w", classify(err))
	}
	return spots, nil
}

func scanSpot(row rowScanner) (*domain.ParkingSpot, error) {
	spot := &domain.ParkingSpot{}
	err := row.Scan(
		&spot.ID, &spot.Number, &spot.Floor, &spot.Section, &spot.State,
		&spot.OccupantID, &spot.Plate, &spot.EntryTime, &spot.ReservationTime,
		&spot.CreatedAt, &spot.UpdatedAt, &spot.Version,
	)
	if err != nil {
		return nil, err
	}
	if spot.EntryTime.Valid {
		spot.EntryTime.Time = spot.EntryTime.Time.In(time.UTC)
	}
	if spot.ReservationTime.Valid {
		spot.ReservationTime.Time = spot.ReservationTime.Time.In(time.UTC)
	}
	spot.CreatedAt = spot.CreatedAt.In(time.UTC)
	spot.UpdatedAt = spot.UpdatedAt.In(time.UTC)
	return spot, nil
}
