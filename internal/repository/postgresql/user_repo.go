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

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) repository.UserRepository {
	return &pgUserRepository{db: db}
}

const userColumns = `id, email, first_name, last_name, phone, role, created_at, updated_at,
	pref_notifications, pref_language, pref_theme`

func (r *pgUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `INSERT INTO users (id, email, first_name, last_name, phone, role, created_at, updated_at,
	               pref_notifications, pref_language, pref_theme)
	           VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, $7, $8, $9)
	           RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.LastName, user.Phone, user.Role,
		user.Preferences.Notifications, user.Preferences.Language, user.Preferences.Theme,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == "users_email_key" {
				return nil, fmt.Errorf("%w: email '%s' is already registered", repository.ErrDuplicateEntry, user.Email)
			}
			return nil, fmt.Errorf("%w: user %s", repository.ErrDuplicateEntry, user.ID)
		}
		return nil, fmt.Errorf("UserRepository.Create: %w", classify(err))
	}
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	user.UpdatedAt = user.UpdatedAt.In(time.UTC)
	return user, nil
}

func (r *pgUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("UserRepository.FindByID: %w", classify(err))
	}
	return user, nil
}

func (r *pgUserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("UserRepository.FindAll: %w", classify(err))
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("UserRepository.FindAll (scanning row): %w", err)
		}
		users = append(users, *user)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("UserRepository.FindAll (rows error): %w", classify(err))
	}
	return users, nil
}

func (r *pgUserRepository) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `UPDATE users SET first_name = $1, last_name = $2, phone = $3,
	               pref_notifications = $4, pref_language = $5, pref_theme = $6, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $7 RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, user.FirstName, user.LastName, user.Phone,
		user.Preferences.Notifications, user.Preferences.Language, user.Preferences.Theme, user.ID,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("UserRepository.Update: %w", classify(err))
	}
	user.UpdatedAt = user.UpdatedAt.In(time.UTC)
	return user, nil
}

// Delete relies on ON DELETE CASCADE to drop the vehicles.
func (r *pgUserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("UserRepository.Delete: %w", classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgUserRepository) AddVehicle(ctx context.Context, v *domain.Vehicle) (*domain.Vehicle, error) {
	query := `INSERT INTO vehicles (id, user_id, plate_number, brand, model, color, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
	           RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, v.ID, v.UserID, v.PlateNumber, v.Brand, v.Model, v.Color).Scan(&v.CreatedAt)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: vehicle %s", repository.ErrDuplicateEntry, v.PlateNumber)
		}
		if foreignKeyViolation(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("UserRepository.AddVehicle: %w", classify(err))
	}
	v.CreatedAt = v.CreatedAt.In(time.UTC)
	return v, nil
}

func (r *pgUserRepository) FindVehicles(ctx context.Context, userID string) ([]domain.Vehicle, error) {
	query := `SELECT id, user_id, plate_number, brand, model, color, created_at
	           FROM vehicles WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("UserRepository.FindVehicles: %w", classify(err))
	}
	defer rows.Close()

	vehicles := []domain.Vehicle{}
	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.ID, &v.UserID, &v.PlateNumber, &v.Brand, &v.Model, &v.Color, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("UserRepository.FindVehicles (scanning row): %w", err)
		}
		v.CreatedAt = v.CreatedAt.In(time.UTC)
		vehicles = append(vehicles, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("UserRepository.FindVehicles (rows error): %w", classify(err))
	}
	return vehicles, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.Phone, &user.Role,
		&user.CreatedAt, &user.UpdatedAt,
		&user.Preferences.Notifications, &user.Preferences.Language, &user.Preferences.Theme)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	user.UpdatedAt = user.UpdatedAt.In(time.UTC)
	return user, nil
}
