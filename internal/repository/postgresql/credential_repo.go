package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

type pgCredentialRepository struct {
	db *sql.DB
}

func NewPgCredentialRepository(db *sql.DB) repository.CredentialRepository {
	return &pgCredentialRepository{db: db}
}

func (r *pgCredentialRepository) Create(ctx context.Context, cred *domain.Credential) error {
	query := `INSERT INTO credentials (user_id, email, password_hash, role) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, cred.UserID, strings.ToLower(cred.Email), cred.PasswordHash, cred.Role)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return fmt.Errorf("%w: email '%s' is already registered", repository.ErrDuplicateEntry, cred.Email)
		}
		return fmt.Errorf("CredentialRepository.Create: %w", classify(err))
	}
	return nil
}

func (r *pgCredentialRepository) FindByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	cred := &domain.Credential{}
	query := `SELECT user_id, email, password_hash, role FROM credentials WHERE email = $1`
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(email)).Scan(&cred.UserID, &cred.Email, &cred.PasswordHash, &cred.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("CredentialRepository.FindByEmail: %w", classify(err))
	}
	return cred, nil
}

func (r *pgCredentialRepository) FindByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	cred := &domain.Credential{}
	query := `SELECT user_id, email, password_hash, role FROM credentials WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cred.UserID, &cred.Email, &cred.PasswordHash, &cred.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("CredentialRepository.FindByUserID: %w", classify(err))
	}
	return cred, nil
}

func (r *pgCredentialRepository) DeleteByUserID(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("CredentialRepository.DeleteByUserID: %w", classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
