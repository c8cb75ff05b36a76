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

const paymentColumns = `id, history_id, user_id, amount, method, status, created_at, refund_reason, refund_date`

type pgPaymentRepository struct {
	db *sql.DB
}

func NewPgPaymentRepository(db *sql.DB) repository.PaymentRepository {
	return &pgPaymentRepository{db: db}
}

func (r *pgPaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("PaymentRepository.FindByID: %w", classify(err))
	}
	return p, nil
}

func (r *pgPaymentRepository) Find(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	var conditions []string
	var args []interface{}
	argID := 1

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argID))
		args = append(args, *filter.UserID)
		argID++
	}
	if filter.Start != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argID))
		args = append(args, *filter.Start)
		argID++
	}
	if filter.End != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argID))
		args = append(args, filter.End.AddDate(0, 0, 1))
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("PaymentRepository.Find: %w", classify(err))
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("PaymentRepository.Find (scanning row): %w", err)
		}
		payments = append(payments, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("PaymentRepository.Find (rows error): %w", classify(err))
	}
	return payments, nil
}

func (r *pgPaymentRepository) Refund(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	query := `UPDATE payments SET status = $1, refund_reason = $2, refund_date = $3
	           WHERE id = $4 AND status = $5
	           RETURNING ` + paymentColumns
	refunded, err := scanPayment(r.db.QueryRowContext(ctx, query,
		domain.PaymentRefunded, p.RefundReason, p.RefundedAt, p.ID, domain.PaymentCompleted))
	if err == nil {
		return refunded, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("PaymentRepository.Refund: %w", classify(err))
	}

	var status domain.PaymentStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM payments WHERE id = $1`, p.ID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("PaymentRepository.Refund (status check): %w", classify(err))
	}
	return nil, fmt.Errorf("%w: payment %s is %s", domain.ErrInvalidTransition, p.ID, status)
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.Amount, &p.Method, &p.Status,
		&p.CreatedAt, &p.RefundReason, &p.RefundedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.In(time.UTC)
	if p.RefundedAt.Valid {
		p.RefundedAt.Time = p.RefundedAt.Time.In(time.UTC)
	}
	return p, nil
}
