package service

import (
	"context"
	"log"
	"time"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

// PaymentService reads payments recorded at exit and handles refunds.
type PaymentService struct {
	payments repository.PaymentRepository
	timeout  time.Duration
	now      func() time.Time
}

func NewPaymentService(payments repository.PaymentRepository, timeout time.Duration) *PaymentService {
	return &PaymentService{
		payments: payments,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentService) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	payments, err := s.payments.Find(ctx, domain.PaymentFilter{UserID: &userID})
	return payments, storeErr(ctx, err)
}

func (s *PaymentService) Get(ctx context.Context, id string) (*domain.Payment, error) {
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	p, err := s.payments.FindByID(ctx, id)
	return p, storeErr(ctx, err)
}

func (s *PaymentService) Receipt(ctx context.Context, id string) (*domain.PaymentReceipt, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentReceipt{
		PaymentID: p.ID,
		HistoryID: p.SessionID,
		Amount:    p.Amount,
		Date:      p.CreatedAt,
		Method:    p.Method,
		Status:    p.Status,
	}, nil
}

// Stats totals completed payments in r, per method and per day. Refunded payments are excluded.
func (s *PaymentService) Stats(ctx context.Context, r domain.DateRange) (*domain.PaymentStats, error) {
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	payments, err := s.payments.Find(ctx, domain.PaymentFilter{DateRange: r})
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	stats := &domain.PaymentStats{
		PaymentMethods: make(map[string]domain.AmountCount),
		DailyStats:     make(map[string]domain.AmountCount),
	}
	for _, p := range payments {
		if p.Status != domain.PaymentCompleted {
			continue
		}
		stats.TotalAmount += p.Amount
		stats.TotalPayments++

		m := stats.PaymentMethods[p.Method]
		m.Count++
		m.Amount += p.Amount
		stats.PaymentMethods[p.Method] = m

		day := p.CreatedAt.Format("2006-01-02")
		d := stats.DailyStats[day]
		d.Count++
		d.Amount += p.Amount
		stats.DailyStats[day] = d
	}
	return stats, nil
}

// Refund moves a completed payment to refunded. The store only applies it while the payment is
// still completed, so of two concurrent refunds exactly one succeeds.
func (s *PaymentService) Refund(ctx context.Context, id, reason string) (*domain.Payment, error) {
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	p, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	refunded, err := p.Refund(reason, s.now())
	if err != nil {
		return nil, err
	}
	updated, err := s.payments.Refund(ctx, &refunded)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	log.Printf("PaymentService: payment %s refunded (%.2f): %s", id, updated.Amount, reason)
	return updated, nil
}
