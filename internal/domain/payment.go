package domain

import (
	"fmt"
	"time"

	"gopkg.in/guregu/null.v4"
)

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type Payment struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"history_id"`
	UserID       string        `json:"user_id"`
	Amount       float64       `json:"amount"`
	Method       string        `json:"method"`
	Status       PaymentStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	RefundReason null.String   `json:"refund_reason,omitempty"`
	RefundedAt   null.Time     `json:"refund_date,omitempty"`
}

// NewPayment records the fare of a closed session paid with method.
func NewPayment(id string, session ParkingSession, method string, now time.Time) Payment {
	return Payment{
		ID:        id,
		SessionID: session.ID,
		UserID:    session.UserID,
		Amount:    session.Amount.Float64,
		Method:    method,
		Status:    PaymentCompleted,
		CreatedAt: now,
	}
}

// Refund marks a completed payment as refunded.
func (p Payment) Refund(reason string, now time.Time) (Payment, error) {
	if reason == "" {
		return p, fmt.Errorf("%w: refund reason is required", ErrValidation)
	}
	if p.Status == PaymentRefunded {
		return p, fmt.Errorf("%w: payment %s was already refunded", ErrInvalidTransition, p.ID)
	}
	next := p
	next.Status = PaymentRefunded
	next.RefundReason = null.StringFrom(reason)
	next.RefundedAt = null.TimeFrom(now)
	return next, nil
}

type PaymentFilter struct {
	UserID *string
	DateRange
}

func (f PaymentFilter) Matches(p Payment) bool {
	if f.UserID != nil && p.UserID != *f.UserID {
		return false
	}
	return f.DateRange.Contains(p.CreatedAt)
}

type RefundPaymentDTO struct {
	Reason string `json:"reason" binding:"required"`
}

type PaymentReceipt struct {
	PaymentID string        `json:"payment_id"`
	HistoryID string        `json:"history_id"`
	Amount    float64       `json:"amount"`
	Date      time.Time     `json:"date"`
	Method    string        `json:"method"`
	Status    PaymentStatus `json:"status"`
}

type AmountCount struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

type PaymentStats struct {
	TotalAmount    float64                `json:"total_amount"`
	TotalPayments  int                    `json:"total_payments"`
	PaymentMethods map[string]AmountCount `json:"payment_methods"`
	DailyStats     map[string]AmountCount `json:"daily_stats"`
}
