package firestore

import (
	"time"

	"gopkg.in/guregu/null.v4"

	"parking_backend/internal/domain"
)

// Field names follow the camelCase documents the mobile clients already read.

type spotDoc struct {
	Number          string     `firestore:"number"`
	Floor           int        `firestore:"floor"`
	Section         string     `firestore:"section"`
	Status          string     `firestore:"status"`
	UserID          *string    `firestore:"userId"`
	PlateNumber     *string    `firestore:"plateNumber"`
	EntryTime       *time.Time `firestore:"entryTime"`
	ReservationTime *time.Time `firestore:"reservationTime"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
	Version         int64      `firestore:"version"`
}

func toSpotDoc(s domain.ParkingSpot) spotDoc {
	return spotDoc{
		Number:          s.Number,
		Floor:           s.Floor,
		Section:         s.Section,
		Status:          string(s.State),
		UserID:          s.OccupantID.Ptr(),
		PlateNumber:     s.Plate.Ptr(),
		EntryTime:       s.EntryTime.Ptr(),
		ReservationTime: s.ReservationTime.Ptr(),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		Version:         s.Version,
	}
}

func (d spotDoc) toDomain(id string) domain.ParkingSpot {
	return domain.ParkingSpot{
		ID:              id,
		Number:          d.Number,
		Floor:           d.Floor,
		Section:         d.Section,
		State:           domain.SpotState(d.Status),
		OccupantID:      null.StringFromPtr(d.UserID),
		Plate:           null.StringFromPtr(d.PlateNumber),
		EntryTime:       null.TimeFromPtr(utcPtr(d.EntryTime)),
		ReservationTime: null.TimeFromPtr(utcPtr(d.ReservationTime)),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
		Version:         d.Version,
	}
}

type historyDoc struct {
	ParkingSpotID string     `firestore:"parkingSpotId"`
	UserID        string     `firestore:"userId"`
	PlateNumber   string     `firestore:"plateNumber"`
	EntryTime     time.Time  `firestore:"entryTime"`
	ExitTime      *time.Time `firestore:"exitTime"`
	Duration      *float64   `firestore:"duration"`
	Amount        *float64   `firestore:"amount"`
	Status        string     `firestore:"status"`
	PaymentID     *string    `firestore:"paymentId"`
}

func toHistoryDoc(s domain.ParkingSession) historyDoc {
	return historyDoc{
		ParkingSpotID: s.SpotID,
		UserID:        s.UserID,
		PlateNumber:   s.Plate,
		EntryTime:     s.EntryTime,
		ExitTime:      s.ExitTime.Ptr(),
		Duration:      s.DurationHours.Ptr(),
		Amount:        s.Amount.Ptr(),
		Status:        string(s.Status),
		PaymentID:     s.PaymentID.Ptr(),
	}
}

func (d historyDoc) toDomain(id string) domain.ParkingSession {
	return domain.ParkingSession{
		ID:            id,
		SpotID:        d.ParkingSpotID,
		UserID:        d.UserID,
		Plate:         d.PlateNumber,
		EntryTime:     d.EntryTime.UTC(),
		ExitTime:      null.TimeFromPtr(utcPtr(d.ExitTime)),
		DurationHours: null.FloatFromPtr(d.Duration),
		Amount:        null.FloatFromPtr(d.Amount),
		Status:        domain.ParkingSessionStatus(d.Status),
		PaymentID:     null.StringFromPtr(d.PaymentID),
	}
}

type paymentDoc struct {
	HistoryID    string     `firestore:"historyId"`
	UserID       string     `firestore:"userId"`
	Amount       float64    `firestore:"amount"`
	Method       string     `firestore:"method"`
	Status       string     `firestore:"status"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	RefundReason *string    `firestore:"refundReason"`
	RefundDate   *time.Time `firestore:"refundDate"`
}

func toPaymentDoc(p domain.Payment) paymentDoc {
	return paymentDoc{
		HistoryID:    p.SessionID,
		UserID:       p.UserID,
		Amount:       p.Amount,
		Method:       p.Method,
		Status:       string(p.Status),
		CreatedAt:    p.CreatedAt,
		RefundReason: p.RefundReason.Ptr(),
		RefundDate:   p.RefundedAt.Ptr(),
	}
}

func (d paymentDoc) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:           id,
		SessionID:    d.HistoryID,
		UserID:       d.UserID,
		Amount:       d.Amount,
		Method:       d.Method,
		Status:       domain.PaymentStatus(d.Status),
		CreatedAt:    d.CreatedAt.UTC(),
		RefundReason: null.StringFromPtr(d.RefundReason),
		RefundedAt:   null.TimeFromPtr(utcPtr(d.RefundDate)),
	}
}

type userDoc struct {
	Email       string         `firestore:"email"`
	FirstName   string         `firestore:"firstName"`
	LastName    string         `firestore:"lastName"`
	Phone       string         `firestore:"phone"`
	Role        string         `firestore:"role"`
	CreatedAt   time.Time      `firestore:"createdAt"`
	UpdatedAt   time.Time      `firestore:"updatedAt"`
	Preferences preferencesDoc `firestore:"preferences"`
}

type preferencesDoc struct {
	Notifications bool   `firestore:"notifications"`
	Language      string `firestore:"language"`
	Theme         string `firestore:"theme"`
}

func toUserDoc(u domain.User) userDoc {
	return userDoc{
		Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Phone: u.Phone,
		Role: string(u.Role), CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
		Preferences: preferencesDoc(u.Preferences),
	}
}

func (d userDoc) toDomain(id string) domain.User {
	return domain.User{
		ID: id, Email: d.Email, FirstName: d.FirstName, LastName: d.LastName, Phone: d.Phone,
		Role: domain.Role(d.Role), CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
		Preferences: domain.UserPreferences(d.Preferences),
	}
}

type vehicleDoc struct {
	PlateNumber string    `firestore:"plateNumber"`
	Brand       string    `firestore:"brand"`
	Model       string    `firestore:"model"`
	Color       string    `firestore:"color"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

type credentialDoc struct {
	UserID       string `firestore:"userId"`
	PasswordHash string `firestore:"passwordHash"`
	Role         string `firestore:"role"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
