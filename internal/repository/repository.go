package repository

import (
	"context"
	"errors"

	"parking_backend/internal/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")

// ErrStoreUnavailable covers timeouts and outages of the backing store. Callers may retry later.
var ErrStoreUnavailable = errors.New("store unavailable")

type SpotRepository interface {
	Create(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error)
	FindByID(ctx context.Context, id string) (*domain.ParkingSpot, error)
	// Find returns spots ordered by floor, section and number.
	Find(ctx context.Context, filter domain.SpotFilter) ([]domain.ParkingSpot, error)
}

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*domain.ParkingSession, error)
	// Find returns sessions ordered by entry time, newest first.
	Find(ctx context.Context, filter domain.SessionFilter) ([]domain.ParkingSession, error)
}

type PaymentRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	Find(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error)
	// Refund stores the refund fields of payment only if the stored payment is still completed.
	// A payment that was refunded in the meantime fails with domain.ErrInvalidTransition,
	// an unknown one with ErrNotFound.
	Refund(ctx context.Context, payment *domain.Payment) (*domain.Payment, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// FindAll returns users ordered by creation time.
	FindAll(ctx context.Context) ([]domain.User, error)
	// Update persists the profile fields and preferences.
	Update(ctx context.Context, user *domain.User) (*domain.User, error)
	// Delete removes the user and its vehicles.
	Delete(ctx context.Context, id string) error
	AddVehicle(ctx context.Context, vehicle *domain.Vehicle) (*domain.Vehicle, error)
	FindVehicles(ctx context.Context, userID string) ([]domain.Vehicle, error)
}

type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.Credential) error
	FindByEmail(ctx context.Context, email string) (*domain.Credential, error)
	FindByUserID(ctx context.Context, userID string) (*domain.Credential, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

// SpotSnapshot is the read set of a spot transition.
type SpotSnapshot struct {
	Spot   domain.ParkingSpot
	Active *domain.ParkingSession
}

// WriteSet is what a transition commits. Nil fields are left untouched.
type WriteSet struct {
	Spot         *domain.ParkingSpot
	DeleteSpot   bool
	OpenSession  *domain.ParkingSession
	CloseSession *domain.ParkingSession
	Payment      *domain.Payment
}

// GuardFunc decides a transition from the read set. It must not have side effects:
// a store may call it and then discard the result.
type GuardFunc func(snap SpotSnapshot) (WriteSet, error)

// SpotLedger applies a spot transition and its ledger writes as one unit.
//
// RunAtomic reads the spot and its active session, calls guard, and commits the returned
// WriteSet only if the spot did not change since it was read. A transition that loses a
// race fails with domain.ErrInvalidTransition and is never retried. Unknown spots fail
// with ErrNotFound. Errors from guard are returned as is, with nothing written.
type SpotLedger interface {
	RunAtomic(ctx context.Context, spotID string, guard GuardFunc) (WriteSet, error)
}

// Store groups the repositories a backend provides.
type Store struct {
	Spots       SpotRepository
	Sessions    SessionRepository
	Payments    PaymentRepository
	Users       UserRepository
	Credentials CredentialRepository
	Ledger      SpotLedger
}
