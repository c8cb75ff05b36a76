// Package firestore stores parking data in Cloud Firestore through the Firebase Admin SDK.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

const (
	spotsCollection       = "parkingSpots"
	historyCollection     = "parkingHistory"
	paymentsCollection    = "payments"
	usersCollection       = "users"
	vehiclesCollection    = "vehicles"
	credentialsCollection = "credentials"
)

type Store struct {
	client *firestore.Client
}

// NewStore opens the Firestore client of app. The caller owns Close.
func NewStore(ctx context.Context, app *firebase.App) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Repositories() repository.Store {
	return repository.Store{
		Spots:       spotRepo{s.client},
		Sessions:    sessionRepo{s.client},
		Payments:    paymentRepo{s.client},
		Users:       userRepo{s.client},
		Credentials: credentialRepo{s.client},
		Ledger:      s,
	}
}

// classify maps gRPC status codes onto repository and domain errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", op, repository.ErrStoreUnavailable, err)
	}
	switch status.Code(err) {
	case codes.NotFound:
		return repository.ErrNotFound
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", op, repository.ErrDuplicateEntry)
	case codes.Aborted:
		return fmt.Errorf("%s: %w: transaction aborted by a concurrent write", op, domain.ErrInvalidTransition)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		log.Printf("Firestore: %s failed: %v", op, err)
		return fmt.Errorf("%s: %w: %v", op, repository.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isRepositoryError(err error) bool {
	return errors.Is(err, repository.ErrDuplicateEntry) || errors.Is(err, repository.ErrNotFound)
}
