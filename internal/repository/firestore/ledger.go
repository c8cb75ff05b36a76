package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

// RunAtomic runs the transition in a single-attempt Firestore transaction. Firestore aborts
// the loser of two transactions touching the same spot; the abort is reported as an
// invalid transition instead of being retried.
func (s *Store) RunAtomic(ctx context.Context, spotID string, guard repository.GuardFunc) (repository.WriteSet, error) {
	var result repository.WriteSet
	spotRef := s.client.Collection(spotsCollection).Doc(spotID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapDoc, err := tx.Get(spotRef)
		if err != nil {
			return err
		}
		var sd spotDoc
		if err := snapDoc.DataTo(&sd); err != nil {
			return fmt.Errorf("decode spot %s: %w", spotID, err)
		}
		snap := repository.SpotSnapshot{Spot: sd.toDomain(spotID)}

		activeQuery := s.client.Collection(historyCollection).
			Where("parkingSpotId", "==", spotID).
			Where("status", "==", string(domain.SessionActive))
		actives, err := tx.Documents(activeQuery).GetAll()
		if err != nil {
			return err
		}
		if len(actives) > 1 {
			return fmt.Errorf("%w: spot %s has %d active sessions", domain.ErrDuplicateActiveSession, spotID, len(actives))
		}
		if len(actives) == 1 {
			var hd historyDoc
			if err := actives[0].DataTo(&hd); err != nil {
				return fmt.Errorf("decode session %s: %w", actives[0].Ref.ID, err)
			}
			active := hd.toDomain(actives[0].Ref.ID)
			snap.Active = &active
		}

		ws, err := guard(snap)
		if err != nil {
			return err
		}
		if ws.OpenSession != nil && snap.Active != nil {
			return fmt.Errorf("%w: spot %s", domain.ErrDuplicateActiveSession, spotID)
		}

		switch {
		case ws.DeleteSpot:
			if err := tx.Delete(spotRef); err != nil {
				return err
			}
		case ws.Spot != nil:
			next := *ws.Spot
			next.Version = snap.Spot.Version + 1
			if err := tx.Set(spotRef, toSpotDoc(next)); err != nil {
				return err
			}
			ws.Spot = &next
		}
		if ws.CloseSession != nil {
			ref := s.client.Collection(historyCollection).Doc(ws.CloseSession.ID)
			if err := tx.Set(ref, toHistoryDoc(*ws.CloseSession)); err != nil {
				return err
			}
		}
		if ws.OpenSession != nil {
			ref := s.client.Collection(historyCollection).Doc(ws.OpenSession.ID)
			if err := tx.Create(ref, toHistoryDoc(*ws.OpenSession)); err != nil {
				return err
			}
		}
		if ws.Payment != nil {
			ref := s.client.Collection(paymentsCollection).Doc(ws.Payment.ID)
			if err := tx.Create(ref, toPaymentDoc(*ws.Payment)); err != nil {
				return err
			}
		}
		result = ws
		return nil
	}, firestore.MaxAttempts(1))

	if err != nil {
		if isDomainError(err) {
			return repository.WriteSet{}, err
		}
		classified := classify("SpotLedger.RunAtomic", err)
		if errors.Is(classified, repository.ErrNotFound) {
			return repository.WriteSet{}, fmt.Errorf("%w: spot %s", repository.ErrNotFound, spotID)
		}
		return repository.WriteSet{}, classified
	}
	return result, nil
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrValidation, domain.ErrInvalidTransition, domain.ErrNoActiveSession,
		domain.ErrDuplicateActiveSession, domain.ErrInconsistentState,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
