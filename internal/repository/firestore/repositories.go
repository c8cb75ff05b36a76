package firestore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

type spotRepo struct{ client *firestore.Client }

func (r spotRepo) Create(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error) {
	created := *spot
	created.Version = 1
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		dup := r.client.Collection(spotsCollection).
			Where("floor", "==", spot.Floor).
			Where("section", "==", spot.Section).
			Where("number", "==", spot.Number).
			Limit(1)
		docs, err := tx.Documents(dup).GetAll()
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return fmt.Errorf("%w: spot %s already exists on floor %d section %s",
				repository.ErrDuplicateEntry, spot.Number, spot.Floor, spot.Section)
		}
		return tx.Create(r.client.Collection(spotsCollection).Doc(spot.ID), toSpotDoc(created))
	})
	if err != nil {
		if isRepositoryError(err) {
			return nil, err
		}
		return nil, classify("SpotRepository.Create", err)
	}
	return &created, nil
}

func (r spotRepo) FindByID(ctx context.Context, id string) (*domain.ParkingSpot, error) {
	doc, err := r.client.Collection(spotsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, classify("SpotRepository.FindByID", err)
	}
	var d spotDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("SpotRepository.FindByID (decode): %w", err)
	}
	spot := d.toDomain(doc.Ref.ID)
	return &spot, nil
}

func (r spotRepo) Find(ctx context.Context, filter domain.SpotFilter) ([]domain.ParkingSpot, error) {
	q := r.client.Collection(spotsCollection).Query
	if filter.State != nil {
		q = q.Where("status", "==", string(*filter.State))
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, classify("SpotRepository.Find", err)
	}
	spots := make([]domain.ParkingSpot, 0, len(docs))
	for _, doc := range docs {
		var d spotDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("SpotRepository.Find (decode %s): %w", doc.Ref.ID, err)
		}
		spots = append(spots, d.toDomain(doc.Ref.ID))
	}
	sort.Slice(spots, func(i, j int) bool {
		a, b := spots[i], spots[j]
		if a.Floor != b.Floor {
			return a.Floor < b.Floor
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		return a.Number < b.Number
	})
	return spots, nil
}

type sessionRepo struct{ client *firestore.Client }

func (r sessionRepo) FindByID(ctx context.Context, id string) (*domain.ParkingSession, error) {
	doc, err := r.client.Collection(historyCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, classify("SessionRepository.FindByID", err)
	}
	var d historyDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("SessionRepository.FindByID (decode): %w", err)
	}
	session := d.toDomain(doc.Ref.ID)
	return &session, nil
}

// Find pushes equality filters to Firestore and orders in process, so no composite index is needed.
func (r sessionRepo) Find(ctx context.Context, filter domain.SessionFilter) ([]domain.ParkingSession, error) {
	q := r.client.Collection(historyCollection).Query
	if filter.UserID != nil {
		q = q.Where("userId", "==", *filter.UserID)
	}
	if filter.Plate != nil {
		q = q.Where("plateNumber", "==", *filter.Plate)
	}
	if filter.Status != nil {
		q = q.Where("status", "==", string(*filter.Status))
	}
	if filter.SpotID != nil {
		q = q.Where("parkingSpotId", "==", *filter.SpotID)
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, classify("SessionRepository.Find", err)
	}
	sessions := make([]domain.ParkingSession, 0, len(docs))
	for _, doc := range docs {
		var d historyDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("SessionRepository.Find (decode %s): %w", doc.Ref.ID, err)
		}
		sessions = append(sessions, d.toDomain(doc.Ref.ID))
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].EntryTime.Equal(sessions[j].EntryTime) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].EntryTime.After(sessions[j].EntryTime)
	})
	return sessions, nil
}

type paymentRepo struct{ client *firestore.Client }

func (r paymentRepo) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	doc, err := r.client.Collection(paymentsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, classify("PaymentRepository.FindByID", err)
	}
	var d paymentDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("PaymentRepository.FindByID (decode): %w", err)
	}
	p := d.toDomain(doc.Ref.ID)
	return &p, nil
}

func (r paymentRepo) Find(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	q := r.client.Collection(paymentsCollection).Query
	if filter.UserID != nil {
		q = q.Where("userId", "==", *filter.UserID)
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, classify("PaymentRepository.Find", err)
	}
	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		var d paymentDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("PaymentRepository.Find (decode %s): %w", doc.Ref.ID, err)
		}
		p := d.toDomain(doc.Ref.ID)
		if filter.Matches(p) {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})
	return payments, nil
}

func (r paymentRepo) Refund(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	ref := r.client.Collection(paymentsCollection).Doc(p.ID)
	var refunded domain.Payment
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var d paymentDoc
		if err := doc.DataTo(&d); err != nil {
			return fmt.Errorf("decode payment %s: %w", p.ID, err)
		}
		if d.Status != string(domain.PaymentCompleted) {
			return fmt.Errorf("%w: payment %s is %s", domain.ErrInvalidTransition, p.ID, d.Status)
		}
		d.Status = string(domain.PaymentRefunded)
		d.RefundReason = p.RefundReason.Ptr()
		d.RefundDate = p.RefundedAt.Ptr()
		refunded = d.toDomain(p.ID)
		return tx.Set(ref, d)
	}, firestore.MaxAttempts(1))
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, classify("PaymentRepository.Refund", err)
	}
	return &refunded, nil
}

type userRepo struct{ client *firestore.Client }

func (r userRepo) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	_, err := r.client.Collection(usersCollection).Doc(u.ID).Create(ctx, toUserDoc(*u))
	if err != nil {
		return nil, classify("UserRepository.Create", err)
	}
	return u, nil
}

func (r userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, classify("UserRepository.FindByID", err)
	}
	var d userDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("UserRepository.FindByID (decode): %w", err)
	}
	u := d.toDomain(doc.Ref.ID)
	return &u, nil
}

func (r userRepo) FindAll(ctx context.Context) ([]domain.User, error) {
	docs, err := r.client.Collection(usersCollection).OrderBy("createdAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, classify("UserRepository.FindAll", err)
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		var d userDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("UserRepository.FindAll (decode %s): %w", doc.Ref.ID, err)
		}
		users = append(users, d.toDomain(doc.Ref.ID))
	}
	return users, nil
}

func (r userRepo) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	_, err := r.client.Collection(usersCollection).Doc(u.ID).Update(ctx, []firestore.Update{
		{Path: "firstName", Value: u.FirstName},
		{Path: "lastName", Value: u.LastName},
		{Path: "phone", Value: u.Phone},
		{Path: "preferences", Value: preferencesDoc(u.Preferences)},
		{Path: "updatedAt", Value: u.UpdatedAt},
	})
	if err != nil {
		return nil, classify("UserRepository.Update", err)
	}
	return u, nil
}

// Delete removes the user and its vehicles subcollection in one transaction.
func (r userRepo) Delete(ctx context.Context, id string) error {
	userRef := r.client.Collection(usersCollection).Doc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(userRef); err != nil {
			return err
		}
		vehicles, err := tx.Documents(userRef.Collection(vehiclesCollection)).GetAll()
		if err != nil {
			return err
		}
		for _, v := range vehicles {
			if err := tx.Delete(v.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(userRef)
	})
	if err != nil {
		return classify("UserRepository.Delete", err)
	}
	return nil
}

func (r userRepo) AddVehicle(ctx context.Context, v *domain.Vehicle) (*domain.Vehicle, error) {
	userRef := r.client.Collection(usersCollection).Doc(v.UserID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(userRef); err != nil {
			return err
		}
		dup := userRef.Collection(vehiclesCollection).Where("plateNumber", "==", v.PlateNumber).Limit(1)
		docs, err := tx.Documents(dup).GetAll()
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return fmt.Errorf("%w: vehicle %s", repository.ErrDuplicateEntry, v.PlateNumber)
		}
		return tx.Create(userRef.Collection(vehiclesCollection).Doc(v.ID), vehicleDoc{
			PlateNumber: v.PlateNumber, Brand: v.Brand, Model: v.Model, Color: v.Color, CreatedAt: v.CreatedAt,
		})
	})
	if err != nil {
		if isRepositoryError(err) {
			return nil, err
		}
		return nil, classify("UserRepository.AddVehicle", err)
	}
	return v, nil
}

func (r userRepo) FindVehicles(ctx context.Context, userID string) ([]domain.Vehicle, error) {
	docs, err := r.client.Collection(usersCollection).Doc(userID).Collection(vehiclesCollection).
		OrderBy("createdAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, classify("UserRepository.FindVehicles", err)
	}
	vehicles := make([]domain.Vehicle, 0, len(docs))
	for _, doc := range docs {
		var d vehicleDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("UserRepository.FindVehicles (decode %s): %w", doc.Ref.ID, err)
		}
		vehicles = append(vehicles, domain.Vehicle{
			ID: doc.Ref.ID, UserID: userID, PlateNumber: d.PlateNumber,
			Brand: d.Brand, Model: d.Model, Color: d.Color, CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return vehicles, nil
}

type credentialRepo struct{ client *firestore.Client }

func (r credentialRepo) Create(ctx context.Context, c *domain.Credential) error {
	_, err := r.client.Collection(credentialsCollection).Doc(strings.ToLower(c.Email)).Create(ctx, credentialDoc{
		UserID: c.UserID, PasswordHash: c.PasswordHash, Role: string(c.Role),
	})
	if err != nil {
		return classify("CredentialRepository.Create", err)
	}
	return nil
}

func (r credentialRepo) FindByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	doc, err := r.client.Collection(credentialsCollection).Doc(strings.ToLower(email)).Get(ctx)
	if err != nil {
		return nil, classify("CredentialRepository.FindByEmail", err)
	}
	var d credentialDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("CredentialRepository.FindByEmail (decode): %w", err)
	}
	return &domain.Credential{UserID: d.UserID, Email: doc.Ref.ID, PasswordHash: d.PasswordHash, Role: domain.Role(d.Role)}, nil
}

func (r credentialRepo) FindByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	docs, err := r.client.Collection(credentialsCollection).Where("userId", "==", userID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, classify("CredentialRepository.FindByUserID", err)
	}
	if len(docs) == 0 {
		return nil, repository.ErrNotFound
	}
	var d credentialDoc
	if err := docs[0].DataTo(&d); err != nil {
		return nil, fmt.Errorf("CredentialRepository.FindByUserID (decode): %w", err)
	}
	return &domain.Credential{UserID: d.UserID, Email: docs[0].Ref.ID, PasswordHash: d.PasswordHash, Role: domain.Role(d.Role)}, nil
}

func (r credentialRepo) DeleteByUserID(ctx context.Context, userID string) error {
	docs, err := r.client.Collection(credentialsCollection).Where("userId", "==", userID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return classify("CredentialRepository.DeleteByUserID", err)
	}
	if len(docs) == 0 {
		return repository.ErrNotFound
	}
	if _, err := docs[0].Ref.Delete(ctx); err != nil {
		return classify("CredentialRepository.DeleteByUserID", err)
	}
	return nil
}
