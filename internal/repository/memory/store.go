// Package memory keeps every record in process. It backs local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

type Store struct {
	mu           sync.RWMutex
	spots        map[string]domain.ParkingSpot
	sessions     map[string]domain.ParkingSession
	activeBySpot map[string]string
	payments     map[string]domain.Payment
	users        map[string]domain.User
	vehicles     map[string][]domain.Vehicle
	credentials  map[string]domain.Credential

	locksMu   sync.Mutex
	spotLocks map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		spots:        make(map[string]domain.ParkingSpot),
		sessions:     make(map[string]domain.ParkingSession),
		activeBySpot: make(map[string]string),
		payments:     make(map[string]domain.Payment),
		users:        make(map[string]domain.User),
		vehicles:     make(map[string][]domain.Vehicle),
		credentials:  make(map[string]domain.Credential),
		spotLocks:    make(map[string]*sync.Mutex),
	}
}

// Repositories exposes the store through the repository contracts.
func (s *Store) Repositories() repository.Store {
	return repository.Store{
		Spots:       spotRepo{s},
		Sessions:    sessionRepo{s},
		Payments:    paymentRepo{s},
		Users:       userRepo{s},
		Credentials: credentialRepo{s},
		Ledger:      s,
	}
}

func (s *Store) spotLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.spotLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.spotLocks[id] = l
	}
	return l
}

// RunAtomic serializes transitions per spot. The loser of a race sees the winner's
// state and is rejected by its own guard.
func (s *Store) RunAtomic(ctx context.Context, spotID string, guard repository.GuardFunc) (repository.WriteSet, error) {
	l := s.spotLock(spotID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return repository.WriteSet{}, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}

	s.mu.RLock()
	spot, ok := s.spots[spotID]
	var snap repository.SpotSnapshot
	if ok {
		snap.Spot = spot
		if sid, open := s.activeBySpot[spotID]; open {
			active := s.sessions[sid]
			snap.Active = &active
		}
	}
	s.mu.RUnlock()
	if !ok {
		return repository.WriteSet{}, fmt.Errorf("%w: spot %s", repository.ErrNotFound, spotID)
	}

	ws, err := guard(snap)
	if err != nil {
		return repository.WriteSet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.spots[spotID]; !ok || cur.Version != spot.Version {
		return repository.WriteSet{}, fmt.Errorf("%w: spot %s changed concurrently", domain.ErrInvalidTransition, spotID)
	}
	if ws.OpenSession != nil {
		if _, open := s.activeBySpot[spotID]; open {
			return repository.WriteSet{}, fmt.Errorf("%w: spot %s", domain.ErrDuplicateActiveSession, spotID)
		}
	}

	if ws.DeleteSpot {
		delete(s.spots, spotID)
	} else if ws.Spot != nil {
		next := *ws.Spot
		next.Version = spot.Version + 1
		s.spots[spotID] = next
		ws.Spot = &next
	}
	if ws.CloseSession != nil {
		s.sessions[ws.CloseSession.ID] = *ws.CloseSession
		delete(s.activeBySpot, spotID)
	}
	if ws.OpenSession != nil {
		s.sessions[ws.OpenSession.ID] = *ws.OpenSession
		s.activeBySpot[spotID] = ws.OpenSession.ID
	}
	if ws.Payment != nil {
		s.payments[ws.Payment.ID] = *ws.Payment
	}
	return ws, nil
}

type spotRepo struct{ s *Store }

func (r spotRepo) Create(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.spots[spot.ID]; exists {
		return nil, fmt.Errorf("%w: spot %s", repository.ErrDuplicateEntry, spot.ID)
	}
	for _, other := range r.s.spots {
		if other.Floor == spot.Floor && other.Section == spot.Section && other.Number == spot.Number {
			return nil, fmt.Errorf("%w: spot %d%s-%s", repository.ErrDuplicateEntry, spot.Floor, spot.Section, spot.Number)
		}
	}
	created := *spot
	created.Version = 1
	r.s.spots[spot.ID] = created
	return &created, nil
}

func (r spotRepo) FindByID(ctx context.Context, id string) (*domain.ParkingSpot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	spot, ok := r.s.spots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &spot, nil
}

func (r spotRepo) Find(ctx context.Context, filter domain.SpotFilter) ([]domain.ParkingSpot, error) {
	r.s.mu.RLock()
	spots := make([]domain.ParkingSpot, 0, len(r.s.spots))
	for _, spot := range r.s.spots {
		if filter.State != nil && spot.State != *filter.State {
			continue
		}
		spots = append(spots, spot)
	}
	r.s.mu.RUnlock()

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

type sessionRepo struct{ s *Store }

func (r sessionRepo) FindByID(ctx context.Context, id string) (*domain.ParkingSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	session, ok := r.s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (r sessionRepo) Find(ctx context.Context, filter domain.SessionFilter) ([]domain.ParkingSession, error) {
	r.s.mu.RLock()
	sessions := make([]domain.ParkingSession, 0)
	for _, session := range r.s.sessions {
		if filter.Matches(session) {
			sessions = append(sessions, session)
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].EntryTime.Equal(sessions[j].EntryTime) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].EntryTime.After(sessions[j].EntryTime)
	})
	return sessions, nil
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r paymentRepo) Find(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error) {
	r.s.mu.RLock()
	payments := make([]domain.Payment, 0)
	for _, p := range r.s.payments {
		if filter.Matches(p) {
			payments = append(payments, p)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(payments, func(i, j int) bool {
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})
	return payments, nil
}

func (r paymentRepo) Refund(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.payments[payment.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if cur.Status != domain.PaymentCompleted {
		return nil, fmt.Errorf("%w: payment %s is %s", domain.ErrInvalidTransition, payment.ID, cur.Status)
	}
	cur.Status = domain.PaymentRefunded
	cur.RefundReason = payment.RefundReason
	cur.RefundedAt = payment.RefundedAt
	r.s.payments[payment.ID] = cur
	return &cur, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.users[user.ID]; exists {
		return nil, fmt.Errorf("%w: user %s", repository.ErrDuplicateEntry, user.ID)
	}
	r.s.users[user.ID] = *user
	return user, nil
}

func (r userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) FindAll(ctx context.Context) ([]domain.User, error) {
	r.s.mu.RLock()
	users := make([]domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, u)
	}
	r.s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r userRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)
	delete(r.s.vehicles, id)
	return nil
}

func (r userRepo) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	r.s.users[user.ID] = *user
	return user, nil
}

func (r userRepo) AddVehicle(ctx context.Context, vehicle *domain.Vehicle) (*domain.Vehicle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[vehicle.UserID]; !ok {
		return nil, repository.ErrNotFound
	}
	for _, v := range r.s.vehicles[vehicle.UserID] {
		if v.PlateNumber == vehicle.PlateNumber {
			return nil, fmt.Errorf("%w: vehicle %s", repository.ErrDuplicateEntry, vehicle.PlateNumber)
		}
	}
	r.s.vehicles[vehicle.UserID] = append(r.s.vehicles[vehicle.UserID], *vehicle)
	return vehicle, nil
}

func (r userRepo) FindVehicles(ctx context.Context, userID string) ([]domain.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	vehicles := make([]domain.Vehicle, len(r.s.vehicles[userID]))
	copy(vehicles, r.s.vehicles[userID])
	return vehicles, nil
}

type credentialRepo struct{ s *Store }

func (r credentialRepo) Create(ctx context.Context, cred *domain.Credential) error {
	key := strings.ToLower(cred.Email)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.credentials[key]; exists {
		return fmt.Errorf("%w: email %s", repository.ErrDuplicateEntry, cred.Email)
	}
	r.s.credentials[key] = *cred
	return nil
}

func (r credentialRepo) FindByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.credentials[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r credentialRepo) FindByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.credentials {
		if c.UserID == userID {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r credentialRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key, c := range r.s.credentials {
		if c.UserID == userID {
			delete(r.s.credentials, key)
			return nil
		}
	}
	return repository.ErrNotFound
}
