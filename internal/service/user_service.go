package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

const recentHistoryLimit = 5

// IdentityRemover deletes a user from the identity backend.
type IdentityRemover interface {
	DeleteUser(ctx context.Context, userID string) error
}

type UserService struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	spots      repository.SpotRepository
	identities IdentityRemover
	timeout    time.Duration
	now        func() time.Time
}

func NewUserService(store repository.Store, identities IdentityRemover, timeout time.Duration) *UserService {
	return &UserService{
		users:      store.Users,
		sessions:   store.Sessions,
		spots:      store.Spots,
		identities: identities,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserService) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return withStoreTimeout(ctx, s.timeout)
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	user, err := s.users.FindByID(ctx, id)
	return user, storeErr(ctx, err)
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	users, err := s.users.FindAll(ctx)
	return users, storeErr(ctx, err)
}

// Update applies only the fields present in dto.
func (s *UserService) Update(ctx context.Context, id string, dto domain.UpdateUserDTO) (*domain.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	if dto.FirstName != nil {
		user.FirstName = strings.TrimSpace(*dto.FirstName)
	}
	if dto.LastName != nil {
		user.LastName = strings.TrimSpace(*dto.LastName)
	}
	if dto.Phone != nil {
		user.Phone = strings.TrimSpace(*dto.Phone)
	}
	user.UpdatedAt = s.now()
	updated, err := s.users.Update(ctx, user)
	return updated, storeErr(ctx, err)
}

func (s *UserService) UpdatePreferences(ctx context.Context, id string, dto domain.UpdatePreferencesDTO) (*domain.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	user.Preferences = user.Preferences.Apply(dto)
	user.UpdatedAt = s.now()
	updated, err := s.users.Update(ctx, user)
	return updated, storeErr(ctx, err)
}

// Delete removes the profile and then the identity. Users that hold a spot, by an open session
// or a reservation, cannot be deleted.
func (s *UserService) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.users.FindByID(ctx, id); err != nil {
		return storeErr(ctx, err)
	}

	active := domain.SessionActive
	open, err := s.sessions.Find(ctx, domain.SessionFilter{UserID: &id, Status: &active})
	if err != nil {
		return storeErr(ctx, err)
	}
	if len(open) > 0 {
		return fmt.Errorf("%w: user %s is parked on spot %s", domain.ErrInvalidTransition, id, open[0].SpotID)
	}
	reserved := domain.SpotReserved
	spots, err := s.spots.Find(ctx, domain.SpotFilter{State: &reserved})
	if err != nil {
		return storeErr(ctx, err)
	}
	for _, spot := range spots {
		if spot.OccupantID.String == id {
			return fmt.Errorf("%w: user %s holds a reservation on spot %s", domain.ErrInvalidTransition, id, spot.ID)
		}
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return storeErr(ctx, err)
	}
	if s.identities != nil {
		if err := s.identities.DeleteUser(ctx, id); err != nil {
			log.Printf("UserService: profile %s deleted but identity removal failed: %v", id, err)
			return storeErr(ctx, err)
		}
	}
	log.Printf("UserService: user %s deleted", id)
	return nil
}

func (s *UserService) Vehicles(ctx context.Context, userID string) ([]domain.Vehicle, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, storeErr(ctx, err)
	}
	vehicles, err := s.users.FindVehicles(ctx, userID)
	return vehicles, storeErr(ctx, err)
}

func (s *UserService) AddVehicle(ctx context.Context, userID string, dto domain.AddVehicleDTO) (*domain.Vehicle, error) {
	v := &domain.Vehicle{
		ID:          uuid.NewString(),
		UserID:      userID,
		PlateNumber: strings.ToUpper(strings.TrimSpace(dto.PlateNumber)),
		Brand:       dto.Brand,
		Model:       dto.Model,
		Color:       dto.Color,
		CreatedAt:   s.now(),
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	created, err := s.users.AddVehicle(ctx, v)
	return created, storeErr(ctx, err)
}

func (s *UserService) History(ctx context.Context, userID string) ([]domain.ParkingSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	sessions, err := s.sessions.Find(ctx, domain.SessionFilter{UserID: &userID})
	return sessions, storeErr(ctx, err)
}

// Profile returns the user with vehicles, the open session if any and the latest closed ones.
func (s *UserService) Profile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	vehicles, err := s.Vehicles(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := &domain.UserProfile{User: *user, Vehicles: vehicles, RecentHistory: []domain.ParkingSession{}}
	for i := range history {
		session := history[i]
		if session.Status == domain.SessionActive {
			if profile.ActiveSession == nil {
				profile.ActiveSession = &session
			}
			continue
		}
		if len(profile.RecentHistory) < recentHistoryLimit {
			profile.RecentHistory = append(profile.RecentHistory, session)
		}
	}
	return profile, nil
}
