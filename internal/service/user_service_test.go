package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
	"parking_backend/internal/repository/memory"
)

func TestUserProfileAndVehicles(t *testing.T) {
	repos := memory.NewStore().Repositories()
	ctx := context.Background()
	_, err := repos.Users.Create(ctx, &domain.User{ID: "u1", Email: "ann@example.com", FirstName: "Ann"})
	require.NoError(t, err)

	users := NewUserService(repos, nil, time.Second)
	parking := NewParkingService(repos, 5, time.Second, nil)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	parking.now = func() time.Time { return clock }

	phone := " 555-0100 "
	updated, err := users.Update(ctx, "u1", domain.UpdateUserDTO{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "555-0100", updated.Phone)
	assert.Equal(t, "Ann", updated.FirstName)

	v, err := users.AddVehicle(ctx, "u1", domain.AddVehicleDTO{PlateNumber: "abc 123"})
	require.NoError(t, err)
	assert.Equal(t, "ABC 123", v.PlateNumber)
	_, err = users.AddVehicle(ctx, "u1", domain.AddVehicleDTO{PlateNumber: "ABC 123"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
	_, err = users.Vehicles(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	for i := 0; i < 7; i++ {
		spot, err := parking.CreateSpot(ctx, domain.ParkingSpotDTO{Number: fmt.Sprint(i + 1), Floor: 1, Section: "A"})
		require.NoError(t, err)
		_, err = parking.RegisterEntry(ctx, spot.ID, "u1", "ABC123")
		require.NoError(t, err)
		clock = clock.Add(time.Hour)
		if i < 6 {
			_, err = parking.RegisterExit(ctx, spot.ID, "")
			require.NoError(t, err)
		}
	}

	profile, err := users.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, profile.Vehicles, 1)
	require.NotNil(t, profile.ActiveSession)
	assert.Equal(t, domain.SessionActive, profile.ActiveSession.Status)
	assert.Len(t, profile.RecentHistory, recentHistoryLimit)
	for _, s := range profile.RecentHistory {
		assert.Equal(t, domain.SessionCompleted, s.Status)
	}

	history, err := users.History(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 7)
}

type recordingIdentities struct {
	deleted []string
	err     error
}

func (r *recordingIdentities) DeleteUser(_ context.Context, userID string) error {
	if r.err != nil {
		return r.err
	}
	r.deleted = append(r.deleted, userID)
	return nil
}

func TestUserListPreferencesAndDelete(t *testing.T) {
	repos := memory.NewStore().Repositories()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"u2", "u1", "u3"} {
		_, err := repos.Users.Create(ctx, &domain.User{
			ID: id, Email: id + "@example.com", CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Preferences: domain.DefaultPreferences(),
		})
		require.NoError(t, err)
	}
	identities := &recordingIdentities{}
	users := NewUserService(repos, identities, time.Second)
	parking := NewParkingService(repos, 5, time.Second, nil)

	all, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"u2", "u1", "u3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	dark, off := "dark", false
	updated, err := users.UpdatePreferences(ctx, "u1", domain.UpdatePreferencesDTO{Theme: &dark, Notifications: &off})
	require.NoError(t, err)
	assert.Equal(t, domain.UserPreferences{Notifications: false, Language: "es", Theme: "dark"}, updated.Preferences)
	stored, err := repos.Users.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "dark", stored.Preferences.Theme)
	_, err = users.UpdatePreferences(ctx, "nobody", domain.UpdatePreferencesDTO{Theme: &dark})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = users.AddVehicle(ctx, "u1", domain.AddVehicleDTO{PlateNumber: "ABC123"})
	require.NoError(t, err)

	spot, err := parking.CreateSpot(ctx, domain.ParkingSpotDTO{Number: "1", Floor: 1, Section: "A"})
	require.NoError(t, err)
	_, err = parking.RegisterEntry(ctx, spot.ID, "u1", "ABC123")
	require.NoError(t, err)
	err = users.Delete(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = parking.RegisterExit(ctx, spot.ID, "")
	require.NoError(t, err)
	_, err = parking.Reserve(ctx, spot.ID, "u1")
	require.NoError(t, err)
	err = users.Delete(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, identities.deleted)

	require.NoError(t, users.Delete(ctx, "u3"))
	assert.Equal(t, []string{"u3"}, identities.deleted)
	_, err = repos.Users.FindByID(ctx, "u3")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	err = users.Delete(ctx, "u3")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	all, err = users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUserDeleteRemovesLocalCredential(t *testing.T) {
	repos := memory.NewStore().Repositories()
	provider := NewLocalAuthProvider(repos.Credentials, "test-secret", time.Hour)
	auth := NewAuthService(provider, repos.Users, nil)
	users := NewUserService(repos, provider, time.Second)
	ctx := context.Background()

	user, err := auth.Register(ctx, domain.RegisterUserDTO{Email: "gone@example.com", Password: "secret1", FirstName: "G", LastName: "One"})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPreferences(), user.Preferences)

	require.NoError(t, users.Delete(ctx, user.ID))
	_, err = auth.Login(ctx, domain.LoginUserDTO{Email: "gone@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = repos.Credentials.FindByUserID(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// stalledUsers never answers until ctx is done.
type stalledUsers struct{ repository.UserRepository }

func (stalledUsers) FindByID(ctx context.Context, _ string) (*domain.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestUserStoreTimeoutIsUnavailable(t *testing.T) {
	repos := memory.NewStore().Repositories()
	repos.Users = stalledUsers{}
	users := NewUserService(repos, nil, 20*time.Millisecond)

	_, err := users.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
	err = users.Delete(context.Background(), "u1")
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
}
