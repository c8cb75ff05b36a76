package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository/memory"
)

func newAuth(t *testing.T, admins ...string) (*AuthService, *LocalAuthProvider) {
	t.Helper()
	repos := memory.NewStore().Repositories()
	provider := NewLocalAuthProvider(repos.Credentials, "test-secret", time.Hour)
	return NewAuthService(provider, repos.Users, admins), provider
}

func TestRegisterAndLogin(t *testing.T) {
	svc, provider := newAuth(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, domain.RegisterUserDTO{
		Email: "Ann@Example.com", Password: "secret1", FirstName: "Ann", LastName: "Lee",
	})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", user.Email)
	assert.Equal(t, domain.RoleUser, user.Role)

	resp, err := svc.Login(ctx, domain.LoginUserDTO{Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, resp.UserID)
	assert.NotEmpty(t, resp.Token)

	identity, err := provider.VerifyToken(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, "ann@example.com", identity.Email)
	assert.False(t, identity.IsAdmin())

	got, err := provider.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()
	dto := domain.RegisterUserDTO{Email: "ann@example.com", Password: "secret1", FirstName: "Ann", LastName: "Lee"}
	_, err := svc.Register(ctx, dto)
	require.NoError(t, err)

	dto.Email = "ANN@example.com"
	_, err = svc.Register(ctx, dto)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestRegisterAdminEmail(t *testing.T) {
	svc, provider := newAuth(t, "Boss@Example.com")
	ctx := context.Background()
	user, err := svc.Register(ctx, domain.RegisterUserDTO{Email: "boss@example.com", Password: "secret1", FirstName: "B", LastName: "C"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)

	resp, err := svc.Login(ctx, domain.LoginUserDTO{Email: "boss@example.com", Password: "secret1"})
	require.NoError(t, err)
	identity, err := provider.VerifyToken(ctx, resp.Token)
	require.NoError(t, err)
	assert.True(t, identity.IsAdmin())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, domain.RegisterUserDTO{Email: "ann@example.com", Password: "secret1", FirstName: "A", LastName: "L"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, domain.LoginUserDTO{Email: "ann@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = svc.Login(ctx, domain.LoginUserDTO{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyTokenFailures(t *testing.T) {
	_, provider := newAuth(t)
	ctx := context.Background()

	_, err := provider.VerifyToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = provider.VerifyToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err = foreign.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = provider.VerifyToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err = noSubject.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = provider.VerifyToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

type tokenOnlyProvider struct{ AuthProvider }

func TestLoginNotSupported(t *testing.T) {
	repos := memory.NewStore().Repositories()
	svc := NewAuthService(tokenOnlyProvider{}, repos.Users, nil)
	_, err := svc.Login(context.Background(), domain.LoginUserDTO{Email: "a@b.c", Password: "x"})
	assert.ErrorIs(t, err, ErrLoginNotSupported)
}
