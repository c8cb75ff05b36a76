package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

var ErrInvalidCredential = errors.New("invalid credential")
var ErrUserAlreadyExists = errors.New("user already exists")
var ErrLoginNotSupported = errors.New("password login is handled by the identity provider client")

// Identity is what a verified token says about its caller.
type Identity struct {
	UserID string
	Email  string
	Role   domain.Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == domain.RoleAdmin
}

// AuthProvider is the identity backend. Failures to verify are reported as ErrInvalidCredential.
type AuthProvider interface {
	CreateUser(ctx context.Context, email, password, displayName string, role domain.Role) (string, error)
	VerifyToken(ctx context.Context, token string) (*Identity, error)
	GetUser(ctx context.Context, userID string) (*Identity, error)
	// DeleteUser removes the identity. An identity that is already gone is not an error.
	DeleteUser(ctx context.Context, userID string) error
}

// PasswordAuthenticator is implemented by providers that can exchange a password for a token.
type PasswordAuthenticator interface {
	SignIn(ctx context.Context, email, password string) (string, *Identity, error)
}

// LocalAuthProvider keeps bcrypt hashes in the store and issues HS256 tokens.
type LocalAuthProvider struct {
	credentials        repository.CredentialRepository
	jwtSecret          string
	jwtExpirationHours time.Duration
	now                func() time.Time
}

func NewLocalAuthProvider(credentials repository.CredentialRepository, jwtSecret string, jwtExpHours time.Duration) *LocalAuthProvider {
	return &LocalAuthProvider{
		credentials:        credentials,
		jwtSecret:          jwtSecret,
		jwtExpirationHours: jwtExpHours,
		now:                time.Now,
	}
}

func (p *LocalAuthProvider) CreateUser(ctx context.Context, email, password, _ string, role domain.Role) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	cred := &domain.Credential{
		UserID:       uuid.NewString(),
		Email:        strings.ToLower(email),
		PasswordHash: string(hashedPassword),
		Role:         role,
	}
	if err := p.credentials.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return "", fmt.Errorf("%w: %s", ErrUserAlreadyExists, email)
		}
		return "", fmt.Errorf("error storing credential: %w", err)
	}
	return cred.UserID, nil
}

func (p *LocalAuthProvider) SignIn(ctx context.Context, email, password string) (string, *Identity, error) {
	cred, err := p.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredential
		}
		return "", nil, fmt.Errorf("error looking up credential: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredential
	}

	now := p.now()
	claims := jwt.MapClaims{
		"sub":   cred.UserID,
		"exp":   now.Add(p.jwtExpirationHours).Unix(),
		"iat":   now.Unix(),
		"role":  string(cred.Role),
		"email": cred.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(p.jwtSecret))
	if err != nil {
		return "", nil, fmt.Errorf("error signing token: %w", err)
	}
	return tokenString, &Identity{UserID: cred.UserID, Email: cred.Email, Role: cred.Role}, nil
}

func (p *LocalAuthProvider) VerifyToken(_ context.Context, tokenString string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.jwtSecret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: malformed token", ErrInvalidCredential)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: token expired", ErrInvalidCredential)
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, fmt.Errorf("%w: token not valid yet", ErrInvalidCredential)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !token.Valid {
		return nil, ErrInvalidCredential
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidCredential)
	}
	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	return &Identity{UserID: sub, Email: email, Role: roleOrDefault(role)}, nil
}

func (p *LocalAuthProvider) GetUser(ctx context.Context, userID string) (*Identity, error) {
	cred, err := p.credentials.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: cred.UserID, Email: cred.Email, Role: cred.Role}, nil
}

func (p *LocalAuthProvider) DeleteUser(ctx context.Context, userID string) error {
	if err := p.credentials.DeleteByUserID(ctx, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("error deleting credential: %w", err)
	}
	return nil
}

func roleOrDefault(role string) domain.Role {
	if domain.Role(role) == domain.RoleAdmin {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

// AuthService registers users with the provider and keeps their profile in the store.
type AuthService struct {
	provider    AuthProvider
	users       repository.UserRepository
	adminEmails map[string]bool
	now         func() time.Time
}

func NewAuthService(provider AuthProvider, users repository.UserRepository, adminEmails []string) *AuthService {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(e)] = true
	}
	return &AuthService{
		provider:    provider,
		users:       users,
		adminEmails: admins,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthService) Provider() AuthProvider {
	return s.provider
}

func (s *AuthService) Register(ctx context.Context, dto domain.RegisterUserDTO) (*domain.User, error) {
	role := domain.RoleUser
	if s.adminEmails[strings.ToLower(dto.Email)] {
		role = domain.RoleAdmin
	}
	uid, err := s.provider.CreateUser(ctx, dto.Email, dto.Password, dto.FirstName+" "+dto.LastName, role)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:          uid,
		Email:       strings.ToLower(dto.Email),
		FirstName:   dto.FirstName,
		LastName:    dto.LastName,
		Phone:       dto.Phone,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
		Preferences: domain.DefaultPreferences(),
	}
	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, fmt.Errorf("%w: %v", ErrUserAlreadyExists, err)
		}
		return nil, fmt.Errorf("error creating user profile: %w", err)
	}
	log.Printf("AuthService: registered user %s (%s)", created.ID, created.Email)
	return created, nil
}

func (s *AuthService) Login(ctx context.Context, dto domain.LoginUserDTO) (*domain.AuthResponseDTO, error) {
	pa, ok := s.provider.(PasswordAuthenticator)
	if !ok {
		return nil, ErrLoginNotSupported
	}
	token, identity, err := pa.SignIn(ctx, dto.Email, dto.Password)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResponseDTO{
		Token:  token,
		UserID: identity.UserID,
		Email:  identity.Email,
		Role:   identity.Role,
	}, nil
}
