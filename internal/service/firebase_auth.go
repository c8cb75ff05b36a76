package service

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"

	"parking_backend/internal/domain"
)

// firebaseAuthClient is the part of *auth.Client this package uses.
type firebaseAuthClient interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
}

// FirebaseAuthProvider verifies Firebase ID tokens. Roles live in the "role" custom claim.
type FirebaseAuthProvider struct {
	client firebaseAuthClient
}

func NewFirebaseAuthProvider(client *auth.Client) *FirebaseAuthProvider {
	return &FirebaseAuthProvider{client: client}
}

func (p *FirebaseAuthProvider) CreateUser(ctx context.Context, email, password, displayName string, role domain.Role) (string, error) {
	params := (&auth.UserToCreate{}).Email(email).Password(password).DisplayName(displayName)
	record, err := p.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", fmt.Errorf("%w: %s", ErrUserAlreadyExists, email)
		}
		return "", fmt.Errorf("error creating firebase user: %w", err)
	}
	if role == domain.RoleAdmin {
		if err := p.client.SetCustomUserClaims(ctx, record.UID, map[string]interface{}{"role": string(role)}); err != nil {
			return "", fmt.Errorf("error setting role claim: %w", err)
		}
	}
	return record.UID, nil
}

func (p *FirebaseAuthProvider) VerifyToken(ctx context.Context, idToken string) (*Identity, error) {
	token, err := p.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	role, _ := token.Claims["role"].(string)
	email, _ := token.Claims["email"].(string)
	return &Identity{UserID: token.UID, Email: email, Role: roleOrDefault(role)}, nil
}

func (p *FirebaseAuthProvider) GetUser(ctx context.Context, uid string) (*Identity, error) {
	record, err := p.client.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, fmt.Errorf("%w: user %s", ErrInvalidCredential, uid)
		}
		return nil, fmt.Errorf("error fetching firebase user: %w", err)
	}
	role, _ := record.CustomClaims["role"].(string)
	return &Identity{UserID: record.UID, Email: record.Email, Role: roleOrDefault(role)}, nil
}

func (p *FirebaseAuthProvider) DeleteUser(ctx context.Context, uid string) error {
	if err := p.client.DeleteUser(ctx, uid); err != nil && !auth.IsUserNotFound(err) {
		return fmt.Errorf("error deleting firebase user: %w", err)
	}
	return nil
}
