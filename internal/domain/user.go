package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Preferences UserPreferences `json:"preferences"`
}

type UserPreferences struct {
	Notifications bool   `json:"notifications"`
	Language      string `json:"language"`
	Theme         string `json:"theme"`
}

// DefaultPreferences are given to every new user.
func DefaultPreferences() UserPreferences {
	return UserPreferences{Notifications: true, Language: "es", Theme: "system"}
}

// Apply overwrites the preferences present in dto.
func (p UserPreferences) Apply(dto UpdatePreferencesDTO) UserPreferences {
	if dto.Notifications != nil {
		p.Notifications = *dto.Notifications
	}
	if dto.Language != nil {
		p.Language = *dto.Language
	}
	if dto.Theme != nil {
		p.Theme = *dto.Theme
	}
	return p
}

func (u User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}

type Vehicle struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	PlateNumber string    `json:"plate_number"`
	Brand       string    `json:"brand,omitempty"`
	Model       string    `json:"model,omitempty"`
	Color       string    `json:"color,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Credential is only used by the local token provider; Firebase keeps its own.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         Role
}

type RegisterUserDTO struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6,max=100"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Phone     string `json:"phone,omitempty"`
}

type LoginUserDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateUserDTO struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

type UpdatePreferencesDTO struct {
	Notifications *bool   `json:"notifications"`
	Language      *string `json:"language" binding:"omitempty,min=2,max=10"`
	Theme         *string `json:"theme" binding:"omitempty,oneof=light dark system"`
}

type AddVehicleDTO struct {
	PlateNumber string `json:"plate_number" binding:"required,plate"`
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	Color       string `json:"color"`
}

type AuthResponseDTO struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// UserProfile bundles a user with the vehicles and the latest sessions.
type UserProfile struct {
	User          User             `json:"user"`
	Vehicles      []Vehicle        `json:"vehicles"`
	ActiveSession *ParkingSession  `json:"active_session"`
	RecentHistory []ParkingSession `json:"recent_history"`
}
