package types

import "time"

const (
	StatusActive               = "active"
	StatusConfirmationRequired = "confirmation_required"

	TokenTypeBearer = "Bearer"
)

type Profile struct {
	ID              uint64     `json:"id"`
	Email           string     `json:"email"`
	FullName        string     `json:"full_name"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Role            string     `json:"role"`
	Permissions     []string   `json:"permissions"`
	IsVerified      bool       `json:"is_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	NeedsOnboarding bool       `json:"needs_onboarding"`
}

type AuthSession struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         *Profile `json:"user"`
}

type LoginResponse = AuthSession

type RefreshTokenResponse = AuthSession

// RegisterResponse carries a full session only when the account is active
// at creation.
type RegisterResponse struct {
	Status         string `json:"status"`
	Email          string `json:"email"`
	Message        string `json:"message"`
	EmailSent      *bool  `json:"email_sent,omitempty"`
	ExpiresInHours int    `json:"expires_in_hours,omitempty"`
	*AuthSession
}

type ConfirmEmailResponse struct {
	Message string   `json:"message"`
	User    *Profile `json:"user"`
}

type ResendConfirmationResponse struct {
	Message        string `json:"message"`
	Email          string `json:"email"`
	ExpiresInHours int    `json:"expires_in_hours"`
}

type ValidateTokenResponse struct {
	Valid           bool       `json:"valid"`
	UserID          uint64     `json:"user_id,omitempty"`
	Email           string     `json:"email,omitempty"`
	Role            string     `json:"role,omitempty"`
	IsVerified      bool       `json:"is_verified,omitempty"`
	NeedsOnboarding bool       `json:"needs_onboarding,omitempty"`
	Permissions     []string   `json:"permissions,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

type PermissionsResponse struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}
