package types

import (
	"strings"

	"github.com/labstack/echo/v4"
)

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,max=128"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

func NewRegisterRequestFromContext(ctx echo.Context) (*RegisterRequest, error) {
	var body RegisterRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *RegisterRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	return validateStruct(r)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *LoginRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return validateStruct(r)
}

type ConfirmEmailRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
	// ClientIP keys the confirm-attempt limiter; set by the transport.
	ClientIP string `json:"-"`
}

func NewConfirmEmailRequestFromContext(ctx echo.Context) (*ConfirmEmailRequest, error) {
	var body ConfirmEmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.ClientIP = ctx.RealIP()

	return &body, nil
}

func (r *ConfirmEmailRequest) Validate() error {
	r.Code = strings.TrimSpace(r.Code)
	return validateStruct(r)
}

type ResendConfirmationRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

func NewResendConfirmationRequestFromContext(ctx echo.Context) (*ResendConfirmationRequest, error) {
	var body ResendConfirmationRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ResendConfirmationRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return validateStruct(r)
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func NewRefreshTokenRequestFromContext(ctx echo.Context) (*RefreshTokenRequest, error) {
	var body RefreshTokenRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *RefreshTokenRequest) Validate() error {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
	return validateStruct(r)
}

type ValidateTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// NewValidateTokenRequestFromContext takes the token from the body, falling
// back to the bearer Authorization header.
func NewValidateTokenRequestFromContext(ctx echo.Context) (*ValidateTokenRequest, error) {
	var body ValidateTokenRequest
	if ctx.Request().ContentLength != 0 {
		if err := ctx.Bind(&body); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(body.Token) == "" {
		body.Token = BearerToken(ctx.Request().Header.Get(echo.HeaderAuthorization))
	}

	return &body, nil
}

func (r *ValidateTokenRequest) Validate() error {
	r.Token = strings.TrimSpace(r.Token)
	return validateStruct(r)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// value. It returns "" when the scheme is missing or different.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
