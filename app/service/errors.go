package service

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrAccountInactive         = errors.New("account is inactive")
	ErrEmailNotVerified        = errors.New("email address is not verified")
	ErrUserExists              = errors.New("user already exists")
	ErrUserNotFound            = errors.New("user not found")
	ErrWeakPassword            = errors.New("password does not meet policy requirements")
	ErrInvalidOrUsedCode       = errors.New("invalid or already used verification code")
	ErrCodeExpired             = errors.New("verification code has expired")
	ErrAccountAlreadyVerified  = errors.New("account is already verified")
	ErrRateLimited             = errors.New("too many requests")
	ErrTooManyConfirmAttempts  = errors.New("too many confirmation attempts")
	ErrInvalidToken            = errors.New("invalid token")
	ErrTokenExpired            = errors.New("token has expired")
	ErrMailDeliveryFailed      = errors.New("failed to deliver email")
	ErrCodeGenerationExhausted = errors.New("could not allocate a unique verification code")
	ErrUnknownRole             = errors.New("unknown role")
	ErrInternal                = errors.New("internal error")
)

// RateLimitError reports how long the caller must wait. It matches
// ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting a new code", e.RetryAfterSeconds())
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds up and is never below 1.
func (e *RateLimitError) RetryAfterSeconds() int64 {
	secs := int64(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// internal flattens the cause to text so driver errors never unwrap past the
// service.
func internal(err error) error {
	return fmt.Errorf("%w: %v", ErrInternal, err)
}
