package entity

import (
	"database/sql"
	"strings"
	"time"
)

type User struct {
	ID                     uint64
	Email                  string
	CanonicalEmail         string
	PasswordHash           string
	FirstName              string
	LastName               string
	Role                   string
	IsActive               bool
	IsVerified             bool
	VerificationCode       sql.NullString
	VerificationExpiresAt  sql.NullTime
	LastVerificationSentAt sql.NullTime
	EmailVerifiedAt        sql.NullTime
	NeedsOnboarding        sql.NullBool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// VerificationSentAt is the resend cooldown clock. Rows created before the
// dedicated column existed fall back to updated_at.
func (u *User) VerificationSentAt() time.Time {
	if u.LastVerificationSentAt.Valid {
		return u.LastVerificationSentAt.Time
	}
	return u.UpdatedAt
}
