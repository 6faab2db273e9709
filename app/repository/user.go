package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/app/entity"
)

const selectUser = `
		SELECT id, email, canonical_email, password_hash, first_name, last_name, role, is_active, is_verified,
		       verification_code, verification_expires_at, last_verification_sent_at, email_verified_at,
		       needs_onboarding, created_at, updated_at
		FROM users`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (
			email, canonical_email, password_hash, first_name, last_name, role, is_active, is_verified,
			verification_code, verification_expires_at, last_verification_sent_at, email_verified_at,
			needs_onboarding, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.CanonicalEmail,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.IsActive,
		user.IsVerified,
		user.VerificationCode,
		user.VerificationExpiresAt,
		user.LastVerificationSentAt,
		user.EmailVerifiedAt,
		user.NeedsOnboarding,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return translateDuplicate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.User, error) {
	return findUser(ctx, r.db, selectUser+` WHERE canonical_email = ?`, canonicalEmail)
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*entity.User, error) {
	return findUser(ctx, r.db, selectUser+` WHERE id = ?`, id)
}

func (r *UserRepository) FindByVerificationCode(ctx context.Context, code string) (*entity.User, error) {
	return findUser(ctx, r.db, selectUser+` WHERE verification_code = ?`, code)
}

// ReplaceVerificationCode stores a new code for an unverified account only if
// last_verification_sent_at still holds previousSentAt. A lost race returns
// ErrStaleWrite; a code held by another account returns
// ErrDuplicateVerificationCode.
func (r *UserRepository) ReplaceVerificationCode(ctx context.Context, user *entity.User, previousSentAt sql.NullTime) error {
	query := `
		UPDATE users SET
			verification_code = ?,
			verification_expires_at = ?,
			last_verification_sent_at = ?,
			updated_at = ?
		WHERE id = ? AND is_verified = 0 AND last_verification_sent_at <=> ?
	`
	result, err := r.db.ExecContext(ctx, query,
		user.VerificationCode,
		user.VerificationExpiresAt,
		user.LastVerificationSentAt,
		user.UpdatedAt,
		user.ID,
		previousSentAt,
	)
	if err != nil {
		return translateDuplicate(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStaleWrite
	}
	return nil
}

// ActivateByVerificationCode locks the account row, re-checks that it still
// holds code and is unverified, then activates it and clears the code. It
// returns ErrStaleWrite when the code was consumed or replaced concurrently.
func (r *UserRepository) ActivateByVerificationCode(ctx context.Context, id uint64, code string, now time.Time) (*entity.User, error) {
	var activated *entity.User
	err := withTx(ctx, r.db, func(tx DBTX) error {
		user, err := findUser(ctx, tx, selectUser+` WHERE id = ? FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if user == nil || user.IsVerified || !user.VerificationCode.Valid || user.VerificationCode.String != code {
			return ErrStaleWrite
		}

		query := `
			UPDATE users SET
				is_active = 1,
				is_verified = 1,
				verification_code = NULL,
				verification_expires_at = NULL,
				email_verified_at = ?,
				updated_at = ?
			WHERE id = ?
		`
		if _, err = tx.ExecContext(ctx, query, now, now, id); err != nil {
			return err
		}

		user.IsActive = true
		user.IsVerified = true
		user.VerificationCode = sql.NullString{}
		user.VerificationExpiresAt = sql.NullTime{}
		user.EmailVerifiedAt = sql.NullTime{Time: now, Valid: true}
		user.UpdatedAt = now
		activated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

func (r *UserRepository) SetActive(ctx context.Context, id uint64, active bool, now time.Time) error {
	query := `UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, active, now, id)
	return err
}

func (r *UserRepository) SetRole(ctx context.Context, id uint64, role string, now time.Time) error {
	query := `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, role, now, id)
	return err
}

func findUser(ctx context.Context, db DBTX, query string, args ...any) (*entity.User, error) {
	user := &entity.User{}
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&user.CanonicalEmail,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.IsActive,
		&user.IsVerified,
		&user.VerificationCode,
		&user.VerificationExpiresAt,
		&user.LastVerificationSentAt,
		&user.EmailVerifiedAt,
		&user.NeedsOnboarding,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
