package repository

import (
	"context"
	"database/sql"
)

// OnboardingRepository reads the employee_onboarding table owned by the
// onboarding service. It never writes.
type OnboardingRepository struct {
	db DBTX
}

func NewOnboardingRepository(db *sql.DB) *OnboardingRepository {
	return &OnboardingRepository{db: db}
}

func (r *OnboardingRepository) ExistsForUser(ctx context.Context, userID uint64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM employee_onboarding WHERE user_id = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
