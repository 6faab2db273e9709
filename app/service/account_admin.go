package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/app/entity"
	"github.com/vibast-solutions/ms-go-hr-auth/app/rbac"

	"github.com/sirupsen/logrus"
)

type accountRepository interface {
	FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.User, error)
	SetActive(ctx context.Context, id uint64, active bool, now time.Time) error
	SetRole(ctx context.Context, id uint64, role string, now time.Time) error
}

// AccountAdminService backs operator actions. Deactivation blocks future
// logins and refreshes; access tokens already issued stay valid until they
// expire. Role changes reach tokens on the next refresh.
type AccountAdminService interface {
	Deactivate(ctx context.Context, email string) (*entity.User, error)
	Reactivate(ctx context.Context, email string) (*entity.User, error)
	SetRole(ctx context.Context, email, role string) (*entity.User, error)
}

type accountAdminService struct {
	repo accountRepository
	now  func() time.Time
}

func NewAccountAdminService(repo accountRepository) AccountAdminService {
	return &accountAdminService{repo: repo, now: time.Now}
}

func (s *accountAdminService) Deactivate(ctx context.Context, email string) (*entity.User, error) {
	return s.setActive(ctx, email, false)
}

// Reactivate only applies to verified accounts; a pending account is
// activated by confirming its email.
func (s *accountAdminService) Reactivate(ctx context.Context, email string) (*entity.User, error) {
	return s.setActive(ctx, email, true)
}

func (s *accountAdminService) SetRole(ctx context.Context, email, role string) (*entity.User, error) {
	if !rbac.IsKnown(role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	user, err := s.find(ctx, email)
	if err != nil {
		return nil, err
	}

	normalized := rbac.ParseRole(role).String()
	now := s.now()
	if err = s.repo.SetRole(ctx, user.ID, normalized, now); err != nil {
		return nil, internal(err)
	}
	user.Role = normalized
	user.UpdatedAt = now

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": normalized}).Info("Account role changed")
	return user, nil
}

func (s *accountAdminService) setActive(ctx context.Context, email string, active bool) (*entity.User, error) {
	user, err := s.find(ctx, email)
	if err != nil {
		return nil, err
	}
	if active && !user.IsVerified {
		return nil, ErrEmailNotVerified
	}

	now := s.now()
	if err = s.repo.SetActive(ctx, user.ID, active, now); err != nil {
		return nil, internal(err)
	}
	user.IsActive = active
	user.UpdatedAt = now

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "is_active": active}).Info("Account activation changed")
	return user, nil
}

func (s *accountAdminService) find(ctx context.Context, email string) (*entity.User, error) {
	user, err := s.repo.FindByCanonicalEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		return nil, internal(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
