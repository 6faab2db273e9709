package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/app/entity"
	"github.com/vibast-solutions/ms-go-hr-auth/app/mail"
	"github.com/vibast-solutions/ms-go-hr-auth/app/metrics"
	"github.com/vibast-solutions/ms-go-hr-auth/app/ratelimit"
	"github.com/vibast-solutions/ms-go-hr-auth/app/rbac"
	"github.com/vibast-solutions/ms-go-hr-auth/app/repository"
	"github.com/vibast-solutions/ms-go-hr-auth/app/token"
	"github.com/vibast-solutions/ms-go-hr-auth/app/types"
	"github.com/vibast-solutions/ms-go-hr-auth/config"

	"github.com/sirupsen/logrus"
)

const (
	maxCodeAttempts = 10
	mailSendTimeout = 15 * time.Second
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.User, error)
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	FindByVerificationCode(ctx context.Context, code string) (*entity.User, error)
	ReplaceVerificationCode(ctx context.Context, user *entity.User, previousSentAt sql.NullTime) error
	ActivateByVerificationCode(ctx context.Context, id uint64, code string, now time.Time) (*entity.User, error)
}

type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) bool
}

type tokenCodec interface {
	Issue(subject token.Subject, typ token.Type, ttl time.Duration) (string, time.Time, error)
	Verify(tokenString string, expected token.Type) (*token.Claims, error)
}

type codeGenerator interface {
	Generate() (string, error)
	ExpiresAt(now time.Time) time.Time
}

type onboardingChecker interface {
	ExistsForUser(ctx context.Context, userID uint64) (bool, error)
}

type confirmLimiter interface {
	Allow(ctx context.Context, client string) error
}

type UserAuthService interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*types.RegisterResponse, error)
	Login(ctx context.Context, req *types.LoginRequest) (*types.LoginResponse, error)
	ConfirmEmail(ctx context.Context, req *types.ConfirmEmailRequest) (*types.ConfirmEmailResponse, error)
	ResendConfirmation(ctx context.Context, req *types.ResendConfirmationRequest) (*types.ResendConfirmationResponse, error)
	RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*types.RefreshTokenResponse, error)
	ValidateAccessToken(tokenString string) (*token.Claims, error)
	Me(ctx context.Context, userID uint64) (*types.Profile, error)
}

type UserAuthServiceOption func(*userAuthService)

type userAuthService struct {
	userRepo   userRepository
	hasher     passwordHasher
	codec      tokenCodec
	codes      codeGenerator
	mailer     mail.Sender
	cfg        *config.Config
	onboarding onboardingChecker
	limiter    confirmLimiter
	now        func() time.Time
}

func NewUserAuthService(
	userRepo userRepository,
	hasher passwordHasher,
	codec tokenCodec,
	codes codeGenerator,
	mailer mail.Sender,
	cfg *config.Config,
	opts ...UserAuthServiceOption,
) UserAuthService {
	svc := &userAuthService{
		userRepo: userRepo,
		hasher:   hasher,
		codec:    codec,
		codes:    codes,
		mailer:   mailer,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithOnboardingChecker supplies the downstream signal used when an account
// carries no needs_onboarding flag of its own.
func WithOnboardingChecker(checker onboardingChecker) UserAuthServiceOption {
	return func(s *userAuthService) {
		if checker != nil {
			s.onboarding = checker
		}
	}
}

func WithConfirmLimiter(limiter confirmLimiter) UserAuthServiceOption {
	return func(s *userAuthService) {
		if limiter != nil {
			s.limiter = limiter
		}
	}
}

func WithClock(now func() time.Time) UserAuthServiceOption {
	return func(s *userAuthService) {
		if now != nil {
			s.now = now
		}
	}
}

func (s *userAuthService) Register(ctx context.Context, req *types.RegisterRequest) (res *types.RegisterResponse, err error) {
	defer func() { metrics.RecordAuth("register", err) }()

	canonicalEmail := CanonicalizeEmail(req.Email)

	existing, err := s.userRepo.FindByCanonicalEmail(ctx, canonicalEmail)
	if err != nil {
		return nil, internal(err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	if err = s.cfg.Password.Policy.Validate(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, internal(err)
	}

	now := s.now()
	user := &entity.User{
		Email:           req.Email,
		CanonicalEmail:  canonicalEmail,
		PasswordHash:    passwordHash,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Role:            rbac.RoleUser.String(),
		NeedsOnboarding: sql.NullBool{Bool: true, Valid: true},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if !s.cfg.Auth.RequireEmailConfirmation {
		user.IsActive = true
		user.IsVerified = true
		user.EmailVerifiedAt = sql.NullTime{Time: now, Valid: true}
		if err = s.createUser(ctx, user); err != nil {
			return nil, err
		}

		session, err := s.newSession(ctx, user)
		if err != nil {
			return nil, err
		}
		return &types.RegisterResponse{
			Status:      types.StatusActive,
			Email:       user.Email,
			Message:     "registration successful",
			AuthSession: session,
		}, nil
	}

	expiresAt := s.codes.ExpiresAt(now)
	code, err := s.allocateCode(ctx, func(code string) error {
		user.VerificationCode = sql.NullString{String: code, Valid: true}
		user.VerificationExpiresAt = sql.NullTime{Time: expiresAt, Valid: true}
		user.LastVerificationSentAt = sql.NullTime{Time: now, Valid: true}
		return s.createUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	emailSent := true
	if err = s.sendConfirmation(ctx, user, code, expiresAt.Sub(now)); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Confirmation email not sent during registration")
		emailSent = false
	}

	return &types.RegisterResponse{
		Status:         types.StatusConfirmationRequired,
		Email:          user.Email,
		Message:        "registration successful, please confirm your email address",
		EmailSent:      &emailSent,
		ExpiresInHours: hoursOf(expiresAt.Sub(now)),
	}, nil
}

func (s *userAuthService) Login(ctx context.Context, req *types.LoginRequest) (res *types.LoginResponse, err error) {
	defer func() { metrics.RecordAuth("login", err) }()

	user, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(req.Email))
	if err != nil {
		return nil, internal(err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	if s.cfg.Auth.RequireEmailConfirmation && !user.IsVerified {
		return nil, ErrEmailNotVerified
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.newSession(ctx, user)
}

func (s *userAuthService) ConfirmEmail(ctx context.Context, req *types.ConfirmEmailRequest) (res *types.ConfirmEmailResponse, err error) {
	defer func() { metrics.RecordAuth("confirm_email", err) }()

	if s.limiter != nil {
		if limitErr := s.limiter.Allow(ctx, req.ClientIP); limitErr != nil {
			if errors.Is(limitErr, ratelimit.ErrTooManyAttempts) {
				return nil, ErrTooManyConfirmAttempts
			}
			logrus.WithError(limitErr).Warn("Confirm attempt limiter unavailable, allowing request")
		}
	}

	user, err := s.userRepo.FindByVerificationCode(ctx, req.Code)
	if err != nil {
		return nil, internal(err)
	}
	if user == nil {
		return nil, ErrInvalidOrUsedCode
	}

	now := s.now()
	if !user.VerificationExpiresAt.Valid || now.After(user.VerificationExpiresAt.Time) {
		return nil, ErrCodeExpired
	}
	if user.IsVerified {
		return nil, ErrAccountAlreadyVerified
	}

	activated, err := s.userRepo.ActivateByVerificationCode(ctx, user.ID, req.Code, now)
	if errors.Is(err, repository.ErrStaleWrite) {
		return nil, ErrInvalidOrUsedCode
	}
	if err != nil {
		return nil, internal(err)
	}

	return &types.ConfirmEmailResponse{
		Message: "email confirmed successfully",
		User:    s.profile(activated, s.needsOnboarding(ctx, activated)),
	}, nil
}

func (s *userAuthService) ResendConfirmation(ctx context.Context, req *types.ResendConfirmationRequest) (res *types.ResendConfirmationResponse, err error) {
	defer func() { metrics.RecordAuth("resend_confirmation", err) }()

	user, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(req.Email))
	if err != nil {
		return nil, internal(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.IsVerified {
		return nil, ErrAccountAlreadyVerified
	}

	now := s.now()
	if elapsed := now.Sub(user.VerificationSentAt()); elapsed < s.cfg.Auth.ResendCooldown {
		return nil, &RateLimitError{RetryAfter: s.cfg.Auth.ResendCooldown - elapsed}
	}

	previousSentAt := user.LastVerificationSentAt
	expiresAt := s.codes.ExpiresAt(now)
	code, err := s.allocateCode(ctx, func(code string) error {
		user.VerificationCode = sql.NullString{String: code, Valid: true}
		user.VerificationExpiresAt = sql.NullTime{Time: expiresAt, Valid: true}
		user.LastVerificationSentAt = sql.NullTime{Time: now, Valid: true}
		user.UpdatedAt = now

		writeErr := s.userRepo.ReplaceVerificationCode(ctx, user, previousSentAt)
		switch {
		case writeErr == nil, errors.Is(writeErr, repository.ErrDuplicateVerificationCode):
			return writeErr
		case errors.Is(writeErr, repository.ErrStaleWrite):
			// A concurrent resend won the compare-and-swap.
			return &RateLimitError{RetryAfter: s.cfg.Auth.ResendCooldown}
		default:
			return internal(writeErr)
		}
	})
	if err != nil {
		return nil, err
	}

	if err = s.sendConfirmation(ctx, user, code, expiresAt.Sub(now)); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Confirmation email resend failed")
		return nil, fmt.Errorf("%w: %v", ErrMailDeliveryFailed, err)
	}

	return &types.ResendConfirmationResponse{
		Message:        "confirmation email sent",
		Email:          user.Email,
		ExpiresInHours: hoursOf(expiresAt.Sub(now)),
	}, nil
}

func (s *userAuthService) RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (res *types.RefreshTokenResponse, err error) {
	defer func() { metrics.RecordAuth("refresh_token", err) }()

	claims, err := s.codec.Verify(req.RefreshToken, token.TypeRefresh)
	if err != nil {
		return nil, tokenError(err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, internal(err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidToken
	}

	return s.newSession(ctx, user)
}

func (s *userAuthService) ValidateAccessToken(tokenString string) (*token.Claims, error) {
	claims, err := s.codec.Verify(tokenString, token.TypeAccess)
	if err != nil {
		return nil, tokenError(err)
	}
	return claims, nil
}

func (s *userAuthService) Me(ctx context.Context, userID uint64) (*types.Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, internal(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	return s.profile(user, s.needsOnboarding(ctx, user)), nil
}

// allocateCode draws codes until one is free and write stores it. A code
// held by another account, found on lookup or rejected by the unique index
// on write, counts as a collision. Other write errors are returned as is.
func (s *userAuthService) allocateCode(ctx context.Context, write func(code string) error) (string, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return "", internal(err)
		}

		holder, err := s.userRepo.FindByVerificationCode(ctx, code)
		if err != nil {
			return "", internal(err)
		}
		if holder != nil {
			metrics.VerificationCodeCollisions.Inc()
			continue
		}

		err = write(code)
		if errors.Is(err, repository.ErrDuplicateVerificationCode) {
			metrics.VerificationCodeCollisions.Inc()
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}

	logrus.WithField("attempts", maxCodeAttempts).Error("Verification code space exhausted")
	return "", ErrCodeGenerationExhausted
}

func (s *userAuthService) createUser(ctx context.Context, user *entity.User) error {
	err := s.userRepo.Create(ctx, user)
	switch {
	case err == nil, errors.Is(err, repository.ErrDuplicateVerificationCode):
		return err
	case errors.Is(err, repository.ErrDuplicateEmail):
		return ErrUserExists
	default:
		return internal(err)
	}
}

func (s *userAuthService) sendConfirmation(ctx context.Context, user *entity.User, code string, ttl time.Duration) error {
	msg, err := mail.ConfirmationMessage(user.Email, mail.ConfirmationData{
		AppName:   s.cfg.Mail.AppName,
		FirstName: user.FirstName,
		Code:      code,
		ExpiresIn: ttl,
	})
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, mailSendTimeout)
	defer cancel()

	if err = s.mailer.Send(sendCtx, msg); err != nil {
		metrics.ConfirmationEmails.WithLabelValues(metrics.OutcomeFailure).Inc()
		return err
	}
	metrics.ConfirmationEmails.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return nil
}

func (s *userAuthService) newSession(ctx context.Context, user *entity.User) (*types.AuthSession, error) {
	needsOnboarding := s.needsOnboarding(ctx, user)
	subject := token.Subject{
		UserID:          user.ID,
		Email:           user.Email,
		Role:            rbac.ParseRole(user.Role).String(),
		IsVerified:      user.IsVerified,
		NeedsOnboarding: needsOnboarding,
	}

	accessToken, _, err := s.codec.Issue(subject, token.TypeAccess, s.cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, internal(err)
	}
	refreshToken, _, err := s.codec.Issue(subject, token.TypeRefresh, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return nil, internal(err)
	}

	return &types.AuthSession{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    types.TokenTypeBearer,
		ExpiresIn:    int64(s.cfg.JWT.AccessTokenTTL.Seconds()),
		User:         s.profile(user, needsOnboarding),
	}, nil
}

// needsOnboarding prefers the account flag, then the onboarding lookup, and
// defaults to true when neither answers.
func (s *userAuthService) needsOnboarding(ctx context.Context, user *entity.User) bool {
	if user.NeedsOnboarding.Valid {
		return user.NeedsOnboarding.Bool
	}
	if s.onboarding == nil {
		return true
	}

	exists, err := s.onboarding.ExistsForUser(ctx, user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Onboarding lookup failed, assuming onboarding is needed")
		return true
	}
	return !exists
}

func (s *userAuthService) profile(user *entity.User, needsOnboarding bool) *types.Profile {
	role := rbac.ParseRole(user.Role)
	profile := &types.Profile{
		ID:              user.ID,
		Email:           user.Email,
		FullName:        user.FullName(),
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		Role:            role.String(),
		Permissions:     rbac.Strings(role.Permissions()),
		IsVerified:      user.IsVerified,
		NeedsOnboarding: needsOnboarding,
	}
	if user.EmailVerifiedAt.Valid {
		verifiedAt := user.EmailVerifiedAt.Time
		profile.EmailVerifiedAt = &verifiedAt
	}
	return profile
}

func tokenError(err error) error {
	if errors.Is(err, token.ErrExpiredToken) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}

func hoursOf(d time.Duration) int {
	return int(d.Round(time.Hour) / time.Hour)
}
