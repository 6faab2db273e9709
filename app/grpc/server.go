package grpc

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/vibast-solutions/ms-go-hr-auth/app/rbac"
	"github.com/vibast-solutions/ms-go-hr-auth/app/service"
	"github.com/vibast-solutions/ms-go-hr-auth/app/types"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type AuthServer struct {
	userAuthService service.UserAuthService
}

func NewAuthServer(userAuthService service.UserAuthService) *AuthServer {
	return &AuthServer{userAuthService: userAuthService}
}

func (s *AuthServer) Register(ctx context.Context, req *types.RegisterRequest) (*types.RegisterResponse, error) {
	if err := req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Register validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	logrus.WithField("email", req.Email).Info("Register request received (grpc)")
	res, err := s.userAuthService.Register(ctx, req)
	if err != nil {
		return nil, toStatus(ctx, "Register", err)
	}

	logrus.WithFields(logrus.Fields{
		"email":  res.Email,
		"status": res.Status,
	}).Info("User registered (grpc)")
	return res, nil
}

func (s *AuthServer) Login(ctx context.Context, req *types.LoginRequest) (*types.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Login validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	logrus.WithField("email", req.Email).Info("Login request received (grpc)")
	res, err := s.userAuthService.Login(ctx, req)
	if err != nil {
		return nil, toStatus(ctx, "Login", err)
	}

	logrus.WithField("user_id", res.User.ID).Info("Login successful (grpc)")
	return res, nil
}

func (s *AuthServer) ConfirmEmail(ctx context.Context, req *types.ConfirmEmailRequest) (*types.ConfirmEmailResponse, error) {
	if err := req.Validate(); err != nil {
		logrus.Debug("Confirm email validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req.ClientIP = peerIP(ctx)

	logrus.WithField("client_ip", req.ClientIP).Info("Confirm email request received (grpc)")
	res, err := s.userAuthService.ConfirmEmail(ctx, req)
	if err != nil {
		return nil, toStatus(ctx, "ConfirmEmail", err)
	}

	logrus.WithField("user_id", res.User.ID).Info("Email confirmed (grpc)")
	return res, nil
}

func (s *AuthServer) ResendConfirmation(ctx context.Context, req *types.ResendConfirmationRequest) (*types.ResendConfirmationResponse, error) {
	if err := req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Resend confirmation validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	logrus.WithField("email", req.Email).Info("Resend confirmation request received (grpc)")
	res, err := s.userAuthService.ResendConfirmation(ctx, req)
	if err != nil {
		// A resend for a verified account is a state conflict, not bad input.
		if errors.Is(err, service.ErrAccountAlreadyVerified) {
			logrus.WithField("email", req.Email).Warn("ResendConfirmation rejected (grpc)")
			return nil, status.Error(codes.FailedPrecondition, "account is already verified")
		}
		return nil, toStatus(ctx, "ResendConfirmation", err)
	}

	logrus.WithField("email", req.Email).Info("Confirmation email resent (grpc)")
	return res, nil
}

func (s *AuthServer) RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*types.RefreshTokenResponse, error) {
	if err := req.Validate(); err != nil {
		logrus.Debug("Refresh token validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.userAuthService.RefreshToken(ctx, req)
	if err != nil {
		return nil, toStatus(ctx, "RefreshToken", err)
	}

	logrus.WithField("user_id", res.User.ID).Info("Refresh token successful (grpc)")
	return res, nil
}

func (s *AuthServer) ValidateToken(ctx context.Context, req *types.ValidateTokenRequest) (*types.ValidateTokenResponse, error) {
	if req.Token == "" {
		req.Token = types.BearerToken(incomingMetadata(ctx, "authorization"))
	}
	if err := req.Validate(); err != nil {
		logrus.Debug("Validate token validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	claims, err := s.userAuthService.ValidateAccessToken(req.Token)
	if err != nil {
		logrus.WithError(err).Debug("Validate token failed (grpc)")
		return &types.ValidateTokenResponse{Valid: false}, nil
	}

	userID, _ := claims.UserID()
	res := &types.ValidateTokenResponse{
		Valid:           true,
		UserID:          userID,
		Email:           claims.Email,
		Role:            claims.Role,
		IsVerified:      claims.IsVerified,
		NeedsOnboarding: claims.NeedsOnboarding,
		Permissions:     rbac.Strings(rbac.PermissionsFor(claims.Role)),
	}
	if claims.ExpiresAt != nil {
		expiresAt := claims.ExpiresAt.Time
		res.ExpiresAt = &expiresAt
	}
	return res, nil
}

// Me relies on BearerUnaryInterceptor guarding MethodMe.
func (s *AuthServer) Me(ctx context.Context, _ *MeRequest) (*types.Profile, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}

	profile, err := s.userAuthService.Me(ctx, userID)
	if err != nil {
		return nil, toStatus(ctx, "Me", err)
	}
	return profile, nil
}

// toStatus maps service errors to gRPC codes. Rate limits also carry a
// retry-after trailer in seconds.
func toStatus(ctx context.Context, method string, err error) error {
	entry := logrus.WithField("method", method)

	var limited *service.RateLimitError
	switch {
	case errors.As(err, &limited):
		seconds := strconv.FormatInt(limited.RetryAfterSeconds(), 10)
		_ = gogrpc.SetTrailer(ctx, metadata.Pairs("retry-after", seconds))
		entry.WithField("retry_after", seconds).Warn("Request rate limited (grpc)")
		return status.Error(codes.ResourceExhausted, limited.Error())
	case errors.Is(err, service.ErrTooManyConfirmAttempts):
		entry.Warn("Too many confirmation attempts (grpc)")
		return status.Error(codes.ResourceExhausted, "too many confirmation attempts")
	case errors.Is(err, service.ErrInvalidCredentials):
		entry.Warn("Invalid credentials (grpc)")
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrTokenExpired):
		entry.Warn("Invalid or expired token (grpc)")
		return status.Error(codes.Unauthenticated, "invalid or expired token")
	case errors.Is(err, service.ErrAccountInactive):
		entry.Warn("Account inactive (grpc)")
		return status.Error(codes.PermissionDenied, "account is inactive")
	case errors.Is(err, service.ErrEmailNotVerified):
		entry.Warn("Email not verified (grpc)")
		return status.Error(codes.PermissionDenied, "email address is not verified")
	case errors.Is(err, service.ErrUserExists):
		entry.Warn("User already exists (grpc)")
		return status.Error(codes.AlreadyExists, "user already exists")
	case errors.Is(err, service.ErrUserNotFound):
		entry.Warn("User not found (grpc)")
		return status.Error(codes.NotFound, "user not found")
	case errors.Is(err, service.ErrWeakPassword):
		entry.Warn("Weak password (grpc)")
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrInvalidOrUsedCode):
		entry.Warn("Invalid or used code (grpc)")
		return status.Error(codes.InvalidArgument, "invalid or already used verification code")
	case errors.Is(err, service.ErrCodeExpired):
		entry.Warn("Code expired (grpc)")
		return status.Error(codes.InvalidArgument, "verification code has expired")
	case errors.Is(err, service.ErrAccountAlreadyVerified):
		entry.Warn("Account already verified (grpc)")
		return status.Error(codes.InvalidArgument, "account is already verified")
	case errors.Is(err, service.ErrMailDeliveryFailed):
		entry.WithError(err).Error("Mail delivery failed (grpc)")
		return status.Error(codes.Unavailable, "failed to deliver confirmation email")
	}

	entry.WithError(err).Error("Request failed (grpc)")
	return status.Error(codes.Internal, "internal server error")
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}
