package grpc_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	authgrpc "github.com/vibast-solutions/ms-go-hr-auth/app/grpc"
	"github.com/vibast-solutions/ms-go-hr-auth/app/service"
	"github.com/vibast-solutions/ms-go-hr-auth/app/token"
	"github.com/vibast-solutions/ms-go-hr-auth/app/types"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type stubUserAuthService struct {
	codec *token.Codec
	err   error

	lastConfirm *types.ConfirmEmailRequest
	lastMeID    uint64
}

func (s *stubUserAuthService) Register(_ context.Context, req *types.RegisterRequest) (*types.RegisterResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	sent := true
	return &types.RegisterResponse{Status: types.StatusConfirmationRequired, Email: req.Email, EmailSent: &sent, ExpiresInHours: 24}, nil
}

func (s *stubUserAuthService) Login(context.Context, *types.LoginRequest) (*types.LoginResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.LoginResponse{AccessToken: "a", RefreshToken: "r", TokenType: types.TokenTypeBearer, User: &types.Profile{ID: 7}}, nil
}

func (s *stubUserAuthService) ConfirmEmail(_ context.Context, req *types.ConfirmEmailRequest) (*types.ConfirmEmailResponse, error) {
	s.lastConfirm = req
	if s.err != nil {
		return nil, s.err
	}
	return &types.ConfirmEmailResponse{Message: "ok", User: &types.Profile{ID: 7, IsVerified: true}}, nil
}

func (s *stubUserAuthService) ResendConfirmation(context.Context, *types.ResendConfirmationRequest) (*types.ResendConfirmationResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.ResendConfirmationResponse{Message: "sent", ExpiresInHours: 24}, nil
}

func (s *stubUserAuthService) RefreshToken(context.Context, *types.RefreshTokenRequest) (*types.RefreshTokenResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.RefreshTokenResponse{AccessToken: "a2", User: &types.Profile{ID: 7}}, nil
}

func (s *stubUserAuthService) ValidateAccessToken(tokenString string) (*token.Claims, error) {
	claims, err := s.codec.Verify(tokenString, token.TypeAccess)
	if err != nil {
		return nil, service.ErrInvalidToken
	}
	return claims, nil
}

func (s *stubUserAuthService) Me(_ context.Context, userID uint64) (*types.Profile, error) {
	s.lastMeID = userID
	if s.err != nil {
		return nil, s.err
	}
	return &types.Profile{ID: userID, Email: "ana@example.com"}, nil
}

func newClient(t *testing.T, stub *stubUserAuthService) authgrpc.AuthServiceClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := gogrpc.NewServer(gogrpc.ChainUnaryInterceptor(
		authgrpc.LoggingUnaryInterceptor(),
		authgrpc.BearerUnaryInterceptor(stub, authgrpc.MethodMe),
	))
	authgrpc.RegisterAuthServiceServer(srv, authgrpc.NewAuthServer(stub))
	go func() { _ = srv.Serve(lis) }()

	conn, err := gogrpc.NewClient("passthrough:///bufnet",
		gogrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufconn: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return authgrpc.NewAuthServiceClient(conn)
}

func newStub(t *testing.T) *stubUserAuthService {
	t.Helper()

	codec, err := token.NewCodec("test-secret", "hr-auth")
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return &stubUserAuthService{codec: codec}
}

func issueAccess(t *testing.T, codec *token.Codec, typ token.Type) string {
	t.Helper()

	signed, _, err := codec.Issue(token.Subject{UserID: 7, Email: "ana@example.com", Role: "manager"}, typ, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return signed
}

func TestRegister_RoundTripsOverJSONCodec(t *testing.T) {
	client := newClient(t, newStub(t))

	res, err := client.Register(context.Background(), &types.RegisterRequest{
		Email:     "ana@example.com",
		Password:  "pw123456",
		FirstName: "Ana",
		LastName:  "Pop",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.Status != types.StatusConfirmationRequired || res.EmailSent == nil || !*res.EmailSent {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestRegister_InvalidArgument(t *testing.T) {
	client := newClient(t, newStub(t))

	_, err := client.Register(context.Background(), &types.RegisterRequest{Email: "nope"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := map[string]struct {
		err  error
		code codes.Code
	}{
		"invalid credentials": {err: service.ErrInvalidCredentials, code: codes.Unauthenticated},
		"inactive":            {err: service.ErrAccountInactive, code: codes.PermissionDenied},
		"not verified":        {err: service.ErrEmailNotVerified, code: codes.PermissionDenied},
		"exists":              {err: service.ErrUserExists, code: codes.AlreadyExists},
		"weak":                {err: fmt.Errorf("%w: short", service.ErrWeakPassword), code: codes.InvalidArgument},
		"internal":            {err: fmt.Errorf("%w: boom", service.ErrInternal), code: codes.Internal},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			stub := newStub(t)
			stub.err = tc.err
			client := newClient(t, stub)

			_, err := client.Login(context.Background(), &types.LoginRequest{Email: "ana@example.com", Password: "pw123456"})
			if status.Code(err) != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestConfirmEmail_Codes(t *testing.T) {
	cases := map[string]struct {
		err  error
		code codes.Code
	}{
		"ok":               {code: codes.OK},
		"invalid or used":  {err: service.ErrInvalidOrUsedCode, code: codes.InvalidArgument},
		"expired":          {err: service.ErrCodeExpired, code: codes.InvalidArgument},
		"already verified": {err: service.ErrAccountAlreadyVerified, code: codes.InvalidArgument},
		"too many":         {err: service.ErrTooManyConfirmAttempts, code: codes.ResourceExhausted},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			stub := newStub(t)
			stub.err = tc.err
			client := newClient(t, stub)

			_, err := client.ConfirmEmail(context.Background(), &types.ConfirmEmailRequest{Code: "123456"})
			if status.Code(err) != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
			if stub.lastConfirm == nil || stub.lastConfirm.ClientIP == "" {
				t.Fatalf("expected peer address to key the limiter, got %+v", stub.lastConfirm)
			}
		})
	}
}

func TestResendConfirmation_RateLimitedTrailer(t *testing.T) {
	stub := newStub(t)
	stub.err = &service.RateLimitError{RetryAfter: 30 * time.Second}
	client := newClient(t, stub)

	var trailer metadata.MD
	_, err := client.ResendConfirmation(context.Background(), &types.ResendConfirmationRequest{Email: "ana@example.com"}, gogrpc.Trailer(&trailer))
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
	if got := trailer.Get("retry-after"); len(got) != 1 || got[0] != "30" {
		t.Fatalf("expected retry-after 30, got %v", got)
	}
}

func TestResendConfirmation_Codes(t *testing.T) {
	cases := map[string]struct {
		err  error
		code codes.Code
	}{
		"unknown":          {err: service.ErrUserNotFound, code: codes.NotFound},
		"already verified": {err: service.ErrAccountAlreadyVerified, code: codes.FailedPrecondition},
		"mail failed":      {err: service.ErrMailDeliveryFailed, code: codes.Unavailable},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			stub := newStub(t)
			stub.err = tc.err
			client := newClient(t, stub)

			_, err := client.ResendConfirmation(context.Background(), &types.ResendConfirmationRequest{Email: "ana@example.com"})
			if status.Code(err) != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestRefreshToken_ExpiredIsUnauthenticated(t *testing.T) {
	stub := newStub(t)
	stub.err = service.ErrTokenExpired
	client := newClient(t, stub)

	_, err := client.RefreshToken(context.Background(), &types.RefreshTokenRequest{RefreshToken: "x"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	stub := newStub(t)
	client := newClient(t, stub)
	ctx := context.Background()

	res, err := client.ValidateToken(ctx, &types.ValidateTokenRequest{Token: issueAccess(t, stub.codec, token.TypeAccess)})
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if !res.Valid || res.UserID != 7 || res.Role != "manager" || len(res.Permissions) == 0 {
		t.Fatalf("unexpected response: %+v", res)
	}

	res, err = client.ValidateToken(ctx, &types.ValidateTokenRequest{Token: issueAccess(t, stub.codec, token.TypeRefresh)})
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if res.Valid {
		t.Fatalf("refresh token must not validate as access")
	}
}

func TestMe_RequiresBearer(t *testing.T) {
	stub := newStub(t)
	client := newClient(t, stub)

	if _, err := client.Me(context.Background(), &authgrpc.MeRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without metadata, got %v", err)
	}

	refreshCtx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+issueAccess(t, stub.codec, token.TypeRefresh))
	if _, err := client.Me(refreshCtx, &authgrpc.MeRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated for refresh token, got %v", err)
	}

	accessCtx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+issueAccess(t, stub.codec, token.TypeAccess))
	profile, err := client.Me(accessCtx, &authgrpc.MeRequest{})
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if profile.ID != 7 || stub.lastMeID != 7 {
		t.Fatalf("expected profile for user 7, got %+v", profile)
	}
}
