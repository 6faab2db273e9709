package grpc

import (
	"context"

	"github.com/vibast-solutions/ms-go-hr-auth/app/types"

	gogrpc "google.golang.org/grpc"
)

const (
	ServiceName = "hrauth.v1.AuthService"

	MethodRegister           = "/" + ServiceName + "/Register"
	MethodLogin              = "/" + ServiceName + "/Login"
	MethodConfirmEmail       = "/" + ServiceName + "/ConfirmEmail"
	MethodResendConfirmation = "/" + ServiceName + "/ResendConfirmation"
	MethodRefreshToken       = "/" + ServiceName + "/RefreshToken"
	MethodValidateToken      = "/" + ServiceName + "/ValidateToken"
	MethodMe                 = "/" + ServiceName + "/Me"
)

// MeRequest is empty; the caller is identified by the bearer metadata.
type MeRequest struct{}

type AuthServiceServer interface {
	Register(context.Context, *types.RegisterRequest) (*types.RegisterResponse, error)
	Login(context.Context, *types.LoginRequest) (*types.LoginResponse, error)
	ConfirmEmail(context.Context, *types.ConfirmEmailRequest) (*types.ConfirmEmailResponse, error)
	ResendConfirmation(context.Context, *types.ResendConfirmationRequest) (*types.ResendConfirmationResponse, error)
	RefreshToken(context.Context, *types.RefreshTokenRequest) (*types.RefreshTokenResponse, error)
	ValidateToken(context.Context, *types.ValidateTokenRequest) (*types.ValidateTokenResponse, error)
	Me(context.Context, *MeRequest) (*types.Profile, error)
}

var serviceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(MethodRegister, AuthServiceServer.Register)},
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, AuthServiceServer.Login)},
		{MethodName: "ConfirmEmail", Handler: unaryHandler(MethodConfirmEmail, AuthServiceServer.ConfirmEmail)},
		{MethodName: "ResendConfirmation", Handler: unaryHandler(MethodResendConfirmation, AuthServiceServer.ResendConfirmation)},
		{MethodName: "RefreshToken", Handler: unaryHandler(MethodRefreshToken, AuthServiceServer.RefreshToken)},
		{MethodName: "ValidateToken", Handler: unaryHandler(MethodValidateToken, AuthServiceServer.ValidateToken)},
		{MethodName: "Me", Handler: unaryHandler(MethodMe, AuthServiceServer.Me)},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "hrauth/v1/auth.json",
}

func RegisterAuthServiceServer(s gogrpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unaryHandler[Req, Res any](fullMethod string, call func(AuthServiceServer, context.Context, *Req) (*Res, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}

		info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type AuthServiceClient interface {
	Register(ctx context.Context, in *types.RegisterRequest, opts ...gogrpc.CallOption) (*types.RegisterResponse, error)
	Login(ctx context.Context, in *types.LoginRequest, opts ...gogrpc.CallOption) (*types.LoginResponse, error)
	ConfirmEmail(ctx context.Context, in *types.ConfirmEmailRequest, opts ...gogrpc.CallOption) (*types.ConfirmEmailResponse, error)
	ResendConfirmation(ctx context.Context, in *types.ResendConfirmationRequest, opts ...gogrpc.CallOption) (*types.ResendConfirmationResponse, error)
	RefreshToken(ctx context.Context, in *types.RefreshTokenRequest, opts ...gogrpc.CallOption) (*types.RefreshTokenResponse, error)
	ValidateToken(ctx context.Context, in *types.ValidateTokenRequest, opts ...gogrpc.CallOption) (*types.ValidateTokenResponse, error)
	Me(ctx context.Context, in *MeRequest, opts ...gogrpc.CallOption) (*types.Profile, error)
}

type authServiceClient struct {
	cc gogrpc.ClientConnInterface
}

// NewAuthServiceClient returns a client that always speaks the JSON codec.
func NewAuthServiceClient(cc gogrpc.ClientConnInterface) AuthServiceClient {
	return &authServiceClient{cc: cc}
}

func (c *authServiceClient) Register(ctx context.Context, in *types.RegisterRequest, opts ...gogrpc.CallOption) (*types.RegisterResponse, error) {
	return invoke[types.RegisterResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *authServiceClient) Login(ctx context.Context, in *types.LoginRequest, opts ...gogrpc.CallOption) (*types.LoginResponse, error) {
	return invoke[types.LoginResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *authServiceClient) ConfirmEmail(ctx context.Context, in *types.ConfirmEmailRequest, opts ...gogrpc.CallOption) (*types.ConfirmEmailResponse, error) {
	return invoke[types.ConfirmEmailResponse](ctx, c.cc, MethodConfirmEmail, in, opts)
}

func (c *authServiceClient) ResendConfirmation(ctx context.Context, in *types.ResendConfirmationRequest, opts ...gogrpc.CallOption) (*types.ResendConfirmationResponse, error) {
	return invoke[types.ResendConfirmationResponse](ctx, c.cc, MethodResendConfirmation, in, opts)
}

func (c *authServiceClient) RefreshToken(ctx context.Context, in *types.RefreshTokenRequest, opts ...gogrpc.CallOption) (*types.RefreshTokenResponse, error) {
	return invoke[types.RefreshTokenResponse](ctx, c.cc, MethodRefreshToken, in, opts)
}

func (c *authServiceClient) ValidateToken(ctx context.Context, in *types.ValidateTokenRequest, opts ...gogrpc.CallOption) (*types.ValidateTokenResponse, error) {
	return invoke[types.ValidateTokenResponse](ctx, c.cc, MethodValidateToken, in, opts)
}

func (c *authServiceClient) Me(ctx context.Context, in *MeRequest, opts ...gogrpc.CallOption) (*types.Profile, error) {
	return invoke[types.Profile](ctx, c.cc, MethodMe, in, opts)
}

func invoke[Res any](ctx context.Context, cc gogrpc.ClientConnInterface, method string, in any, opts []gogrpc.CallOption) (*Res, error) {
	out := new(Res)
	callOpts := append([]gogrpc.CallOption{gogrpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}
