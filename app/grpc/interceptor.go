package grpc

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/app/token"
	"github.com/vibast-solutions/ms-go-hr-auth/app/types"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type claimsKey struct{}

type accessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*token.Claims, error)
}

// BearerUnaryInterceptor requires "authorization: Bearer <access token>"
// metadata on the listed methods and leaves the others untouched.
func BearerUnaryInterceptor(validator accessTokenValidator, protected ...string) gogrpc.UnaryServerInterceptor {
	guarded := make(map[string]struct{}, len(protected))
	for _, method := range protected {
		guarded[method] = struct{}{}
	}

	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		if _, ok := guarded[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		tokenString := types.BearerToken(incomingMetadata(ctx, "authorization"))
		if tokenString == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}

		claims, err := validator.ValidateAccessToken(tokenString)
		if err != nil {
			logrus.WithError(err).WithField("method", info.FullMethod).Debug("Invalid or expired access token (grpc)")
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		return handler(context.WithValue(ctx, claimsKey{}, claims), req)
	}
}

// LoggingUnaryInterceptor emits one "grpc_request" entry per call.
func LoggingUnaryInterceptor() gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		start := time.Now()
		res, err := handler(ctx, req)
		latency := time.Since(start)

		entry := logrus.WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"code":       status.Code(err).String(),
			"latency":    latency.String(),
			"latency_ns": latency.Nanoseconds(),
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Info("grpc_request")
		return res, err
	}
}

func claimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*token.Claims)
	return claims, ok && claims != nil
}

func incomingMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
