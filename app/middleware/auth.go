package middleware

import (
	"net/http"

	"github.com/vibast-solutions/ms-go-hr-auth/app/dto"
	"github.com/vibast-solutions/ms-go-hr-auth/app/rbac"
	"github.com/vibast-solutions/ms-go-hr-auth/app/token"
	"github.com/vibast-solutions/ms-go-hr-auth/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ContextKeyUserID     = "user_id"
	ContextKeyUserEmail  = "user_email"
	ContextKeyUserRole   = "user_role"
	ContextKeyClaims     = "claims"
	unauthorizedResponse = "invalid or expired token"
)

type accessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*token.Claims, error)
}

type AuthMiddleware struct {
	authService accessTokenValidator
}

func NewAuthMiddleware(authService accessTokenValidator) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// RequireAuth accepts only access tokens. Invalid and expired tokens get the
// same reply.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "missing authorization header"})
		}

		tokenString := types.BearerToken(authHeader)
		if tokenString == "" {
			logrus.Debug("Invalid authorization header format")
			return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid authorization header format"})
		}

		claims, err := m.authService.ValidateAccessToken(tokenString)
		if err != nil {
			logrus.WithError(err).Debug("Invalid or expired access token")
			return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: unauthorizedResponse})
		}

		userID, err := claims.UserID()
		if err != nil {
			logrus.Debug("Access token carries no usable subject")
			return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: unauthorizedResponse})
		}

		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyUserEmail, claims.Email)
		c.Set(ContextKeyUserRole, rbac.ParseRole(claims.Role).String())
		c.Set(ContextKeyClaims, claims)

		return next(c)
	}
}

// RequirePermission must run after RequireAuth.
func RequirePermission(permission rbac.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ContextKeyUserRole).(string)
			if !ok {
				return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
			}
			if !rbac.ParseRole(role).Has(permission) {
				logrus.WithFields(logrus.Fields{
					"user_id":    c.Get(ContextKeyUserID),
					"role":       role,
					"permission": permission,
				}).Warn("Permission denied")
				return c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "forbidden"})
			}
			return next(c)
		}
	}
}
