package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/vibast-solutions/ms-go-hr-auth/app/dto"
	"github.com/vibast-solutions/ms-go-hr-auth/app/rbac"
	"github.com/vibast-solutions/ms-go-hr-auth/app/service"
	"github.com/vibast-solutions/ms-go-hr-auth/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type UserAuthController struct {
	userAuthService service.UserAuthService
}

func NewUserAuthController(userAuthService service.UserAuthService) *UserAuthController {
	return &UserAuthController{userAuthService: userAuthService}
}

func (c *UserAuthController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Register validation failed")
		return validationFailed(ctx, err)
	}

	logrus.WithField("email", req.Email).Info("Register request received")
	result, err := c.userAuthService.Register(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			logrus.WithField("email", req.Email).Warn("Register failed: user already exists")
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "user already exists"})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			logrus.WithField("email", req.Email).Warn("Register failed: weak password")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Register failed")
		return internalError(ctx)
	}

	logrus.WithFields(logrus.Fields{
		"email":  result.Email,
		"status": result.Status,
	}).Info("User registered")

	return ctx.JSON(http.StatusCreated, result)
}

func (c *UserAuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Login validation failed")
		return validationFailed(ctx, err)
	}

	logrus.WithField("email", req.Email).Info("Login request received")
	result, err := c.userAuthService.Login(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			logrus.WithField("email", req.Email).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid credentials"})
		case errors.Is(err, service.ErrAccountInactive):
			logrus.WithField("email", req.Email).Warn("Login failed: account inactive")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "account is inactive"})
		case errors.Is(err, service.ErrEmailNotVerified):
			logrus.WithField("email", req.Email).Warn("Login failed: email not verified")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "email address is not verified"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Login failed")
		return internalError(ctx)
	}

	logrus.WithField("user_id", result.User.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, result)
}

func (c *UserAuthController) ConfirmEmail(ctx echo.Context) error {
	req, err := types.NewConfirmEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind confirm email request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Confirm email validation failed")
		return validationFailed(ctx, err)
	}

	logrus.WithField("client_ip", req.ClientIP).Info("Confirm email request received")
	result, err := c.userAuthService.ConfirmEmail(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrUsedCode):
			logrus.WithField("client_ip", req.ClientIP).Warn("Confirm email failed: invalid or used code")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid or already used verification code"})
		case errors.Is(err, service.ErrCodeExpired):
			logrus.WithField("client_ip", req.ClientIP).Warn("Confirm email failed: code expired")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "verification code has expired"})
		case errors.Is(err, service.ErrAccountAlreadyVerified):
			logrus.WithField("client_ip", req.ClientIP).Warn("Confirm email failed: already verified")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "account is already verified"})
		case errors.Is(err, service.ErrTooManyConfirmAttempts):
			logrus.WithField("client_ip", req.ClientIP).Warn("Confirm email failed: too many attempts")
			return ctx.JSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: "too many confirmation attempts"})
		}
		logrus.WithError(err).Error("Confirm email failed")
		return internalError(ctx)
	}

	logrus.WithField("user_id", result.User.ID).Info("Email confirmed")
	return ctx.JSON(http.StatusOK, result)
}

func (c *UserAuthController) ResendConfirmation(ctx echo.Context) error {
	req, err := types.NewResendConfirmationRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind resend confirmation request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Resend confirmation validation failed")
		return validationFailed(ctx, err)
	}

	logrus.WithField("email", req.Email).Info("Resend confirmation request received")
	result, err := c.userAuthService.ResendConfirmation(ctx.Request().Context(), req)
	if err != nil {
		var limited *service.RateLimitError
		switch {
		case errors.As(err, &limited):
			logrus.WithFields(logrus.Fields{
				"email":       req.Email,
				"retry_after": limited.RetryAfterSeconds(),
			}).Warn("Resend confirmation rate limited")
			return rateLimited(ctx, limited)
		case errors.Is(err, service.ErrUserNotFound):
			logrus.WithField("email", req.Email).Warn("Resend confirmation failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		case errors.Is(err, service.ErrAccountAlreadyVerified):
			logrus.WithField("email", req.Email).Warn("Resend confirmation failed: already verified")
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "account is already verified"})
		case errors.Is(err, service.ErrMailDeliveryFailed):
			logrus.WithError(err).WithField("email", req.Email).Error("Resend confirmation failed: mail delivery")
			return ctx.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: "failed to deliver confirmation email"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Resend confirmation failed")
		return internalError(ctx)
	}

	logrus.WithField("email", req.Email).Info("Confirmation email resent")
	return ctx.JSON(http.StatusOK, result)
}

func (c *UserAuthController) RefreshToken(ctx echo.Context) error {
	req, err := types.NewRefreshTokenRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind refresh token request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Refresh token validation failed")
		return validationFailed(ctx, err)
	}

	logrus.Info("Refresh token request received")
	result, err := c.userAuthService.RefreshToken(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrTokenExpired) {
			logrus.Warn("Refresh token failed: invalid or expired token")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired refresh token"})
		}
		logrus.WithError(err).Error("Refresh token failed")
		return internalError(ctx)
	}

	logrus.WithField("user_id", result.User.ID).Info("Refresh token successful")
	return ctx.JSON(http.StatusOK, result)
}

func (c *UserAuthController) ValidateToken(ctx echo.Context) error {
	req, err := types.NewValidateTokenRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind validate token request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Validate token validation failed")
		return validationFailed(ctx, err)
	}

	claims, err := c.userAuthService.ValidateAccessToken(req.Token)
	if err != nil {
		logrus.WithError(err).Debug("Validate token failed")
		return ctx.JSON(http.StatusOK, &types.ValidateTokenResponse{Valid: false})
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

	logrus.WithField("user_id", userID).Debug("Validate token succeeded")
	return ctx.JSON(http.StatusOK, res)
}

// Me expects RequireAuth to have stored the caller's id.
func (c *UserAuthController) Me(ctx echo.Context) error {
	userID, ok := ctx.Get("user_id").(uint64)
	if !ok {
		logrus.Warn("Me failed: missing user_id in context")
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	profile, err := c.userAuthService.Me(ctx.Request().Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			logrus.WithField("user_id", userID).Warn("Me failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		case errors.Is(err, service.ErrAccountInactive):
			logrus.WithField("user_id", userID).Warn("Me failed: account inactive")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "account is inactive"})
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Me failed")
		return internalError(ctx)
	}

	return ctx.JSON(http.StatusOK, profile)
}

func (c *UserAuthController) Permissions(ctx echo.Context) error {
	role, _ := ctx.Get("user_role").(string)
	parsed := rbac.ParseRole(role)

	return ctx.JSON(http.StatusOK, &types.PermissionsResponse{
		Role:        parsed.String(),
		Permissions: rbac.Strings(parsed.Permissions()),
	})
}

func validationFailed(ctx echo.Context, err error) error {
	res := dto.ErrorResponse{Error: err.Error()}

	var validationErr *types.ValidationError
	if errors.As(err, &validationErr) {
		res.Fields = validationErr.Fields()
	}
	return ctx.JSON(http.StatusBadRequest, res)
}

func rateLimited(ctx echo.Context, err *service.RateLimitError) error {
	seconds := err.RetryAfterSeconds()
	ctx.Response().Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	return ctx.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
		Error:      err.Error(),
		RetryAfter: seconds,
	})
}

func internalError(ctx echo.Context) error {
	return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
}
