package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/app/dto"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type HealthController struct {
	db pinger
}

func NewHealthController(db pinger) *HealthController {
	return &HealthController{db: db}
}

func (c *HealthController) Health(ctx echo.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
	defer cancel()

	if err := c.db.PingContext(pingCtx); err != nil {
		logrus.WithError(err).Error("Health check failed: database unreachable")
		return ctx.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "unavailable"})
	}
	return ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}
