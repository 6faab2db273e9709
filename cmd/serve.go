package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/app/controller"
	authgrpc "github.com/vibast-solutions/ms-go-hr-auth/app/grpc"
	"github.com/vibast-solutions/ms-go-hr-auth/app/mail"
	"github.com/vibast-solutions/ms-go-hr-auth/app/metrics"
	"github.com/vibast-solutions/ms-go-hr-auth/app/middleware"
	"github.com/vibast-solutions/ms-go-hr-auth/app/password"
	"github.com/vibast-solutions/ms-go-hr-auth/app/ratelimit"
	"github.com/vibast-solutions/ms-go-hr-auth/app/rbac"
	"github.com/vibast-solutions/ms-go-hr-auth/app/repository"
	"github.com/vibast-solutions/ms-go-hr-auth/app/service"
	"github.com/vibast-solutions/ms-go-hr-auth/app/token"
	"github.com/vibast-solutions/ms-go-hr-auth/app/verification"
	"github.com/vibast-solutions/ms-go-hr-auth/config"
	"github.com/vibast-solutions/ms-go-hr-auth/migrations"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start both HTTP (Echo) and gRPC servers for the HR authentication service.`,
	Run:   runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending database migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if migrateOnStart {
		if err := migrations.Up(ctx, db); err != nil {
			logrus.WithError(err).Fatal("Failed to apply migrations")
		}
	}

	userAuthService, closeDeps, err := buildUserAuthService(cfg, repository.NewUserRepository(db), repository.NewOnboardingRepository(db))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build auth service")
	}
	defer closeDeps()

	grpcServer, err := startGRPCServer(cfg, userAuthService)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start gRPC server")
	}

	e := newHTTPServer(userAuthService, controller.NewHealthController(db))
	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	grpcServer.GracefulStop()
}

type onboardingLookup interface {
	ExistsForUser(ctx context.Context, userID uint64) (bool, error)
}

// buildUserAuthService wires the hasher, codec, code generator, mail gateway
// and the optional Redis confirm limiter. The returned func releases them.
func buildUserAuthService(cfg *config.Config, users *repository.UserRepository, onboarding onboardingLookup) (service.UserAuthService, func(), error) {
	hasherCfg := password.DefaultConfig()
	hasherCfg.MemoryKB = cfg.Password.Argon2.MemoryKB
	hasherCfg.Time = cfg.Password.Argon2.Time
	hasherCfg.Parallelism = cfg.Password.Argon2.Parallelism
	hasher, err := password.NewArgon2(hasherCfg)
	if err != nil {
		return nil, nil, err
	}

	codec, err := token.NewCodec(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		return nil, nil, err
	}

	opts := []service.UserAuthServiceOption{service.WithOnboardingChecker(onboarding)}
	closeDeps := func() {}

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts = append(opts, service.WithConfirmLimiter(
			ratelimit.NewConfirmLimiter(client, cfg.Auth.ConfirmAttemptLimit, cfg.Auth.ConfirmAttemptWindow),
		))
		closeDeps = func() { _ = client.Close() }
		logrus.WithField("addr", cfg.Redis.Addr).Info("Confirm attempt limiter enabled")
	}

	svc := service.NewUserAuthService(
		users,
		hasher,
		codec,
		verification.NewGenerator(cfg.Auth.VerificationCodeTTL),
		newMailSender(cfg),
		cfg,
		opts...,
	)
	return svc, closeDeps, nil
}

func newMailSender(cfg *config.Config) mail.Sender {
	var next mail.Sender
	if cfg.Mail.Enabled() {
		next = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.From,
		})
	} else {
		logrus.Warn("SMTP_HOST not set, confirmation emails are only logged")
		next = mail.NewLogSender()
	}
	return mail.NewBreakerSender(next, mail.DefaultBreakerConfig(next.Name()))
}

func newHTTPServer(userAuthService service.UserAuthService, health *controller.HealthController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLogger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(metrics.HTTPMiddleware())

	userAuthController := controller.NewUserAuthController(userAuthService)
	authMiddleware := middleware.NewAuthMiddleware(userAuthService)

	e.GET("/health", health.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	auth := e.Group("/auth")
	auth.POST("/register", userAuthController.Register)
	auth.POST("/login", userAuthController.Login)
	auth.POST("/confirm-email", userAuthController.ConfirmEmail)
	auth.POST("/resend-confirmation", userAuthController.ResendConfirmation)
	auth.POST("/refresh-token", userAuthController.RefreshToken)
	auth.POST("/validate-token", userAuthController.ValidateToken)

	authProtected := auth.Group("")
	authProtected.Use(authMiddleware.RequireAuth)
	authProtected.GET("/me", userAuthController.Me)
	authProtected.GET("/permissions", userAuthController.Permissions, middleware.RequirePermission(rbac.PermProfileRead))

	return e
}

func startGRPCServer(cfg *config.Config, userAuthService service.UserAuthService) (*grpc.Server, error) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		authgrpc.LoggingUnaryInterceptor(),
		authgrpc.BearerUnaryInterceptor(userAuthService, authgrpc.MethodMe),
	))
	authgrpc.RegisterAuthServiceServer(grpcServer, authgrpc.NewAuthServer(userAuthService))

	go func() {
		logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logrus.WithError(err).Fatal("gRPC server stopped")
		}
	}()
	return grpcServer, nil
}
