package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/lakany/clinic-api/internal/config"
	appointmentHandler "github.com/lakany/clinic-api/internal/handler/appointment"
	authHandler "github.com/lakany/clinic-api/internal/handler/auth"
	"github.com/lakany/clinic-api/internal/handler/health"
	"github.com/lakany/clinic-api/internal/repository/postgres"
	"github.com/lakany/clinic-api/internal/router"
	appointmentService "github.com/lakany/clinic-api/internal/service/appointment"
	auditService "github.com/lakany/clinic-api/internal/service/audit"
	authService "github.com/lakany/clinic-api/internal/service/auth"
	eventService "github.com/lakany/clinic-api/internal/service/event"
	"github.com/lakany/clinic-api/internal/service/schedule"
	"github.com/lakany/clinic-api/pkg/auth"
	"github.com/lakany/clinic-api/pkg/logger"
	"github.com/lakany/clinic-api/pkg/metrics"
	"github.com/lakany/clinic-api/pkg/security"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	l := logger.Setup(logger.Config{Level: cfg.Log.Level, Pretty: !cfg.IsProduction()})

	if err := cfg.Validate(); err != nil {
		l.Fatal(err, "invalid configuration")
	}
	loc, _ := cfg.Location()

	var statusDoctorID *uuid.UUID
	if cfg.Scheduling.StatusDoctorID != "" {
		id, err := uuid.Parse(cfg.Scheduling.StatusDoctorID)
		if err != nil {
			l.Fatal(err, "invalid scheduling.status_doctor_id")
		}
		statusDoctorID = &id
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		l.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	applied, err := postgres.NewMigrator(db, cfg.Scheduling.EnforceUniqueSlots).Up(ctx)
	if err != nil {
		l.Fatal(err, "failed to migrate database")
	}
	l.Info("database schema up to date", "changes", applied, "enforce_unique_slots", cfg.Scheduling.EnforceUniqueSlots)

	// Initialize repositories
	base := postgres.NewBaseRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(base)
	userRepo := postgres.NewUserRepository(base)
	auditRepo := postgres.NewAuditRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)

	m := metrics.New("clinic", prometheus.DefaultRegisterer)

	// Initialize services
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authSvc := authService.NewService(userRepo, jwtSvc, security.NewBcryptHasher(0))
	appointmentSvc := appointmentService.NewService(
		appointmentRepo,
		userRepo,
		auditService.NewService(auditRepo),
		eventService.NewService(outboxRepo),
		m,
		appointmentService.Config{
			Clock:          schedule.NewClock(loc),
			StatusDoctorID: statusDoctorID,
			StatusCacheTTL: cfg.Scheduling.StatusCacheTTL,
		},
	)

	r := router.NewRouter(
		authSvc,
		appointmentHandler.NewHandler(appointmentSvc),
		authHandler.NewHandler(authSvc),
		health.NewHandler(db, prometheus.DefaultGatherer),
		m,
		router.RouterConfig{
			Production:     cfg.IsProduction(),
			RequestTimeout: cfg.Server.RequestTimeout,
			RateLimit:      rateLimit(cfg.RateLimit),
			RateBurst:      cfg.RateLimit.Burst,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		l.Info("starting server", "port", cfg.Server.Port, "mode", cfg.Server.Mode, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	l.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "server forced to shutdown")
	}
}

func rateLimit(cfg config.RateLimitConfig) rate.Limit {
	if !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return 0
	}
	return rate.Limit(cfg.RequestsPerSecond)
}
