package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lakany/clinic-api/internal/config"
	"github.com/lakany/clinic-api/internal/repository/postgres"
	"github.com/lakany/clinic-api/pkg/logger"
	"github.com/lakany/clinic-api/pkg/messaging"
	"github.com/lakany/clinic-api/pkg/messaging/redis"
	"github.com/lakany/clinic-api/pkg/metrics"
	"github.com/lakany/clinic-api/pkg/worker"
)

func setupHealthCheck(addr string, db *sqlx.DB, l *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/health/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(err, "health check server failed")
		}
	}()
	return srv
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	healthAddr := flag.String("health-addr", ":8081", "listen address of the health endpoints")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	l := logger.Setup(logger.Config{Level: cfg.Log.Level, Pretty: !cfg.IsProduction()})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		l.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig())
		if err != nil {
			l.Fatal(err, "failed to create Redis broker")
		}
	} else {
		l.Warn("redis.url is empty, relaying events to the in-process broker")
		broker = messaging.NewMemoryBroker()
	}
	defer broker.Close()

	outboxRepo := postgres.NewOutboxRepository(postgres.NewBaseRepository(db))

	processor, err := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		cfg.Outbox.ToWorkerConfig(),
		metrics.New("clinic", prometheus.DefaultRegisterer),
	)
	if err != nil {
		l.Fatal(err, "failed to create outbox processor")
	}
	cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval)

	health := setupHealthCheck(*healthAddr, db, l)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	<-ctx.Done()
	l.Info("shutting down...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "health server forced to shutdown")
	}
}
