package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/billbatista/acasinha-trips/api"
	"github.com/billbatista/acasinha-trips/config"
	"github.com/billbatista/acasinha-trips/db"
	"github.com/billbatista/acasinha-trips/eventlogger"
	"github.com/billbatista/acasinha-trips/ledger"
	"github.com/billbatista/acasinha-trips/metrics"
	"github.com/billbatista/acasinha-trips/planner"
	"github.com/billbatista/acasinha-trips/session"
	"github.com/billbatista/acasinha-trips/settlement"
	"github.com/billbatista/acasinha-trips/trip"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		printErrorAndExit("database connection", err)
	}
	defer database.Close()

	if err := db.Migrate(database, logger); err != nil {
		printErrorAndExit("running migrations", err)
	}

	registry := metrics.NewRegistry()

	evtlogger := eventlogger.NewSqlEventLogger(database)
	worker := eventlogger.NewWorker(evtlogger, cfg.EventBuffer, logger, registry.Meter("eventlogger"))
	worker.Start()

	engine := settlement.NewEngine(logger, registry.Meter("settlement"))
	svc := planner.NewService(
		trip.NewRepository(database),
		ledger.NewRepository(database),
		worker,
		engine,
		logger,
	)
	sessionRepo := session.NewRepository(database, cfg.SessionTTL)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(svc, sessionRepo, evtlogger, registry, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			printErrorAndExit("http server", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}

	worker.Shutdown()

	snapshot, err := registry.Snapshot(shutdownCtx)
	if err != nil {
		slog.Error("collecting metrics", "error", err)
	}
	slog.Info("server stopped",
		"events_dropped", snapshot[eventlogger.DroppedMetric],
		"settlement_coercions", snapshot[settlement.CoercionsMetric],
	)
	if err := registry.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics shutdown", "error", err)
	}
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
