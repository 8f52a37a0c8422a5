package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kosukekita/Clinic-Reservation/internal/booking"
	"github.com/kosukekita/Clinic-Reservation/internal/config"
	"github.com/kosukekita/Clinic-Reservation/internal/db"
	"github.com/kosukekita/Clinic-Reservation/internal/logging"
)

// The maintenance worker deactivates slots whose date has passed so they
// stop being offered for booking.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("maintenance-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	repo := booking.NewPgRepository(pgPool)
	slots := booking.NewSlotService(repo, logger)

	// Run once at startup
	runOnce(rootCtx, slots, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping maintenance worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, slots, logger)
		}
	}
}

func runOnce(ctx context.Context, slots *booking.SlotService, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := slots.DeactivatePast(runCtx, time.Now())
	if err != nil {
		logger.Error("maintenance run error", zap.Error(err))
		return
	}
	logger.Info("maintenance run complete",
		zap.Int64("deactivated", n),
		zap.Duration("took", time.Since(start)))
}
