package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tutorhive/scheduling/internal/config"
	"github.com/tutorhive/scheduling/internal/db"
	"github.com/tutorhive/scheduling/internal/logger"
	redisclient "github.com/tutorhive/scheduling/internal/redis"
	"github.com/tutorhive/scheduling/internal/scheduling"
)

// slot-worker keeps the rolling slot horizon filled: on every tick it re-runs
// generation for all active rules. Generation is idempotent, so overlapping
// runs (or a concurrent api-server generating on rule creation) are harmless.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer log.Sync()

	log.Info("slot-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Int("slot_horizon_days", cfg.SlotHorizonDays),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("connected to Redis")

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	availability := scheduling.NewAvailabilityService(repo, locker, cfg, log)

	// Run once at startup
	runOnce(rootCtx, availability, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping slot worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, availability, log)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.AvailabilityService, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	if err := svc.GenerateSlotsForAllActiveRules(runCtx); err != nil {
		log.Error("slot generation run error", zap.Error(err))
		return
	}
	log.Info("slot generation run complete", zap.Duration("took", time.Since(start)))
}
