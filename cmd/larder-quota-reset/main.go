package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/quota"
)

var (
	dbURL    = flag.String("db-url", getEnv("LARDER_DATABASE_URL", "postgres://localhost/larder?sslmode=disable"), "PostgreSQL connection URL")
	schedule = flag.String("schedule", getEnv("LARDER_QUOTA_RESET_SCHEDULE", "5 0 * * *"), "Cron schedule for the quota reset sweep (default: 00:05 UTC)")
	logLevel = flag.String("log-level", getEnv("LARDER_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	runOnce  = flag.Bool("run-once", false, "Run one sweep and exit")
)

func main() {
	flag.Parse()
	logger := observability.NewLogger(observability.ParseLogLevel(*logLevel), os.Stdout)

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		logger.WithError(err).Error("Failed to ping database")
		os.Exit(1)
	}

	sweeper := quota.NewSweeper(quota.NewStore(db), logger)
	sweep := func() (err error) {
		defer func() {
			if perr := observability.MustRecover(recover()); perr != nil {
				logger.WithError(perr).Error("Quota sweep panicked")
				err = perr
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := sweeper.Run(ctx)
		if err == nil {
			logger.WithField("reset", n).Info("Quota sweep completed")
		}
		return err
	}

	if *runOnce {
		if err := sweep(); err != nil {
			os.Exit(1)
		}
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(*schedule, func() { _ = sweep() }); err != nil {
		logger.WithError(err).WithField("schedule", *schedule).Error("Invalid quota reset schedule")
		os.Exit(1)
	}
	c.Start()
	logger.WithField("schedule", *schedule).Info("Quota reset sweeper started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down, waiting for a running sweep")
	<-c.Stop().Done()
	logger.Info("Quota reset sweeper stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
