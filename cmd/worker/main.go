// Command worker runs the queue consumer: it claims discovered filings
// from the shared store, runs one extraction session per job, and appends
// the results to the workbook.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lienharvest/pkg/browser"
	"lienharvest/pkg/config"
	"lienharvest/pkg/scrape"
	"lienharvest/pkg/sink"
	"lienharvest/pkg/store"
	"lienharvest/pkg/worker"
)

func main() {
	drain := flag.Bool("drain", false, "exit once the queue is empty instead of polling")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg := config.Load()
	if cfg.AgentURL == "" {
		log.Error("LIENHARVEST_AGENT_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *drain); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, drain bool) error {
	for _, dir := range []string{filepath.Dir(cfg.DBPath), filepath.Dir(cfg.SinkPath), cfg.DownloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	jobStore := store.NewGormStore(db, store.WithLeaseTTL(cfg.LeaseTTL))
	if err := jobStore.Migrate(ctx); err != nil {
		return err
	}

	connector := browser.NewRemoteConnector(cfg.AgentURL, nil)
	fetcher := scrape.NewDetailFetcher(connector, cfg.DownloadDir,
		scrape.WithFetchLimiter(browser.NewRateLimiter(cfg.RateInterval)),
		scrape.WithFetchLogger(log),
	)
	xlsx := sink.NewXLSXSink(cfg.SinkPath, log)

	opts := []worker.Option{
		worker.BatchSize(cfg.BatchSize),
		worker.MaxAttempts(cfg.MaxAttempts),
		worker.Backoff(cfg.Backoff),
		worker.IdleSleep(cfg.IdleSleep),
		worker.SessionTimeout(cfg.SessionTimeout),
		worker.Logger(log),
	}
	if drain {
		opts = append(opts, worker.DrainAndExit())
	}

	loop := worker.NewLoop(jobStore, fetcher, xlsx, opts...)
	return loop.Run(ctx)
}
