// Command server runs the discovery trigger: the HTTP front door that
// starts scans, plus the optional cron-driven daily discovery sweep.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lienharvest/pkg/browser"
	"lienharvest/pkg/config"
	"lienharvest/pkg/core"
	"lienharvest/pkg/cursor"
	"lienharvest/pkg/scrape"
	"lienharvest/pkg/schedule"
	"lienharvest/pkg/server"
	"lienharvest/pkg/sink"
	"lienharvest/pkg/store"
)

const httpShutdownTimeout = 10 * time.Second

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg := config.Load()
	if cfg.AgentURL == "" {
		log.Error("LIENHARVEST_AGENT_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
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

	limiter := browser.NewRateLimiter(cfg.RateInterval)
	connector := browser.NewRemoteConnector(cfg.AgentURL, nil)
	xlsx := sink.NewXLSXSink(cfg.SinkPath, log)

	scan := func(ctx context.Context, siteKey string, scanCfg scrape.Config) (*scrape.Result, error) {
		site, err := scrape.Lookup(siteKey)
		if err != nil {
			return nil, err
		}
		page, err := connector.NewPage(ctx)
		if err != nil {
			return nil, err
		}
		defer page.Close(ctx)

		scanCfg.DownloadDir = cfg.DownloadDir
		scanCfg.ResultCeiling = cfg.ResultCeiling
		if scanCfg.MaxRecords <= 0 {
			scanCfg.MaxRecords = cfg.MaxRecords
		}
		session := scrape.NewSession(page, site, scanCfg,
			scrape.WithLimiter(limiter),
			scrape.WithLogger(log),
		)
		return session.Run(ctx)
	}

	opts := []server.ServerOption{server.WithServerLogger(log)}
	var cursors cursor.Store
	if cfg.RedisAddr != "" {
		redisStore := cursor.NewRedisStore(cfg.RedisAddr, "lienharvest:cursor:", cfg.CursorTTL)
		defer redisStore.Close()
		cursors = redisStore
	} else {
		cursors = cursor.NewMemory()
	}
	opts = append(opts, server.WithCursorStore(cursors))

	srv := server.New(scan, jobStore, xlsx, opts...)

	if cfg.DiscoveryCron != "" {
		scanner := schedule.NewScanner(schedule.Cron(cfg.DiscoveryCron), func(ctx context.Context, dateStart, dateEnd string) error {
			result, err := scan(ctx, "ca_sos", scrape.Config{DateStart: dateStart, DateEnd: dateEnd})
			if err != nil {
				return err
			}
			discovered := make([]core.DiscoveredFiling, 0, len(result.Records))
			for _, rec := range result.Records {
				discovered = append(discovered, rec.Identity())
			}
			return jobStore.InsertMany(ctx, discovered)
		}, log)
		go func() {
			if err := scanner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("scheduler stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    cfg.Address,
		Handler: srv.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("server listening", "address", cfg.Address)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
