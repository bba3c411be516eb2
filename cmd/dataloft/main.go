// Command dataloft runs the tabular ingestion service: staged uploads,
// schema inference, dynamic table creation, and chunked imports over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"dataloft/internal/api"
	"dataloft/internal/classify"
	"dataloft/internal/config"
	"dataloft/internal/inference"
	"dataloft/internal/ingest"
	"dataloft/internal/jobs"
	"dataloft/internal/meta"
	"dataloft/internal/metrics"
	ddmetrics "dataloft/internal/metrics/datadog"
	"dataloft/internal/sanitize"
	"dataloft/internal/store"
	_ "dataloft/internal/store/mssql"
	_ "dataloft/internal/store/postgres"
	_ "dataloft/internal/store/sqlite"
	"dataloft/internal/upload"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to config YAML (env overrides apply)")
	flag.Parse()

	logger := log.New(os.Stderr, "dataloft ", log.LstdFlags|log.LUTC)

	if err := run(cfgPath, logger); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(cfgPath string, logger *log.Logger) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metaDB, err := openMetaDB(rootCtx, cfg.Meta, logger)
	if err != nil {
		return err
	}
	defer metaDB.Close()

	repo := meta.NewRepository(metaDB, metaDriver(cfg.Meta.Driver))
	if err := repo.EnsureSchema(rootCtx); err != nil {
		return err
	}

	tables, err := store.New(rootCtx, store.Config{Kind: cfg.Store.Kind, DSN: cfg.Store.DSN})
	if err != nil {
		return fmt.Errorf("connect store kind=%s: %w", cfg.Store.Kind, err)
	}
	defer tables.Close()

	var sink metrics.Backend = metrics.Nop{}
	if cfg.Metrics.Enabled {
		dd, err := ddmetrics.NewBackend(rootCtx, ddmetrics.Options{
			ServiceName: cfg.Metrics.Service,
			Tags:        ddmetrics.ParseTagsCSV(cfg.Metrics.Tags),
			FlushEvery:  cfg.Metrics.FlushEvery,
		})
		if err != nil {
			return fmt.Errorf("metrics init: %w", err)
		}
		defer func() { _ = dd.Close() }()
		sink = dd
	}

	files, err := upload.NewDiskStore(cfg.Staging.Dir)
	if err != nil {
		return err
	}

	pool := jobs.NewPool(cfg.Jobs.Workers, cfg.Jobs.QueueSize, logger)

	pipeline := &ingest.Pipeline{
		Meta:    repo,
		Tables:  tables,
		Files:   files,
		Logger:  logger,
		Metrics: sink,
	}

	svc := &upload.Service{
		Meta:      repo,
		Files:     files,
		Tables:    tables,
		Jobs:      pool,
		Runner:    pipeline,
		Inference: &inference.Engine{Logger: logger},
		Sanitizer: sanitize.New(sanitize.DefaultConfig()),
		Logger:    logger,
		Metrics:   sink,
	}

	srv := &api.Server{
		Uploads:    svc,
		Meta:       repo,
		Tables:     tables,
		Classifier: classify.New(classify.DefaultConfig()),
		Logger:     logger,
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go maintenanceLoop(rootCtx, cfg.Cleanup, svc, repo, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening addr=%s store=%s", cfg.Server.Addr, cfg.Store.Kind)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Printf("job pool shutdown: %v", err)
	}
	return nil
}

// openMetaDB connects with exponential backoff so the service survives the
// database coming up after it.
func openMetaDB(ctx context.Context, cfg config.Meta, logger *log.Logger) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "postgres" {
		driver = "pgx"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open meta db: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 6), ctx)
	err = backoff.Retry(func() error {
		if err := db.PingContext(ctx); err != nil {
			logger.Printf("meta db not ready, retrying: %v", err)
			return err
		}
		return nil
	}, policy)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping meta db: %w", err)
	}
	return db, nil
}

func metaDriver(name string) meta.Driver {
	if name == "sqlite" {
		return meta.DriverSQLite
	}
	return meta.DriverPostgres
}

// maintenanceLoop runs the staged-upload expiry sweep and import-job
// pruning until the root context ends.
func maintenanceLoop(ctx context.Context, cfg config.Cleanup, svc *upload.Service, repo *meta.Repository, logger *log.Logger) {
	sweep := cfg.UploadSweepEvery
	if sweep <= 0 {
		sweep = 10 * time.Minute
	}
	t := time.NewTicker(sweep)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := svc.CleanupExpired(ctx); err != nil {
				logger.Printf("expire sweep: %v", err)
			}
			cutoff := time.Now().Add(-cfg.JobRetention)
			if n, err := repo.PruneJobs(ctx, cutoff); err != nil {
				logger.Printf("prune jobs: %v", err)
			} else if n > 0 {
				logger.Printf("pruned jobs=%d", n)
			}
		}
	}
}
