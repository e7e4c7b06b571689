package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/config"
	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/logging"
	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/migration"
	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/platform/archivesspace"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is everything a command needs, built from the loaded config.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	client   *archivesspace.Client
	registry *prometheus.Registry
	metrics  *migration.Metrics
	journal  migration.Journal
	pool     *pgxpool.Pool
}

func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = logging.Level(cfg.LogLevel, opts.quiet, opts.debug)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	client, err := archivesspace.NewClient(archivesspace.Config{
		BaseURL:           cfg.BackendURL,
		Username:          cfg.Username,
		Password:          cfg.Password,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	a := &app{
		cfg:      cfg,
		log:      logger,
		client:   client,
		registry: registry,
		metrics:  migration.NewMetrics(registry),
	}

	if cfg.DatabaseDSN != "" {
		pool, err := openJournalDB(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("run journal in database", zap.String("dsn", redactDSN(cfg.DatabaseDSN)))
		a.pool = pool
		a.journal = migration.NewPostgresJournal(pool)
	} else {
		a.journal = migration.NewLogJournal(logger)
	}

	logger.Info("initialized",
		zap.String("backend_url", cfg.BackendURL),
		zap.String("username", cfg.Username),
		zap.Bool("commit", cfg.Commit),
		zap.String("page_mode", cfg.PageMode),
	)
	return a, nil
}

func (a *app) runnerConfig() migration.RunnerConfig {
	return migration.RunnerConfig{
		Commit:     a.cfg.Commit,
		PageMode:   a.cfg.PageMode,
		BatchSize:  a.cfg.BatchSize,
		SweepDelay: a.cfg.SweepDelay,
	}
}

// close flushes metrics and releases the journal database. It is safe to
// call after a failed run.
func (a *app) close() {
	if a.cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry); err != nil {
			a.log.Warn("failed to write metrics file", zap.String("path", a.cfg.MetricsFile), zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.log.Sync()
}

func openJournalDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot create db pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot ping database (%s): %w", redactDSN(dsn), err)
	}
	return pool, nil
}

func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}
