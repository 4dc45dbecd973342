// Command pipeline runs the full cleaning pipeline over the built-in
// fixture universe: schema and time normalization, deduplication, gap
// classification and repair, resampling, and quality reporting, with the
// results persisted to the configured stores.
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

	"github.com/rs/zerolog"

	"market-etl-lab/internal/config"
	"market-etl-lab/internal/logging"
	"market-etl-lab/internal/observability"
	"market-etl-lab/internal/orchestrator"
	"market-etl-lab/internal/pipeline"
	"market-etl-lab/internal/storage"
	chstore "market-etl-lab/internal/storage/clickhouse"
	"market-etl-lab/internal/storage/memory"
	"market-etl-lab/internal/storage/migrations"
	pgstore "market-etl-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration (defaults apply when empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cal, err := cfg.BuildCalendar()
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("")
		go serveMetrics(cfg.Metrics.Addr, log)
	}

	bars, reports, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	orch, err := orchestrator.New(orchestrator.Options{
		BarStore:    bars,
		ReportStore: reports,
		Config:      cfg,
		Calendar:    cal,
		Logger:      log,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}

	inputs := pipeline.Fixtures()
	log.Info().Int("symbols", len(inputs)).Int("workers", cfg.Workers).Msg("starting pipeline")

	started := time.Now()
	result, err := orch.Run(ctx, inputs)
	if err != nil {
		return err
	}

	log.Info().
		Int("symbols", result.SymbolsProcessed).
		Int("bars_stored", result.BarsStored).
		Int("reports_stored", result.ReportsStored).
		Dur("elapsed", time.Since(started)).
		Msg("pipeline finished")
	for _, e := range result.Errors {
		log.Warn().Str("error", e).Msg("symbol failed")
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d of %d symbols failed", len(result.Errors), result.SymbolsProcessed)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadWithEnv(path)
}

// buildStores selects the persistence backends. The memory backend needs
// no external services; clickhouse persists bars (and reports too, when a
// postgres DSN is configured); postgres persists only reports.
func buildStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.BarStore, storage.ReportStore, func(), error) {
	cleanup := func() {}

	switch cfg.Storage.Backend {
	case "memory":
		return memory.NewBarStore(), memory.NewReportStore(), cleanup, nil

	case "clickhouse":
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("clickhouse: %w", err)
		}
		bars := chstore.NewBarStore(conn)

		if cfg.Storage.PostgresDSN == "" {
			log.Warn().Msg("no postgres DSN configured, quality reports stay in memory")
			return bars, memory.NewReportStore(), func() { conn.Close() }, nil
		}
		pool, reports, err := postgresReports(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			conn.Close()
			return nil, nil, cleanup, err
		}
		return bars, reports, func() { pool.Close(); conn.Close() }, nil

	case "postgres":
		pool, reports, err := postgresReports(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, cleanup, err
		}
		log.Info().Msg("bars stay in memory, quality reports go to postgres")
		return memory.NewBarStore(), reports, func() { pool.Close() }, nil

	default:
		return nil, nil, cleanup, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func postgresReports(ctx context.Context, dsn string) (*pgstore.Pool, storage.ReportStore, error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	return pool, pgstore.NewReportStore(pool), nil
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
