// Package app wires the gateway's concrete dependencies — the Postgres
// pool, the LLM client, the schema registry, and the pipeline stages —
// into a single Coordinator the HTTP surface can call. It depends on
// net/http nothing; internal/httpapi depends on it, not the reverse.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aiuser8/thallos-llm-service/internal/cache"
	"github.com/Aiuser8/thallos-llm-service/internal/config"
	"github.com/Aiuser8/thallos-llm-service/internal/coordinator"
	apperrors "github.com/Aiuser8/thallos-llm-service/internal/errors"
	"github.com/Aiuser8/thallos-llm-service/internal/executor"
	"github.com/Aiuser8/thallos-llm-service/internal/llmclient"
	"github.com/Aiuser8/thallos-llm-service/internal/logging"
	"github.com/Aiuser8/thallos-llm-service/internal/planner"
	"github.com/Aiuser8/thallos-llm-service/internal/rewriter"
	"github.com/Aiuser8/thallos-llm-service/internal/schema"
)

// App holds every long-lived dependency the gateway needs for the life
// of the process. Close releases the pool and stops the plan cache's
// background cleanup.
type App struct {
	Config      *config.Config
	Pool        *pgxpool.Pool
	Schema      *schema.Registry
	Coordinator *coordinator.Coordinator
	planCache   *cache.PlanCache
}

// New builds an App from cfg: connects to Postgres, verifies the
// declared schema against it, and wires the planner (or its fallback,
// if no LLM API key is configured) into a Coordinator.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var reg *schema.Registry

	loadErr := logging.LoggerMiddleware("schema_load", func() error {
		var err error
		reg, err = schema.Load(ctx, cfg.Database.SchemaFile, schema.PoolQuerier{Pool: pool})
		return err
	})
	if loadErr != nil {
		pool.Close()
		return nil, apperrors.Wrap(loadErr, apperrors.ErrTypeConfig, "verifying declared schema against live database")
	}

	statementTimeout, err := time.ParseDuration(cfg.Database.StatementTimeout)
	if err != nil {
		pool.Close()
		return nil, apperrors.NewConfigError("invalid database.statement_timeout", "database.statement_timeout")
	}

	exec := executor.New(executor.PoolAdapter{Pool: pool}, statementTimeout, cfg.Debug.SQL)

	coordCfg := coordinator.Config{
		Schema:         reg,
		Executor:       exec,
		RewriterConfig: rewriterConfigFor(reg),
		MaxLimit:       cfg.Guard.MaxLimit,
	}

	if cfg.LLM.APIKey != "" {
		llmTimeout, err := time.ParseDuration(cfg.LLM.Timeout)
		if err != nil {
			pool.Close()
			return nil, apperrors.NewConfigError("invalid llm.timeout", "llm.timeout")
		}

		client := llmclient.New(llmclient.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     llmTimeout,
		})

		// Assigning the concrete *llmclient.Client only when it exists
		// keeps coordCfg.LLM a true nil interface in fallback mode,
		// avoiding the typed-nil-interface trap Summarize guards against.
		coordCfg.Planner = planner.New(client)
		coordCfg.LLM = client

		logging.Info("planner backed by live LLM client")
	} else {
		coordCfg.FallbackPlanner = planner.NewFallbackPlanner("public.market_data")

		logging.Warn("no LLM_API_KEY configured, running in degraded fallback-planner mode")
	}

	planCache, err := cache.NewPlanCache(
		cfg.Cache.Directory,
		cfg.Cache.MaxSizeMB,
		time.Duration(cfg.Cache.TTLMinutes)*time.Minute,
		mustParseDuration(cfg.Cache.CleanupFreq),
	)
	if err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrTypeConfig, "initializing plan cache")
	}

	coordCfg.PlanCache = planCache
	coordCfg.PlanCacheTTL = time.Duration(cfg.Cache.TTLMinutes) * time.Minute

	coord := coordinator.New(coordCfg)

	return &App{
		Config:      cfg,
		Pool:        pool,
		Schema:      reg,
		Coordinator: coord,
		planCache:   planCache,
	}, nil
}

// Close releases the connection pool and stops the plan cache's
// background cleanup goroutine.
func (a *App) Close() {
	if a.planCache != nil {
		_ = a.planCache.Close()
	}

	if a.Pool != nil {
		a.Pool.Close()
	}
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	maxLifetime, err := time.ParseDuration(cfg.Database.MaxConnLifetime)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid database.max_conn_lifetime", "database.max_conn_lifetime")
	}

	maxIdle, err := time.ParseDuration(cfg.Database.MaxConnIdleTime)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid database.max_conn_idle_time", "database.max_conn_idle_time")
	}

	healthCheck, err := time.ParseDuration(cfg.Database.HealthCheckPeriod)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid database.health_check_period", "database.health_check_period")
	}

	connectTimeout, err := time.ParseDuration(cfg.Database.ConnectTimeout)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid database.connect_timeout", "database.connect_timeout")
	}

	return executor.NewPool(ctx, executor.PoolConfig{
		DSN:               cfg.Database.DSN,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   maxLifetime,
		MaxConnIdleTime:   maxIdle,
		HealthCheckPeriod: healthCheck,
		ConnectTimeout:    connectTimeout,
	})
}

// rewriterConfigFor builds the HeuristicRewriter's bounded-column and
// time-series knowledge. The candidate bounded [0,1] columns
// (utilization, borrow_apy, supply_apy on public.market_data) and the
// time-series spec for public.market_data_minutely are fixed here; the
// declared schema only decides which of them are kept.
func rewriterConfigFor(reg *schema.Registry) rewriter.Config {
	bounded := map[string]struct{}{}

	for _, name := range []string{"utilization", "borrow_apy", "supply_apy"} {
		if spec, ok := reg.Table("public.market_data"); ok {
			for _, c := range spec.Columns {
				if c.Name == name {
					bounded[name] = struct{}{}
				}
			}
		}
	}

	var timeSeries []rewriter.TimeSeriesSpec
	if _, ok := reg.Table("public.market_data_minutely"); ok {
		timeSeries = append(timeSeries, rewriter.TimeSeriesSpec{
			Table:     "public.market_data_minutely",
			MetricCol: "utilization",
			DimCols:   []string{"protocol", "symbol"},
		})
	}

	return rewriter.Config{Bounded01Columns: bounded, TimeSeries: timeSeries}
}

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 5 * time.Minute
	}

	return d
}
