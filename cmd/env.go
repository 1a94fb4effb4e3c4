package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/mapping"
	"github.com/sells-group/recon-cli/internal/oracle"
	"github.com/sells-group/recon-cli/internal/reconcile"
	"github.com/sells-group/recon-cli/internal/store"
	anthropicpkg "github.com/sells-group/recon-cli/pkg/anthropic"
)

// engineEnv holds the store and engine used by the session commands.
type engineEnv struct {
	Store  store.Store
	Engine *reconcile.Engine
}

// Close releases resources held by the environment.
func (ee *engineEnv) Close() {
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initOracle builds the configured oracle wrapped in its guard.
func initOracle() (oracle.Oracle, error) {
	var base oracle.Oracle
	switch cfg.Oracle.Provider {
	case "claude":
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)
		base = oracle.NewClaude(client, cfg.Anthropic)
	case "heuristic":
		base = oracle.NewHeuristic(cfg.Thresholds.Tolerance())
	default:
		return nil, eris.Errorf("unsupported oracle provider: %s", cfg.Oracle.Provider)
	}
	return oracle.NewGuard(base, cfg.Oracle), nil
}

// initEngine sets up the store, the oracle and the engine. mode is passed
// to Config.Validate. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// Store-only commands never call the oracle; the heuristic keeps them
	// free of API keys.
	var o oracle.Oracle = oracle.NewHeuristic(cfg.Thresholds.Tolerance())
	if mode != "store" {
		o, err = initOracle()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	gen := mapping.NewGenerator(cfg.Thresholds, oracle.AsScorer(o), cfg.Executor.Concurrency)
	exec := reconcile.NewExecutor(o, cfg.Thresholds, cfg.Executor)
	timeout := time.Duration(cfg.Executor.RunTimeoutSecs) * time.Second
	eng := reconcile.NewEngine(st, gen, exec, timeout)

	zap.L().Debug("engine initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("oracle", cfg.Oracle.Provider),
		zap.Int("batch_size", cfg.Executor.BatchSize),
		zap.Int("concurrency", cfg.Executor.Concurrency),
	)

	return &engineEnv{Store: st, Engine: eng}, nil
}
