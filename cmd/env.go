package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/conjoint-cli/internal/engine"
	"github.com/sells-group/conjoint-cli/internal/extract"
	"github.com/sells-group/conjoint-cli/internal/store"
	"github.com/sells-group/conjoint-cli/internal/workflow"
	"github.com/sells-group/conjoint-cli/pkg/anthropic"
)

// appEnv bundles the wired application dependencies for a command run.
type appEnv struct {
	Store     store.Store
	Service   *workflow.Service
	Extractor *extract.Extractor
}

// initEnv validates the configuration for the given mode and wires the
// store, computation engine, and workflow service.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	remote := engine.NewRemoteComputer(cfg.Engine.BaseURL, cfg.Engine.Timeout(), cfg.Engine.MaxAttempts)
	local := engine.NewLocalComputer(cfg.Estimator.BinPath, cfg.Estimator.Timeout())
	orch := engine.NewOrchestrator(remote, local, cfg.Engine.BaseURL, cfg.Engine.DisableFallback)

	env := &appEnv{
		Store:   st,
		Service: workflow.NewService(st, orch, cfg.Data.Dir),
	}
	if cfg.Anthropic.Key != "" {
		env.Extractor = extract.NewExtractor(
			anthropic.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic.Model,
			cfg.Anthropic.RequestsPerMinute,
		)
	}

	zap.L().Debug("environment initialized",
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("engine", cfg.Engine.BaseURL),
		zap.Bool("extractor", env.Extractor != nil),
	)
	return env, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close", zap.Error(err))
	}
}
