package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/deepnoodle-ai/invoiceflow/policy"
	"github.com/deepnoodle-ai/invoiceflow/redisledger"
	"github.com/deepnoodle-ai/invoiceflow/sqlstore"
	"github.com/deepnoodle-ai/invoiceflow/stages"
	"github.com/deepnoodle-ai/invoiceflow/tools"
	"github.com/redis/go-redis/v9"
)

// App is a fully wired engine plus the resources backing it.
type App struct {
	Config    *invoiceflow.Config
	Engine    *invoiceflow.Engine
	Selection tools.Selection
	Logger    *slog.Logger

	StoreDriver string
	closers     []func() error
}

// OpenApp builds the engine described by cfg.
func OpenApp(ctx context.Context, cfg *invoiceflow.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	collaborators, selection, err := tools.Resolve(tools.NewRegistry(logger), tools.ResolveOptions{
		Hints:          cfg.Tools,
		PurchaseOrders: cfg.PurchaseOrders,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tools: %w", err)
	}
	app.Selection = selection

	store, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := app.openLedger(ctx, store)
	if err != nil {
		app.Close()
		return nil, err
	}

	var audit invoiceflow.StageLogger
	if cfg.AuditLogDir != "" {
		audit = invoiceflow.NewFileStageLogger(cfg.AuditLogDir)
	}

	engine, err := invoiceflow.NewEngine(invoiceflow.EngineOptions{
		Stages:        stages.All(policy.NewEngine()),
		Instances:     store,
		Checkpoints:   store,
		Ledger:        ledger,
		Collaborators: collaborators,
		Settings:      cfg.Settings,
		StageLogger:   audit,
		Logger:        logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Engine = engine
	return app, nil
}

// openStore opens the configured backend. An empty driver takes the
// provider selected for the db capability.
func (a *App) openStore(ctx context.Context) (invoiceflow.Store, error) {
	driver := a.Config.Store.Driver
	if driver == "" {
		driver = a.Selection.Provider(tools.DB)
	}
	a.StoreDriver = driver
	a.Logger.Debug("opening store", "driver", driver)

	switch driver {
	case "memory":
		return invoiceflow.NewMemoryStore(), nil
	case "file":
		return invoiceflow.NewFileStore(a.Config.Store.DSN)
	case "sqlite", "postgres":
		s, err := sqlstore.Open(ctx, driver, a.Config.Store.DSN, sqlstore.WithLogger(a.Logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", driver)
}

func (a *App) openLedger(ctx context.Context, store invoiceflow.Store) (invoiceflow.ReviewLedger, error) {
	if a.Config.Ledger.Driver != "redis" {
		return store, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: a.Config.Ledger.RedisAddr,
		DB:   a.Config.Ledger.RedisDB,
	})
	a.closers = append(a.closers, client.Close)
	ledger := redisledger.New(client,
		redisledger.WithKeyPrefix(a.Config.Ledger.KeyPrefix),
		redisledger.WithLogger(a.Logger))
	if err := ledger.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to redis ledger: %w", err)
	}
	return ledger, nil
}

// Close releases every resource opened by OpenApp.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
