package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rosterlabs/rosterwatch/internal/adapter"
	"github.com/rosterlabs/rosterwatch/internal/config"
	"github.com/rosterlabs/rosterwatch/internal/gateway"
	"github.com/rosterlabs/rosterwatch/internal/monitor"
	"github.com/rosterlabs/rosterwatch/internal/notify"
	"github.com/rosterlabs/rosterwatch/internal/notify/email"
	"github.com/rosterlabs/rosterwatch/internal/query"
	"github.com/rosterlabs/rosterwatch/internal/schema"
	"github.com/rosterlabs/rosterwatch/internal/state"
)

type configKey struct{}
type loggerKey struct{}

// WithConfig stores the loaded config in the command context.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// WithLogger stores the logger in the command context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// getConfig retrieves the config from the command context.
func getConfig(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

// getLogger retrieves the logger from the command context.
func getLogger(cmd *cobra.Command) *slog.Logger {
	if l, ok := cmd.Context().Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// App bundles the wired components a command needs. Datastore connections
// are opened lazily; Close releases whatever was opened.
type App struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    *state.SQLiteStore
	Registry *schema.Registry
	Compiler *query.Compiler

	db adapter.Adapter
	gw *gateway.Gateway
}

// OpenApp opens the state store and builds the compiler.
func OpenApp(cmd *cobra.Command) (*App, error) {
	cfg := getConfig(cmd)
	logger := getLogger(cmd)

	if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := schema.Default()
	return &App{
		Cfg:      cfg,
		Logger:   logger,
		Store:    store,
		Registry: reg,
		Compiler: query.NewCompiler(reg),
	}, nil
}

// Gateway connects the datastore adapter on first use.
func (a *App) Gateway(ctx context.Context) (*gateway.Gateway, error) {
	if a.gw != nil {
		return a.gw, nil
	}

	db, err := adapter.New(a.Cfg.Target.Type)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, a.Cfg.Target.ToAdapterConfig()); err != nil {
		return nil, err
	}

	a.db = db
	a.gw = gateway.New(db, a.Logger)
	return a.gw, nil
}

// Scheduler wires the monitoring pipeline. The dispatcher is only attached
// when SMTP is configured; without it changes are still detected and
// persisted, just not mailed.
func (a *App) Scheduler(ctx context.Context) (*monitor.Scheduler, error) {
	gw, err := a.Gateway(ctx)
	if err != nil {
		return nil, err
	}

	interval, err := a.Cfg.Monitoring.IntervalDuration()
	if err != nil {
		return nil, err
	}

	var dispatcher *notify.Dispatcher
	if smtp := a.Cfg.SMTP; smtp != nil && smtp.Host != "" {
		sender, err := email.NewSMTPSender(smtp.Host, smtp.Port, smtp.Username, smtp.Password)
		if err != nil {
			return nil, err
		}
		dispatcher = notify.NewDispatcher(sender, smtp.From, a.Logger)
	} else {
		a.Logger.Debug("smtp not configured, notifications disabled")
	}

	return monitor.New(monitor.Config{
		Store:         a.Store,
		Gateway:       gw,
		Compiler:      a.Compiler,
		Dispatcher:    dispatcher,
		Recipients:    a.Cfg.Monitoring.Recipients,
		Interval:      interval,
		KeepSnapshots: a.Cfg.Monitoring.KeepSnapshots,
		Logger:        a.Logger,
	}), nil
}

// Close releases everything the app opened.
func (a *App) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
