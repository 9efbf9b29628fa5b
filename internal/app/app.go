package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horde-monitor/internal/alerting"
	"horde-monitor/internal/config"
	"horde-monitor/internal/horde"
	"horde-monitor/internal/httpserver"
	"horde-monitor/internal/service"
	"horde-monitor/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, configPath string, logger zerolog.Logger) *App {
	return &App{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     logger.With().Str("component", "app").Logger(),
	}
}

func (a *App) newClient() *horde.Client {
	return horde.NewClient(horde.Options{
		BaseURL:     a.Config.Horde.BaseURL,
		ClientAgent: a.Config.Horde.ClientAgent,
		Timeout:     a.Config.Horde.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var out alerting.Fanout
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		out = append(out, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (a *App) channels() []string {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		return []string{"telegram"}
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database not configured; cannot " + action)
	}
	return store, closeStore, nil
}

func (a *App) newService(source horde.SampleSource, gens horde.GenerationAPI, store *storage.Store) (*service.Service, error) {
	opts := service.Options{
		Source:      source,
		Generations: gens,
		Notifier:    a.newNotifier(),
		Channels:    a.channels(),
		Credential:  a.Config.Horde.APIKey,
		Interval:    a.Config.Monitor.Interval,
		Period:      a.Config.Monitor.Period,
		ExportDir:   a.Config.Export.Dir,
		AutoStart:   a.Config.Monitor.AutoStart,
	}
	if store != nil {
		opts.Store = store
		opts.Halts = store
	}
	return service.New(opts, a.Logger)
}

// Run executes the long-running monitoring service and, when enabled, the
// HTTP API next to it.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; archive disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	client := a.newClient()
	svc, err := a.newService(client, client, store)
	if err != nil {
		return err
	}

	if a.ConfigPath != "" {
		if err := config.Watch(a.ConfigPath, a.Logger, func(cfg *config.Config) {
			svc.ApplyConfig(ctx, cfg)
		}); err != nil {
			a.Logger.Warn().Err(err).Msg("config watch disabled")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	if a.Config.Server.Enabled {
		srv := httpserver.NewServer(a.Config.Server.Addr, svc, a.Logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	a.Logger.Info().Msg("starting monitoring service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// BackfillOptions configure importing exported CSV files into the archive.
type BackfillOptions struct {
	Paths  []string
	DryRun bool
}
