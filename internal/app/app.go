package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"price-feed-observer/internal/alerting"
	"price-feed-observer/internal/calendar"
	"price-feed-observer/internal/checks"
	"price-feed-observer/internal/config"
	"price-feed-observer/internal/dispatch"
	"price-feed-observer/internal/evaluator"
	"price-feed-observer/internal/health"
	"price-feed-observer/internal/scheduler"
	"price-feed-observer/internal/service"
	"price-feed-observer/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newResolver parses and validates the check-rule tree.
func (a *App) newResolver() (*evaluator.Resolver, error) {
	resolver, err := evaluator.NewResolver(a.Config.Checks)
	if err != nil {
		return nil, err
	}
	if err := resolver.Validate(); err != nil {
		return nil, err
	}
	return resolver, nil
}

// newSenders builds the configured notification channels, split by
// delivery discipline. Channel names were validated at config load.
func (a *App) newSenders() (immediate, gated []alerting.Sender, err error) {
	for _, name := range a.Config.Alerting.Events {
		var sender alerting.Sender
		switch name {
		case "log":
			sender = alerting.NewLogSender(a.Logger)
		case "telegram":
			cfg := a.Config.Alerting.Telegram
			sender = alerting.NewTelegramSender(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
		case "zenduty":
			cfg := a.Config.Alerting.Zenduty
			sender = alerting.NewZendutySender(cfg.IntegrationKey, cfg.APIBase, 10*time.Second, a.Logger)
		case "kafka":
			cfg := a.Config.Alerting.Kafka
			sender, err = alerting.NewKafkaSender(alerting.KafkaOptions{
				Brokers:      cfg.Brokers,
				Topic:        cfg.Topic,
				WriteTimeout: cfg.WriteTimeout,
				MaxAttempts:  cfg.MaxAttempts,
			}, a.Logger)
			if err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, fmt.Errorf("unknown alert channel %q", name)
		}

		if alerting.IsGated(name) {
			gated = append(gated, sender)
		} else {
			immediate = append(immediate, sender)
		}
	}
	return immediate, gated, nil
}

// openStore opens the configured alert-state backend.
func (a *App) openStore(ctx context.Context) (storage.AlertStateStore, error) {
	switch a.Config.Storage.Backend {
	case "file":
		return storage.NewFileStore(a.Config.Storage.FilePath)
	case "postgres":
		return storage.NewPostgresStore(ctx, a.Config.Storage.Postgres)
	case "redis":
		return storage.NewRedisStore(ctx, a.Config.Storage.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.Config.Storage.Backend)
	}
}

// Validate checks configuration beyond what config.Load enforces,
// including the full check-rule tree. Used by the validate command.
func (a *App) Validate() error {
	_, err := a.newResolver()
	return err
}

// Run executes the long-running observer service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	resolver, err := a.newResolver()
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	immediate, gated, err := a.newSenders()
	if err != nil {
		return err
	}

	env := &checks.Env{
		Now:      func() time.Time { return time.Now().UTC() },
		Calendar: calendar.NewHoliday(),
		History:  checks.NewHistoryCache(a.Config.History.Capacity),
	}
	eval := evaluator.New(resolver, env, a.Logger)

	disp := dispatch.New(dispatch.Options{
		WindowInterval:  a.Config.Alerting.WindowInterval,
		ReAlertInterval: a.Config.Alerting.ReAlertInterval,
	}, resolver, immediate, gated, store, alerting.Context{
		Network: a.Config.App.Network,
	}, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	probe := health.NewServer(a.Config.Health.Addr, a.Logger)
	go probe.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = probe.Shutdown(shutdownCtx)
	}()

	source := service.NewFileSource(a.Config.Source.Path)
	svc := service.New(sched, source, eval, disp, store, probe.SetReady, a.Logger)
	svc.UsePublisherDirectory(a.Config.Publishers)

	a.Logger.Info().Str("network", a.Config.App.Network).Msg("starting observer service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("observer service stopped")
	return nil
}
