package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/King-Chau/mozi/internal/bus"
	"github.com/King-Chau/mozi/internal/config"
	"github.com/King-Chau/mozi/internal/cron"
	"github.com/King-Chau/mozi/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway with the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint != "" {
		shutdown, err := tracing.Setup(ctx, tracing.Config{
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    true,
			ServiceName: cfg.Telemetry.ServiceName,
		})
		if err != nil {
			slog.Warn("tracing setup failed", "error", err)
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					slog.Warn("tracing shutdown failed", "error", err)
				}
			}()
		}
	}

	eventBus := bus.New()
	eventBus.Subscribe(func(evt cron.Event) {
		attrs := []any{"kind", evt.Kind, "job", evt.Job.ID, "name", evt.Job.Name}
		if evt.Result != nil {
			attrs = append(attrs, "status", evt.Result.Status)
		}
		slog.Info("job event", attrs...)
	})

	rt, err := buildRuntime(cfg, nil)
	if err != nil {
		return err
	}
	defer rt.close()
	rt.service.SetEventSink(eventBus.Publish)

	if !cfg.Cron.Enabled {
		slog.Info("scheduler disabled by config, idling")
		<-ctx.Done()
		return nil
	}

	if err := rt.service.Start(); err != nil {
		return err
	}

	watcher, err := config.NewWatcher(resolveConfigPath())
	if err == nil {
		watcher.OnChange(func(newCfg *config.Config) {
			rt.executor.SetDefaultChannel(newCfg.Delivery.DefaultChannel)
			if newCfg.Cron.TickIntervalMs != cfg.Cron.TickIntervalMs {
				// The tick loop reads its interval once at Start.
				slog.Warn("tick interval change requires a restart")
			}
			slog.Info("config reloaded", "defaultChannel", newCfg.Delivery.DefaultChannel)
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watcher start failed", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("mozi serving", "store", cfg.Cron.StorePath)
	<-ctx.Done()

	slog.Info("shutting down")
	rt.service.Stop()
	return nil
}
