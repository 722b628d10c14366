package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/King-Chau/mozi/internal/channels"
	"github.com/King-Chau/mozi/internal/config"
	"github.com/King-Chau/mozi/internal/cron"
	"github.com/King-Chau/mozi/internal/delivery"
	"github.com/King-Chau/mozi/internal/store/file"
	"github.com/King-Chau/mozi/internal/store/sqlite"
)

// runtime holds the wired scheduler stack shared by serve, mcp, and the
// one-shot cron commands.
type runtime struct {
	cfg      *config.Config
	registry *channels.Registry
	executor *cron.Executor
	service  *cron.Service
	runLog   *sqlite.RunLogStore
}

// buildRuntime wires store, channels, delivery, executor, and scheduler from
// config. agent may be nil; agent-turn jobs are then recorded as skipped.
func buildRuntime(cfg *config.Config, agent cron.AgentExecutor) (*runtime, error) {
	registry := channels.NewRegistry(cfg.Delivery.SendRatePerMinute, cfg.Delivery.SendBurst)
	if err := registry.Register(channels.NewWebchat()); err != nil {
		return nil, err
	}

	deliverySvc := delivery.NewService(registry)
	exec := cron.NewExecutor(agent, deliverySvc, registry, cfg.Delivery.DefaultChannel)

	store := file.NewJobStore(cfg.Cron.StorePath)
	retry := cron.DefaultRetryConfig()
	retry.MaxRetries = cfg.Cron.MaxRetries

	svc := cron.NewService(cron.Config{
		TickInterval:      cfg.Cron.TickInterval(),
		MaxConcurrentRuns: int64(cfg.Cron.MaxConcurrentRuns),
		Retry:             retry,
	}, store, exec, nil, nil)

	rt := &runtime{cfg: cfg, registry: registry, executor: exec, service: svc}
	if cfg.Cron.RunLogDB != "" {
		runLog, err := sqlite.NewRunLogStore(cfg.Cron.RunLogDB)
		if err != nil {
			return nil, fmt.Errorf("run log store: %w", err)
		}
		svc.SetRunLogStore(runLog)
		rt.runLog = runLog
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.runLog != nil {
		if err := rt.runLog.Close(); err != nil {
			slog.Warn("run log close failed", "error", err)
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
