package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/King-Chau/mozi/internal/config"
)

var cfgPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mozi",
		Short: "mozi, a multi-channel chatbot gateway with a durable scheduler",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging()
		},
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.mozi/config.json5)")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(cronCmd())
	cmd.AddCommand(mcpCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultPath()
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func initLogging() {
	level := slog.LevelInfo
	if cfg, err := config.Load(resolveConfigPath()); err == nil {
		switch cfg.Log.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
