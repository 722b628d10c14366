package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/King-Chau/mozi/internal/mcp"
	"github.com/King-Chau/mozi/internal/tools"
)

const version = "0.3.0"

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol server",
	}
	cmd.AddCommand(mcpServeCmd())
	return cmd
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the scheduler tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries JSON-RPC; logs must go to stderr only.
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

			rt, err := buildRuntime(loadConfig(), nil)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.service.Start(); err != nil {
				return err
			}
			defer rt.service.Stop()

			registry := tools.NewRegistry()
			for _, t := range tools.NewCronTools(rt.service).Tools() {
				if err := registry.Register(t); err != nil {
					return err
				}
			}

			return mcp.NewServer("mozi", version, registry).ServeStdio()
		},
	}
}
