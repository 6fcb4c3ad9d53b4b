// -- cmd/serve.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/observability"
	"github.com/urlverdict/verdict-cli/internal/server"
	"github.com/urlverdict/verdict-cli/internal/service"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP scan API",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Get()
	logger := observability.GetLogger()

	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.Server.Addr = addr
		config.Set(cfg)
	}

	components, err := service.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scanner: %w", err)
	}
	defer components.Shutdown()

	srv := server.NewServer(cfg.Server, cfg.Engine, components.Orchestrator, logger)
	return srv.ListenAndServe(ctx)
}
