// -- cmd/scan.go --
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/observability"
	"github.com/urlverdict/verdict-cli/internal/service"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <url> [url...]",
		Short: "Scan one or more URLs and print the verdicts as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runScan,
	}
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Get()
	logger := observability.GetLogger()

	components, err := service.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scanner: %w", err)
	}
	defer components.Shutdown()

	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if len(args) == 1 {
		result, err := components.Orchestrator.ScanOne(ctx, args[0])
		if err != nil {
			return err
		}
		return enc.Encode(result)
	}

	batch, err := components.Orchestrator.ScanBatch(ctx, args, cfg.Engine.InteractiveBatchCap)
	if err != nil {
		return err
	}
	return enc.Encode(batch)
}
