// -- cmd/bulk.go --
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/observability"
	"github.com/urlverdict/verdict-cli/internal/scan"
	"github.com/urlverdict/verdict-cli/internal/service"
)

func newBulkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk <file.csv>",
		Short: "Scan every URL in the first column of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBulk,
	}
	cmd.Flags().StringP("output", "o", "", "write results to a file instead of stdout")
	return cmd
}

func runBulk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Get()
	logger := observability.GetLogger()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	urls, err := scan.URLsFromCSV(f)
	if err != nil {
		return fmt.Errorf("failed to parse CSV: %w", err)
	}
	logger.Info("Loaded URLs from CSV", zap.String("file", args[0]), zap.Int("count", len(urls)))

	components, err := service.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scanner: %w", err)
	}
	defer components.Shutdown()

	batch, err := components.Orchestrator.ScanBatch(ctx, urls, cfg.Engine.BulkBatchCap)
	if err != nil {
		return err
	}

	out := os.Stdout
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		out, err = os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()
	}

	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(batch)
}
