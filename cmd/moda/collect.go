package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhumphrey11/moda-trading/internal/logger"
)

var collectCmd = &cobra.Command{
	Use:       "collect [news|intraday|daily|fundamentals|full]",
	Short:     "Run one collection stage and exit",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"news", "intraday", "daily", "fundamentals", "full"},
	RunE:      runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	application, err := buildApp(cfg, log)
	if err != nil {
		return fmt.Errorf("building application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var result any
	switch args[0] {
	case "news":
		result, err = application.orchestrator.CollectNews(ctx)
	case "intraday":
		result, err = application.orchestrator.CollectIntraday(ctx)
	case "daily":
		result, err = application.orchestrator.CollectDaily(ctx)
	case "fundamentals":
		result, err = application.orchestrator.CollectFundamentals(ctx)
	case "full":
		result, err = application.orchestrator.RunFullCycle(ctx)
	default:
		return fmt.Errorf("unknown stage %q", args[0])
	}
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
