package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/eva-cli/internal/trends"
)

var (
	validateNoCache   bool
	validateTimeframe string
	validateFormat    string
)

var validateCmd = &cobra.Command{
	Use:   "validate <brand>",
	Short: "Check a brand's Google Trends search interest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("validate"); err != nil {
			return err
		}
		if err := checkFormat(validateFormat); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res := initValidator().Lookup(ctx, args[0], trends.LookupOptions{
			Timeframe: validateTimeframe,
			UseCache:  !validateNoCache,
		})
		return formatTrendsResult(os.Stdout, res, validateFormat)
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateNoCache, "no-cache", false, "bypass the result cache")
	validateCmd.Flags().StringVar(&validateTimeframe, "timeframe", "", "Trends timeframe (default from config)")
	validateCmd.Flags().StringVar(&validateFormat, "format", formatTable, "output format: table or json")
	rootCmd.AddCommand(validateCmd)
}
