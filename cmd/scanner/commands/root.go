package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose   bool
	logFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scanner",
	Short: "Scan scheduling engine - 병렬 종목 스캔 / 백테스트",
	Long: `Scan Scheduling Engine CLI

종목 유니버스를 조건식으로 병렬 스캔하고,
과거 N 거래일에 대해 백테스트 원장을 만듭니다.

Usage:
  go run ./cmd/scanner [command]

Examples:
  go run ./cmd/scanner scan --family momentum --exchange KOSPI --quota 50
  go run ./cmd/scanner scan --family momentum --then breakout:period=20
  go run ./cmd/scanner backtest --family breakout --days 60
  go run ./cmd/scanner monitor --family volume_surge
  go run ./cmd/scanner universe --exchange KOSDAQ`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// config.Load is the only reader of the environment; flags feed it
		if verbose {
			os.Setenv("LOG_LEVEL", "debug")
		}
		if logFormat != "" {
			os.Setenv("LOG_FORMAT", logFormat)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "json | console (default from LOG_FORMAT)")
}
