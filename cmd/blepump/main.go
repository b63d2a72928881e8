package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blepump",
	Short: "BLE notification throughput peripheral",
	Long: `BLE throughput tool that provides:

- A GATT peripheral streaming a verifiable byte pattern as fast as the link allows
- A measuring central that enables the stream and reports rate and integrity
- An in-process self test running both ends without Bluetooth hardware

Useful for comparing BLE stacks, radios and connection parameters.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("blepump %s (commit %s, built %s)\n", formatVersion(version), commit, date))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(measureCmd)
	rootCmd.AddCommand(selftestCmd)
	rootCmd.AddCommand(patternCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging (--log-level takes precedence)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
