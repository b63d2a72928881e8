package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blepump/internal/throughput"
)

// patternCmd represents the pattern command
var patternCmd = &cobra.Command{
	Use:   "pattern",
	Short: "Print the notification pattern",
	Long: `Print the byte pattern the peripheral streams, as a hex dump.

Byte n of the stream is derived from a counter c = start + n modulo 131072:
even counters yield bits 1..8 of c, odd counters yield bits 9..16.`,
	Example: `  blepump pattern --length 64
  blepump pattern --start 131000 --length 200`,
	RunE: runPattern,
}

var (
	patternStart  uint32
	patternLength int
)

func init() {
	patternCmd.Flags().Uint32Var(&patternStart, "start", 0, "Starting counter")
	patternCmd.Flags().IntVarP(&patternLength, "length", "l", 64, "Number of bytes")
}

func runPattern(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	if patternLength < 0 {
		return fmt.Errorf("length must not be negative")
	}
	if patternStart >= throughput.PatternModulus {
		return fmt.Errorf("start must be below %d", throughput.PatternModulus)
	}

	gen := throughput.NewPatternGenerator(patternStart)
	buf := gen.NextBuffer(patternLength)

	out := cmd.OutOrStdout()
	fmt.Fprint(out, hex.Dump(buf))
	dimColor.Fprintf(out, "next counter: %d\n", gen.Counter())
	return nil
}
