package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-ble/ble"
	"github.com/spf13/cobra"
	"github.com/srg/blepump/internal/link/goble"
	"github.com/srg/blepump/pkg/client"
)

// measureCmd represents the measure command
var measureCmd = &cobra.Command{
	Use:   "measure <device-address>",
	Short: "Measure throughput from a peripheral",
	Long: `Connect to a throughput peripheral, enable the stream and verify every received byte.

The rate and the pattern verification result are printed when the duration
elapses or on Ctrl+C. The command fails if the stream did not verify.`,
	Example: `  blepump measure AA:BB:CC:DD:EE:FF
  blepump measure AA:BB:CC:DD:EE:FF --duration 30s --mtu 185`,
	Args: cobra.ExactArgs(1),
	RunE: runMeasure,
}

var (
	measureDuration time.Duration
	measureMTU      int
	measureTimeout  time.Duration
	measureFormat   string
)

func init() {
	measureCmd.Flags().DurationVarP(&measureDuration, "duration", "d", 10*time.Second, "Measurement duration (0 until Ctrl+C)")
	measureCmd.Flags().IntVar(&measureMTU, "mtu", 247, "ATT_MTU to request")
	measureCmd.Flags().DurationVar(&measureTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
	measureCmd.Flags().StringVarP(&measureFormat, "format", "f", "text", "Output format (text, yaml)")
}

func runMeasure(cmd *cobra.Command, args []string) error {
	if measureFormat != "text" && measureFormat != "yaml" {
		return fmt.Errorf("invalid format '%s': must be one of [text yaml]", measureFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := configureLogger(cmd, cfg, true)
	svcUUID, err := cfg.ServiceBLEUUID()
	if err != nil {
		return err
	}

	dev, err := goble.DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)
	defer func() { _ = dev.Stop() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := client.DefaultOptions(args[0], svcUUID)
	opts.MTU = measureMTU
	opts.ConnectTimeout = measureTimeout

	m, err := client.Connect(ctx, dev.Dial, opts, logger)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	runCtx := ctx
	if measureDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, measureDuration)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	status := NewStatusPrinter(out, func() string { return measureStatusLine(m.Report()) })
	status.Start()
	report, runErr := m.Run(runCtx, progressUpdateInterval, nil)
	status.Stop()

	if measureFormat == "yaml" {
		if err := printYAML(out, report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if runErr != nil {
		return runErr
	}
	if !report.Verifier.OK() {
		return ErrVerificationFailed
	}
	return nil
}

func measureStatusLine(r client.Report) string {
	return fmt.Sprintf("%s mtu=%d received=%d %s",
		r.Elapsed.Round(time.Second), r.MTU, r.Verifier.Bytes, formatRate(r.BytesPerSecond()))
}
