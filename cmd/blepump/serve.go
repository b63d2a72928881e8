package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blepump/internal/diag"
	"github.com/srg/blepump/internal/link/goble"
	"github.com/srg/blepump/internal/throughput"
	"github.com/srg/blepump/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the throughput peripheral",
	Long: `Advertise the throughput service and stream the pattern to the connected central.

The peripheral accepts one connection at a time. A central subscribes to the
data characteristic and writes 01 01 to the control characteristic to start the
stream, 01 00 to stop it. Counters and recent events are printed on exit.`,
	Example: `  blepump serve
  blepump serve --name Bench --max-mtu 185
  blepump serve --config blepump.yaml --persist-streaming`,
	RunE: runServe,
}

var (
	serveName             string
	serveMaxMTU           uint16
	serveIdleInterval     time.Duration
	servePersistStreaming bool
	serveStatus           bool
)

func init() {
	serveCmd.Flags().StringVarP(&serveName, "name", "n", "", "Advertised device name (overrides config)")
	serveCmd.Flags().Uint16Var(&serveMaxMTU, "max-mtu", 0, "Largest ATT_MTU to accept (overrides config)")
	serveCmd.Flags().DurationVar(&serveIdleInterval, "idle-interval", 0, "Pump poll interval while not streaming (overrides config)")
	serveCmd.Flags().BoolVar(&servePersistStreaming, "persist-streaming", false, "Keep streaming enabled across reconnects")
	serveCmd.Flags().BoolVar(&serveStatus, "status", true, "Show a live status line")
}

// applyServeFlags overrides cfg with the flags that were set
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("name") {
		cfg.DeviceName = serveName
	}
	if cmd.Flags().Changed("max-mtu") {
		cfg.MaxMTU = serveMaxMTU
	}
	if cmd.Flags().Changed("idle-interval") {
		cfg.IdleInterval = serveIdleInterval
	}
	if cmd.Flags().Changed("persist-streaming") {
		cfg.PersistStreaming = servePersistStreaming
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	logger := configureLogger(cmd, cfg, false)
	rec, err := diag.NewRecorder(logger, cfg.HistorySize)
	if err != nil {
		return err
	}
	svcUUID, err := cfg.ServiceBLEUUID()
	if err != nil {
		return err
	}

	dev, err := goble.DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}

	adapter := goble.NewPeripheral(dev, goble.Options{
		Name:        cfg.DeviceName,
		ServiceUUID: svcUUID,
		Logger:      logger,
	})
	core := throughput.NewPeripheral(adapter, adapter, cfg.PeripheralOptions(logger, rec))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := adapter.Attach(ctx, core); err != nil {
		_ = dev.Stop()
		return err
	}

	logger.WithFields(logrus.Fields{
		"name":    cfg.DeviceName,
		"service": svcUUID.String(),
		"max_mtu": cfg.MaxMTU,
	}).Info("Throughput peripheral starting")

	out := cmd.OutOrStdout()
	var status *StatusPrinter
	if serveStatus {
		status = NewStatusPrinter(out, func() string { return serveStatusLine(core) })
		status.Start()
	}

	err = core.Run(ctx)

	if status != nil {
		status.Stop()
	}
	if stopErr := adapter.Stop(); stopErr != nil {
		logger.WithError(stopErr).Warn("Failed to stop BLE device")
	}

	printServeSummary(out, core.Stats(), rec)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveStatusLine renders the live status of the peripheral
func serveStatusLine(core *throughput.Peripheral) string {
	s := core.Stats()
	state := core.Connections().State().String()
	if core.Streaming() {
		state = "streaming"
	}
	return fmt.Sprintf("%-11s mtu=%-3d sent=%d %s",
		state, core.MTU().Current(), s.Bytes, formatRate(s.BytesPerSecond()))
}

func printServeSummary(out io.Writer, stats throughput.StatsSnapshot, rec *diag.Recorder) {
	stats.Elapsed = stats.Elapsed.Round(time.Millisecond)
	fmt.Fprintln(out, "Summary:")
	if err := printYAML(out, stats); err != nil {
		fmt.Fprintf(out, "  failed to render stats: %v\n", err)
	}
	fmt.Fprintf(out, "rate: %s\n", formatRate(stats.BytesPerSecond()))
	printHistory(out, rec)
}
