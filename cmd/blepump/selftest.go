package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blepump/internal/diag"
	"github.com/srg/blepump/internal/groutine"
	"github.com/srg/blepump/internal/link/loopback"
	"github.com/srg/blepump/internal/throughput"
)

// selftestCmd represents the selftest command
var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the peripheral against an in-process central",
	Long: `Run the throughput peripheral over an in-process link, with no Bluetooth hardware.

Each round connects a central, negotiates the MTU, subscribes, enables the
stream and verifies the received pattern before disconnecting. A second
central is offered during the first round to check that it is rejected.`,
	Example: `  blepump selftest
  blepump selftest --rounds 3 --mtu 185 --duration 2s`,
	RunE: runSelftest,
}

var (
	selftestRounds   int
	selftestMTU      uint16
	selftestDuration time.Duration
	selftestLatency  time.Duration
)

func init() {
	selftestCmd.Flags().IntVar(&selftestRounds, "rounds", 2, "Connect/stream/disconnect rounds")
	selftestCmd.Flags().Uint16Var(&selftestMTU, "mtu", 247, "ATT_MTU the central requests")
	selftestCmd.Flags().DurationVarP(&selftestDuration, "duration", "d", time.Second, "Streaming time per round")
	selftestCmd.Flags().DurationVar(&selftestLatency, "latency", 100*time.Microsecond, "Simulated time per notification")
}

// selftestRound is the outcome of one round
type selftestRound struct {
	Peer     string
	MTU      uint16
	Largest  int
	Oversize uint64
	Result   throughput.VerifierResult
}

func runSelftest(cmd *cobra.Command, _ []string) error {
	if selftestRounds < 1 {
		return fmt.Errorf("rounds must be at least 1")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := configureLogger(cmd, cfg, true)
	rec, err := diag.NewRecorder(logger, cfg.HistorySize)
	if err != nil {
		return err
	}

	link := loopback.New()
	link.SetLatency(selftestLatency)
	core := throughput.NewPeripheral(link, link, cfg.PeripheralOptions(logger, rec))
	link.Attach(core)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var wg sync.WaitGroup
	var runErr error
	groutine.GoWait(ctx, &wg, "selftest-peripheral", func(ctx context.Context) {
		runErr = core.Run(ctx)
	})

	out := cmd.OutOrStdout()
	rounds, err := selftestRun(ctx, link, core, logger)
	cancel()
	wg.Wait()

	for _, r := range rounds {
		fmt.Fprintf(out, "%s mtu=%d largest=%d  ", r.Peer, r.MTU, r.Largest)
		printVerdict(out, r.Result)
	}
	printServeSummary(out, core.Stats(), rec)

	if err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	for _, r := range rounds {
		if !r.Result.OK() || r.Oversize > 0 {
			return ErrVerificationFailed
		}
	}
	return nil
}

// selftestRun drives the rounds against a running peripheral
func selftestRun(ctx context.Context, link *loopback.Link, core *throughput.Peripheral, logger *logrus.Logger) ([]selftestRound, error) {
	var rounds []selftestRound

	for i := range selftestRounds {
		if err := waitAdvertising(ctx, link); err != nil {
			return rounds, err
		}

		peer := fmt.Sprintf("central-%d", i+1)
		c, err := link.Connect(peer)
		if err != nil {
			return rounds, err
		}

		if i == 0 {
			if err := checkRejection(link); err != nil {
				return rounds, err
			}
		}

		if err := c.ExchangeMTU(selftestMTU); err != nil {
			return rounds, err
		}
		if err := c.Subscribe(true); err != nil {
			return rounds, err
		}
		if err := c.SetStreaming(true); err != nil {
			return rounds, err
		}

		select {
		case <-ctx.Done():
			return rounds, ctx.Err()
		case <-time.After(selftestDuration):
		}

		if err := c.SetStreaming(false); err != nil {
			return rounds, err
		}
		if err := c.Disconnect(); err != nil {
			return rounds, err
		}

		round := selftestRound{
			Peer:     peer,
			MTU:      min(selftestMTU, core.MTU().Max()),
			Largest:  c.Largest(),
			Oversize: c.Oversize(),
			Result:   c.Result(),
		}
		if round.Oversize > 0 {
			logger.WithFields(logrus.Fields{"peer": peer, "oversize": round.Oversize}).Warn("Notification exceeded negotiated MTU")
		}
		rounds = append(rounds, round)
	}
	return rounds, nil
}

// checkRejection offers a second central while one is connected
func checkRejection(link *loopback.Link) error {
	if err := link.StartAdvertising(); err != nil {
		return err
	}
	intruder, err := link.Connect("intruder")
	if err != nil {
		return err
	}
	if !intruder.Closed() || intruder.Reason() != throughput.ReasonLocalHostTerminated {
		return fmt.Errorf("second connection was not rejected")
	}
	return nil
}

// waitAdvertising waits for the peripheral to advertise again
func waitAdvertising(ctx context.Context, link *loopback.Link) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for !link.Advertising() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
