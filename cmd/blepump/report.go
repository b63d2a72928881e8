package main

import (
	"fmt"
	"io"
	"time"

	"github.com/srg/blepump/pkg/client"
)

// printReport writes a human-readable measurement report
func printReport(out io.Writer, r client.Report) {
	fmt.Fprintf(out, "Peer:          %s\n", r.Address)
	fmt.Fprintf(out, "MTU:           %d (payload %d)\n", r.MTU, max(r.MTU-3, 0))
	fmt.Fprintf(out, "Duration:      %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Notifications: %d (largest %d bytes)\n", r.Notifications, r.Largest)
	fmt.Fprintf(out, "Rate:          %s\n", formatRate(r.BytesPerSecond()))
	printVerdict(out, r.Verifier)
}
