package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/srg/blepump/internal/diag"
	"github.com/srg/blepump/internal/throughput"
	"gopkg.in/yaml.v3"
)

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.FgHiBlack)
)

// formatRate renders a byte rate with a binary unit
func formatRate(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond >= 1024*1024:
		return fmt.Sprintf("%.2f MiB/s", bytesPerSecond/(1024*1024))
	case bytesPerSecond >= 1024:
		return fmt.Sprintf("%.2f KiB/s", bytesPerSecond/1024)
	default:
		return fmt.Sprintf("%.0f B/s", bytesPerSecond)
	}
}

// printVerdict prints PASS or FAIL for a verification result
func printVerdict(out io.Writer, res throughput.VerifierResult) {
	if res.OK() {
		passColor.Fprint(out, "PASS")
	} else {
		failColor.Fprint(out, "FAIL")
	}
	fmt.Fprintf(out, "  %d bytes, %d verified, %d mismatches, %d resyncs\n",
		res.Bytes, res.Verified, res.Mismatches, res.Resyncs)
}

// printYAML writes v as an indented YAML document
func printYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// printHistory writes the recorded diagnostics, oldest first
func printHistory(out io.Writer, rec *diag.Recorder) {
	events := rec.Drain()
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(out, "Recent events:")
	if n := rec.Overwritten(); n > 0 {
		dimColor.Fprintf(out, "  (%d older events dropped)\n", n)
	}
	for _, e := range events {
		fmt.Fprintf(out, "  %s\n", e)
	}
}
