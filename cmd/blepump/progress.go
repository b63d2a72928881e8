package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 500 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// StatusPrinter redraws a one-line status while a command runs.
//
// Usage:
//
//	p := NewStatusPrinter(os.Stdout, status)
//	p.Start()
//	defer p.Stop()
//
// On a terminal the line is redrawn in place; otherwise each update is
// printed on its own line. A StatusPrinter is single-use.
type StatusPrinter struct {
	out      io.Writer
	status   func() string
	interval time.Duration
	inPlace  bool

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewStatusPrinter creates a printer that calls status on every update
func NewStatusPrinter(out io.Writer, status func() string) *StatusPrinter {
	return &StatusPrinter{
		out:      out,
		status:   status,
		interval: progressUpdateInterval,
		inPlace:  isTerminal(out),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// isTerminal reports whether out is an interactive terminal
func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start begins printing updates in a background goroutine.
// Panics if called more than once.
func (p *StatusPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("StatusPrinter.Start called more than once")
	}

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.print()
			}
		}
	}()
}

func (p *StatusPrinter) print() {
	line := p.status()
	if p.inPlace {
		fmt.Fprintf(p.out, "%s%s", clearLineSequence, line)
		return
	}
	fmt.Fprintln(p.out, line)
}

// Stop ends the updates and clears the status line. Safe to call more than once.
func (p *StatusPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.started.Load() {
			<-p.done
		}
		if p.inPlace {
			fmt.Fprint(p.out, clearLineSequence)
		}
	})
}
