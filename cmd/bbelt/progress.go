package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter renders a single-line progress indicator on stderr showing
// the current phase and the elapsed (or remaining) seconds. When stderr is
// not a terminal the printer stays silent, so piped or captured output never
// contains control sequences.
//
// A printer is single-use: Start at most once, then Stop to terminate the
// display goroutine and clear the line. Phase changes arrive through
// Callback; entering one of the configured stop phases shuts the printer
// down on its own.
type ProgressPrinter struct {
	prefix      string
	phase       atomic.Value // current phase name
	stopPhases  map[string]struct{}
	startTime   time.Time
	ticker      atomic.Pointer[time.Ticker]
	stopChan    chan struct{}
	done        chan struct{}
	started     atomic.Bool
	interactive bool
	countdown   time.Duration // 0 means count up
}

// NewProgressPrinter creates a printer that shows elapsed seconds.
func NewProgressPrinter(prefix, phase string, stopPhases ...string) *ProgressPrinter {
	return newProgressPrinter(prefix, phase, 0, stopPhases)
}

// NewCountdownProgressPrinter creates a printer that counts down from duration.
func NewCountdownProgressPrinter(prefix, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	return newProgressPrinter(prefix, phase, duration, stopPhases)
}

func newProgressPrinter(prefix, phase string, countdown time.Duration, stopPhases []string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		prefix:      prefix,
		stopPhases:  stopSet,
		interactive: term.IsTerminal(int(os.Stderr.Fd())),
		countdown:   countdown,
	}
	p.phase.Store(phase)
	return p
}

// Start begins rendering in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	if !p.interactive {
		return
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Fprintf(os.Stderr, "\r%s (%s...)   ", p.prefix, p.phase.Load().(string))
	go p.loop(ticker)
}

func (p *ProgressPrinter) loop(ticker *time.Ticker) {
	defer close(p.done)

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			phase := p.phase.Load().(string)
			if _, stop := p.stopPhases[phase]; stop {
				return
			}

			elapsed := time.Since(p.startTime)
			seconds := int(elapsed.Seconds())
			if p.countdown > 0 {
				remaining := p.countdown - elapsed
				if remaining <= 0 {
					seconds = 0
				} else {
					// Round to the nearest second so 3.7s displays as 4s
					seconds = int(remaining.Seconds() + 0.5)
				}
			}

			if seconds > 0 {
				fmt.Fprintf(os.Stderr, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
			} else {
				fmt.Fprintf(os.Stderr, "\r%s (%s...)   ", p.prefix, phase)
			}
		}
	}
}

// Callback returns a phase-change function that is safe to call from
// multiple goroutines. Setting a stop phase stops the printer.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Stop halts rendering and clears the line. Safe to call multiple times and
// from multiple goroutines; only the first call does the work.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return // Already stopped, never started, or not a terminal
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Fprint(os.Stderr, clearLineSequence)
}
