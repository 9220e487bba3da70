package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/torosent/sweepfire/internal/metrics"
)

// Progress redraws a single status line for the level being run.
type Progress struct {
	snapshot func() metrics.Snapshot
	w        io.Writer
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartProgress redraws the collector's snapshot every interval until Stop.
func StartProgress(collector *metrics.Collector, interval time.Duration, w io.Writer) *Progress {
	if w == nil {
		w = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	p := &Progress{
		snapshot: collector.Snapshot,
		w:        w,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.loop(interval)
	return p
}

func (p *Progress) loop(interval time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.draw()
		case <-p.quit:
			return
		}
	}
}

func (p *Progress) draw() {
	fmt.Fprint(p.w, "\r"+formatProgress(p.snapshot()))
}

// Stop draws the final state and ends the line. It is safe to call more
// than once and on a nil *Progress.
func (p *Progress) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.quit)
		<-p.done
		p.draw()
		fmt.Fprintln(p.w)
	})
}

func formatProgress(snap metrics.Snapshot) string {
	line := fmt.Sprintf("Level %d | Requests: %d | Successes: %d | Failures: %d | RPS: %.1f",
		snap.Level, snap.Total, snap.Successes, snap.Failures, snap.RequestsPerSec)
	if snap.Total > 0 {
		line += fmt.Sprintf(" | P50 %s | P99 %s",
			snap.P50Latency.Round(time.Millisecond), snap.P99Latency.Round(time.Millisecond))
	}
	return line
}
