package reindex

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker renders reindex progress as one carriage-return line that
// is rewritten every reportInterval scanned places.
type ProgressTracker struct {
	mu sync.Mutex

	out      io.Writer
	total    int
	every    int
	scanned  int
	rebuilt  int
	reported int
	began    time.Time
}

// NewProgressTracker tracks a run over total places. A nil writer discards
// output and a non-positive interval reports on every increment.
func NewProgressTracker(w io.Writer, total, reportInterval int) *ProgressTracker {
	if w == nil {
		w = io.Discard
	}
	return &ProgressTracker{out: w, total: total, every: max(reportInterval, 1)}
}

// Start zeroes the counters and starts the clock. Calls made before Start
// are ignored.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.began = time.Now()
	p.scanned, p.rebuilt, p.reported = 0, 0, 0
}

// Increment records a processed batch of scanned places, rebuilt of which
// needed new tag bits. Scanned never exceeds total.
func (p *ProgressTracker) Increment(scanned, rebuilt int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.began.IsZero() {
		return
	}
	p.scanned = min(p.scanned+scanned, p.total)
	p.rebuilt += rebuilt
	if p.scanned-p.reported >= p.every {
		p.render()
		p.reported = p.scanned
	}
}

// Current returns the number of places scanned so far.
func (p *ProgressTracker) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanned
}

// Finish renders the final line and terminates it.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.began.IsZero() {
		return
	}
	p.scanned = p.total
	p.render()
	fmt.Fprintln(p.out)
}

// Elapsed is zero until Start is called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.began.IsZero() {
		return 0
	}
	return time.Since(p.began)
}

// render expects p.mu to be held.
func (p *ProgressTracker) render() {
	pct := 100.0
	if p.total > 0 {
		pct = 100 * float64(p.scanned) / float64(p.total)
	}
	var rate float64
	if secs := time.Since(p.began).Seconds(); secs > 0 {
		rate = float64(p.scanned) / secs
	}
	fmt.Fprintf(p.out, "\rReindexing: %d/%d places (%.1f%%), %d rebuilt - %.1f places/s",
		p.scanned, p.total, pct, p.rebuilt, rate)
}
