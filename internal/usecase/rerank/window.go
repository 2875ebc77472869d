package rerank

import (
	"sort"
	"sync"
	"time"
)

// latencyWindow is a fixed-size ring of recent stage latencies used for the
// p95 bypass guard. Safe for concurrent use.
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	if size < 1 {
		size = 1
	}
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) Record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

// P95 returns the rolling 95th-percentile latency; zero while the window is
// empty so a fresh process never starts bypassed.
func (w *latencyWindow) P95() time.Duration {
	w.mu.Lock()
	n := len(w.samples)
	if !w.full {
		n = w.next
	}
	if n == 0 {
		w.mu.Unlock()
		return 0
	}
	sorted := make([]time.Duration, n)
	copy(sorted, w.samples[:n])
	w.mu.Unlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := int(float64(n) * 0.95)
	if rank >= n {
		rank = n - 1
	}
	return sorted[rank]
}
