package fibload

import (
	"slices"
	"sync"
	"time"
)

// defaultLatencyWindow is how many recent request latencies the server keeps.
const defaultLatencyWindow = 4096

// LatencyWindow keeps the most recent request latencies in a ring buffer.
//
// A deep request tree makes the root wait on every level below it, so a slow
// peer shows up as a growing P99/P50 ratio long before the mean moves.
type LatencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	count   int64
}

// NewLatencyWindow creates a window holding up to size samples.
func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = defaultLatencyWindow
	}
	return &LatencyWindow{samples: make([]time.Duration, size)}
}

// Record adds one latency, overwriting the oldest once the window is full.
func (w *LatencyWindow) Record(d time.Duration) {
	w.mu.Lock()
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	w.count++
	w.mu.Unlock()
}

// LatencyStats summarises a LatencyWindow.
type LatencyStats struct {
	Samples   int64 // Total recorded, including overwritten ones
	Mean      time.Duration
	P50       time.Duration
	P99       time.Duration
	P999      time.Duration
	TailRatio float64 // P99/P50, 1 when empty
}

// Stats computes percentiles over the samples currently in the window.
func (w *LatencyWindow) Stats() LatencyStats {
	w.mu.Lock()
	n := min(int(w.count), len(w.samples))
	sorted := slices.Clone(w.samples[:n])
	total := w.count
	w.mu.Unlock()

	stats := LatencyStats{Samples: total, TailRatio: 1}
	if n == 0 {
		return stats
	}
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	at := func(p float64) time.Duration { return sorted[int(float64(n-1)*p)] }

	stats.Mean = sum / time.Duration(n)
	stats.P50 = at(0.50)
	stats.P99 = at(0.99)
	stats.P999 = at(0.999)
	if stats.P50 > 0 {
		stats.TailRatio = float64(stats.P99) / float64(stats.P50)
	}
	return stats
}
