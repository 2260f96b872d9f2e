package utils

import (
	"slices"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded ring of recent durations and reports percentiles.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	full    bool
}

// LatencySummary is a point-in-time percentile view.
type LatencySummary struct {
	Count int
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{samples: make([]time.Duration, maxSize)}
}

// Observe records a new duration, overwriting the oldest once full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples[l.next] = d
	l.next++
	if l.next == len(l.samples) {
		l.next = 0
		l.full = true
	}
}

// Count returns number of samples retained.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.samples)
	}
	return l.next
}

// Percentile returns the percentile (0-100) duration. Returns zero if no samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	sorted := l.sorted()
	return percentileOf(sorted, p)
}

// Summary computes the common percentiles from a single sorted copy.
func (l *LatencyTracker) Summary() LatencySummary {
	sorted := l.sorted()
	return LatencySummary{
		Count: len(sorted),
		P50:   percentileOf(sorted, 50),
		P95:   percentileOf(sorted, 95),
		P99:   percentileOf(sorted, 99),
	}
}

func (l *LatencyTracker) sorted() []time.Duration {
	l.mu.RLock()
	n := l.next
	if l.full {
		n = len(l.samples)
	}
	out := slices.Clone(l.samples[:n])
	l.mu.RUnlock()
	slices.Sort(out)
	return out
}

func percentileOf(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}
