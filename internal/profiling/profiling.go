// Package profiling accumulates per-tick CPU time by name.
//
//	defer profiling.Track("terrain.Update")()
package profiling

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Sample is one name's accumulated time and call count.
type Sample struct {
	Name  string
	Total time.Duration
	Calls int
}

// Recorder collects samples until Reset.
type Recorder struct {
	mu     sync.Mutex
	totals map[string]Sample
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{totals: make(map[string]Sample)}
}

var std = NewRecorder()

// Default returns the process-wide recorder used by Track.
func Default() *Recorder { return std }

// Track returns a stop function that records the elapsed time under name.
func (r *Recorder) Track(name string) func() {
	start := time.Now()
	return func() {
		r.Add(name, time.Since(start))
	}
}

// Add records d under name.
func (r *Recorder) Add(name string, d time.Duration) {
	r.mu.Lock()
	s := r.totals[name]
	s.Name = name
	s.Total += d
	s.Calls++
	r.totals[name] = s
	r.mu.Unlock()
}

// Reset clears all samples. Call at the start of each tick.
func (r *Recorder) Reset() {
	r.mu.Lock()
	clear(r.totals)
	r.mu.Unlock()
}

// Snapshot returns samples sorted by descending total, then name.
func (r *Recorder) Snapshot() []Sample {
	r.mu.Lock()
	out := make([]Sample, 0, len(r.totals))
	for _, s := range r.totals {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SumWithPrefix totals every sample whose name starts with prefix.
func (r *Recorder) SumWithPrefix(prefix string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var d time.Duration
	for name, s := range r.totals {
		if strings.HasPrefix(name, prefix) {
			d += s.Total
		}
	}
	return d
}

// TopN formats the n largest totals, e.g. "terrain.Update:4.2ms, meshing.March:2.1ms".
func (r *Recorder) TopN(n int) string {
	snap := r.Snapshot()
	n = min(n, len(snap))
	parts := make([]string, 0, n)
	for _, s := range snap[:n] {
		parts = append(parts, fmt.Sprintf("%s:%.1fms", s.Name, float64(s.Total.Microseconds())/1000))
	}
	return strings.Join(parts, ", ")
}

// Track records into the default recorder.
func Track(name string) func() { return std.Track(name) }

// ResetFrame clears the default recorder.
func ResetFrame() { std.Reset() }

// Snapshot reads the default recorder.
func Snapshot() []Sample { return std.Snapshot() }

// TopN formats the default recorder.
func TopN(n int) string { return std.TopN(n) }

// SumWithPrefix sums the default recorder.
func SumWithPrefix(prefix string) time.Duration { return std.SumWithPrefix(prefix) }
