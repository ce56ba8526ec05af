// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package stats holds the supervisor's atomic tallies (spec §3) in one
// registry, mirroring the teacher's pkg/stats: named *Val entries that
// can optionally be exported to Prometheus, and a Collect snapshot for
// whatever display layer the caller wires up (out of scope for the core
// itself, per spec §1).
package stats

import (
	"sync"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

// histogramBuckets mirrors the teacher's pkg/stat bucket count for its
// per-Val NumericHistogram.
const histogramBuckets = 255

// Latency is a streaming histogram of per-iteration wall-clock
// durations (milliseconds), so the Supervisor can report a run's
// p50/p99 without keeping every Observation.WallMS around.
type Latency struct {
	mu   sync.Mutex
	hist *gohistogram.NumericHistogram
}

// NewLatency returns an empty histogram.
func NewLatency() *Latency {
	return &Latency{hist: gohistogram.NewHistogram(histogramBuckets)}
}

// Observe records one sample.
func (l *Latency) Observe(ms int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hist.Add(float64(ms))
}

// Quantile returns the p-th quantile (0..1) of samples seen so far, or
// 0 if none have been recorded yet.
func (l *Latency) Quantile(p float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hist.Quantile(p)
}

// Mean returns the running mean of samples seen so far.
func (l *Latency) Mean() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hist.Mean()
}

// Val is one atomic counter. All of the tallies in spec §3 —
// mutations_cnt, crashes_cnt, unique_crashes_cnt, verified_crashes_cnt,
// blacklisted_crashes_cnt, timeouts_cnt, threads_finished — are Vals.
type Val struct {
	name string
	v    uint64Counter
}

// Add atomically increments the counter by delta.
func (val *Val) Add(delta uint64) uint64 { return val.v.add(delta) }

// Load returns the current value.
func (val *Val) Load() uint64 { return val.v.load() }

// Set is a registry of named tallies, one per process (spec §3 "atomic
// scalars", §5 "ordering guarantees": sums are eventually consistent,
// no cross-tally ordering is promised).
type Set struct {
	mu   sync.Mutex
	vals map[string]*Val
}

// NewSet returns an empty registry.
func NewSet() *Set {
	return &Set{vals: make(map[string]*Val)}
}

// PromOption exports the stat to Prometheus under promName as a gauge
// backed by the Val's current value, the same role the teacher's
// stats.Prometheus option plays in pkg/stats/set.go.
type PromOption string

// Create registers a new tally. If promName is passed via a PromOption,
// the tally is also exposed as a Prometheus gauge.
func (s *Set) Create(name string, opts ...PromOption) *Val {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &Val{name: name}
	s.vals[name] = v
	for _, opt := range opts {
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: string(opt),
			Help: string(opt),
		}, func() float64 { return float64(v.Load()) })
		if err := prometheus.Register(gauge); err != nil {
			if _, dup := err.(prometheus.AlreadyRegisteredError); !dup {
				panic(err)
			}
		}
	}
	return v
}

// Collect returns a name->value snapshot of every registered tally, for
// whatever external display/report layer wants to poll it.
func (s *Set) Collect() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.vals))
	for name, v := range s.vals {
		out[name] = v.Load()
	}
	return out
}
