// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package supervisor implements the Supervisor (spec §4.7): installs
// signal disposition, drives a periodic display tick, starts the
// Worker Pool, and awaits completion or termination signal before an
// orderly teardown.
package supervisor

import (
	"context"
	"time"

	"github.com/Bluebear171/honggfuzz/pkg/hflog"
	"github.com/Bluebear171/honggfuzz/pkg/osutil"
	"github.com/Bluebear171/honggfuzz/pkg/stats"
	"github.com/Bluebear171/honggfuzz/pkg/worker"
)

// Summary is the final tallies snapshot returned once the run ends
// (SPEC_FULL §5: the end-of-run report the original flushes before
// exit).
type Summary struct {
	Tallies      map[string]uint64
	Duration     time.Duration
	Signaled     bool
	P50LatencyMS float64
	P99LatencyMS float64
}

// Supervisor drives one Worker Pool to completion (spec §4.7).
type Supervisor struct {
	Pool       *worker.Pool
	Stats      *stats.Set
	ThreadsMax int

	// Display, if set, is called once per second with a tallies
	// snapshot — the terminal/display layer the core hands data to
	// without owning rendering itself (spec §1).
	Display func(snapshot map[string]uint64)
}

// Wait installs signal handling, starts the pool, and blocks until
// either every worker finishes (mutations_max reached) or a
// termination signal arrives, then returns the final Summary. It does
// not join detached workers beyond the pool's own errgroup wait; a
// second termination signal exits the process immediately via
// osutil.HandleInterrupts, matching spec §4.7's "does not join
// detached workers" teardown.
func (s *Supervisor) Wait() Summary {
	var received int32
	sigDone := make(chan struct{})
	osutil.HandleInterrupts(&received, sigDone)

	wake := make(chan struct{}, s.ThreadsMax)
	s.Pool.Wake = wake

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poolErr := make(chan error, 1)
	go func() { poolErr <- s.Pool.Run(ctx) }()

	start := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	signaled := false

loop:
	for {
		select {
		case <-sigDone:
			signaled = true
			cancel()
			break loop
		case err := <-poolErr:
			if err != nil {
				hflog.Logf(0, "supervisor: worker pool stopped: %v", err)
			}
			break loop
		case <-wake:
			if s.threadsFinished() {
				break loop
			}
		case <-ticker.C:
			if s.Display != nil {
				s.Display(s.Stats.Collect())
			}
			if s.threadsFinished() {
				break loop
			}
		}
	}

	summary := Summary{
		Tallies:  s.Stats.Collect(),
		Duration: time.Since(start),
		Signaled: signaled,
	}
	if lat := s.Pool.Tallies.Latency; lat != nil {
		summary.P50LatencyMS = lat.Quantile(0.5)
		summary.P99LatencyMS = lat.Quantile(0.99)
	}
	return summary
}

func (s *Supervisor) threadsFinished() bool {
	return s.Pool.Tallies.ThreadsFinished.Load() >= uint64(s.ThreadsMax)
}
