// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package idgen provides the supervisor's random-number and naming
// primitives: per-worker seeded PRNGs (spec §4.8), monotonic timestamps
// for latency measurement, and the stable temp-file naming scheme.
package idgen

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// Rand wraps math/rand.Rand with the integer-range API the Corpus and
// Input Preparer need. Each worker owns one instance seeded from
// wall-clock time plus its worker ID, grounded on syz-fuzzer/proc.go's per-goroutine
// rand.New(rand.NewSource(time.Now().UnixNano()+int64(pid))) pattern —
// process-wide seeding would serialize all workers on a single source.
type Rand struct {
	r *rand.Rand
}

// NewRand seeds a Rand from wall-clock time perturbed by workerID so
// concurrently started workers don't collide on the same seed.
func NewRand(workerID int) *Rand {
	return &Rand{r: rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))}
}

// Range returns a uniform random integer in [lo, hi). Panics if hi<=lo,
// same contract as rand.Intn.
func (r *Rand) Range(lo, hi int) int {
	if hi <= lo {
		panic("idgen: invalid range")
	}
	return lo + r.r.Intn(hi-lo)
}

// Float64 returns a uniform random float in [0,1), used by the Input
// Preparer's flip-rate decisions.
func (r *Rand) Float64() float64 {
	return r.r.Float64()
}

// Hex62 returns a random 62-bit value hex-encoded, the entropy component
// of the temp-file name format in spec §4.8.
func (r *Rand) Hex62() string {
	return fmt.Sprintf("%015x", r.r.Int63()&((1<<62)-1))
}

// processStart anchors MonotonicMillis; time.Since reads the monotonic
// clock reading embedded in a time.Time.
var processStart = time.Now()

// MonotonicMillis returns a monotonic millisecond timestamp (milliseconds
// since package initialization) suitable for measuring iteration
// latency; only differences between two readings are meaningful.
func MonotonicMillis() int64 {
	return time.Since(processStart).Milliseconds()
}

// TempInputName builds the stable temp-file name format from spec §4.8:
// <workdir>/.<prog>.<pid>.<unix_seconds>.<62-bit-hex-random>.<extn>
func TempInputName(workDir, prog string, pid int, r *Rand, extn string) string {
	name := fmt.Sprintf(".%s.%d.%d.%s.%s", prog, pid, time.Now().Unix(), r.Hex62(), extn)
	return filepath.Join(workDir, name)
}

// ProgName returns the running binary's base name, used to fill the
// <prog> component of TempInputName.
func ProgName() string {
	return filepath.Base(os.Args[0])
}
