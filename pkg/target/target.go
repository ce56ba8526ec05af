// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package target defines the Target capability the engine's Target
// Runner (pkg/runner) consumes (spec §4.4, §6): launch one instance of
// the binary under test against a prepared input, and report what
// happened. Everything instrumentation-specific — how coverage counters
// or a crashing PC are obtained — lives behind this interface; the core
// never branches on platform or instrumentation details (spec §9).
package target

import (
	"context"
	"fmt"

	"github.com/Bluebear171/honggfuzz/pkg/feedback"
)

// Signal identifies how a run ended. The crash-signal subset and the
// TIMEOUT/NORMAL sentinels are interpreted by the Crash Classifier
// (spec §4.5).
type Signal int32

const (
	// SigNone means the target exited normally (exit code, not a signal).
	SigNone Signal = 0
	// Timeout is a sentinel, not a real signal number: the Target Runner
	// enforced the per-run deadline itself (spec §4.4 step 2).
	Timeout Signal = -1

	SigSegv Signal = 11
	SigBus  Signal = 7
	SigIll  Signal = 4
	SigFpe  Signal = 8
	SigAbrt Signal = 6
	SigUsr2 Signal = 12 // Android sanitizer crash signal, see CrashSignals.
)

// CrashSignals returns the platform's crash-signal set (spec §4.5 step
// 2), with the Android override applied when android is true: SIGUSR2
// becomes the sanitizer crash signal and SIGABRT is excluded (sanitizer
// aborts are routed through SIGUSR2 there, so a bare SIGABRT is noise).
func CrashSignals(android bool) map[Signal]bool {
	set := map[Signal]bool{
		SigSegv: true,
		SigBus:  true,
		SigIll:  true,
		SigFpe:  true,
		SigAbrt: true,
	}
	if android {
		delete(set, SigAbrt)
		set[SigUsr2] = true
	}
	return set
}

// Observation is the sole output of one Target run (spec §3).
type Observation struct {
	PID           int
	WallMS        int64
	ExitSignal    Signal
	CrashingPC    uint64
	BacktraceHash uint64
	FaultAddr     uint64
	Backtrace     []uint64 // top frames, most recent first; pkg/classify fingerprints these
	Counters      feedback.Counters
	ReportBlob    []byte
	Symbol        string // crashing function symbol, "" if unresolved
}

// Target is the capability the engine consumes to run one iteration. A
// real implementation wraps an instrumented executable; Launch starts
// it against inputPath (substituting the placeholder or feeding stdin
// per cfg), and Reap blocks until the run concludes or ctx is done,
// returning the Observation.
//
// Launch/Reap are split exactly as spec §4.4 describes the fork/exec
// vs. wait/interrogate halves of one run, even though a Go
// implementation uses os/exec's Start/Wait rather than a literal
// fork(2) — os/exec already performs the equivalent clone+exec
// atomically.
type Target interface {
	Launch(inputPath string) (Process, error)
}

// Process is a running (or about-to-be-reaped) target instance.
type Process interface {
	// PID returns the child's process ID, valid once Launch returns.
	PID() int
	// Reap blocks until the process exits or ctx is cancelled (the
	// Target Runner cancels ctx at the configured timeout) and returns
	// the Observation. Reap must not be called more than once.
	Reap(ctx context.Context) (*Observation, error)
}

// LaunchError wraps a failure to start the target process at all
// (spec §7 TargetLaunchError, child-exec-failure case).
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("target: launching %q: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
