// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package runner implements the Target Runner (spec §4.4): it drives one
// Target capability invocation under a per-run deadline and guarantees
// the temp input file is unlinked on every exit path.
package runner

import (
	"context"
	"os"
	"time"

	"github.com/Bluebear171/honggfuzz/pkg/hflog"
	"github.com/Bluebear171/honggfuzz/pkg/target"
)

// Runner drives one Target for a fixed per-run timeout.
type Runner struct {
	Target   target.Target
	TimeoutS int
}

// Run executes one iteration against inputPath and unlinks it once the
// target has been reaped, regardless of outcome (spec §4.4 step 3).
func (r *Runner) Run(inputPath string) (*target.Observation, error) {
	defer func() {
		if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
			hflog.Logf(1, "runner: failed to unlink %q: %v", inputPath, err)
		}
	}()

	proc, err := r.Target.Launch(inputPath)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(r.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return proc.Reap(ctx)
}
