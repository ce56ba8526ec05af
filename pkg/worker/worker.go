// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package worker implements the Worker Pool (spec §4.6): a fixed number
// of goroutines each running the pick-prepare-run-classify-feedback
// loop, sharing only the atomic tallies and the feedback-store mutex.
package worker

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Bluebear171/honggfuzz/pkg/classify"
	"github.com/Bluebear171/honggfuzz/pkg/config"
	"github.com/Bluebear171/honggfuzz/pkg/corpus"
	"github.com/Bluebear171/honggfuzz/pkg/feedback"
	"github.com/Bluebear171/honggfuzz/pkg/hflog"
	"github.com/Bluebear171/honggfuzz/pkg/idgen"
	"github.com/Bluebear171/honggfuzz/pkg/prepare"
	"github.com/Bluebear171/honggfuzz/pkg/runner"
	"github.com/Bluebear171/honggfuzz/pkg/stats"
	"github.com/Bluebear171/honggfuzz/pkg/target"
)

// Tallies are the subset of the process-wide stats.Set the pool itself
// increments; the classifier increments the rest (spec §3).
type Tallies struct {
	Mutations       *stats.Val
	ThreadsFinished *stats.Val
	IoErrors        *stats.Val

	// Latency is optional; when set, every reaped Observation's WallMS
	// is recorded into it so the Supervisor can report run latency
	// quantiles alongside the plain counters.
	Latency *stats.Latency
}

// Pool wires every per-iteration collaborator together (spec §2 data
// flow: Corpus → Input Preparer → Target Runner → Crash Classifier →
// Feedback Store).
type Pool struct {
	Cfg        *config.Config
	Corpus     *corpus.Corpus
	Preparer   *prepare.Preparer
	Runner     *runner.Runner
	Classifier *classify.Classifier
	Feedback   *feedback.Store
	Tallies    Tallies

	// Wake receives one value per worker that exits because
	// mutations_max was reached, the engine's TIMER_WAKE signal to the
	// Supervisor (spec §4.6). It must be buffered at least ThreadsMax
	// deep or have a receiver draining concurrently.
	Wake chan<- struct{}
}

// Run starts Cfg.ThreadsMax workers and blocks until every worker
// returns. The first fatal per-worker error (IoError exhaustion,
// InternalInvariant) cancels the group's context and is returned;
// per-iteration errors are logged and counted, never propagated (spec
// §7 policy).
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.Cfg.ThreadsMax; i++ {
		workerID := i
		g.Go(func() error { return p.runWorker(gctx, workerID) })
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID int) error {
	r := idgen.NewRand(workerID)
	pid := os.Getpid()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n := p.Tallies.Mutations.Add(1)
		if p.Cfg.MutationsMax > 0 && n > p.Cfg.MutationsMax {
			p.Tallies.ThreadsFinished.Add(1)
			p.signalWake()
			return nil
		}

		if err := p.iteration(r, pid); err != nil {
			return err
		}
	}
}

func (p *Pool) signalWake() {
	if p.Wake == nil {
		return
	}
	select {
	case p.Wake <- struct{}{}:
	default:
	}
}

// iteration runs one pick→prepare→run→classify→feedback cycle. IoError
// and MutatorError (spec §7) fail only this iteration: they are logged
// and counted, and the loop continues, per the softened policy §7
// explicitly allows ("MAY soften this to skip iteration and continue" —
// the Open Question this implementation resolves, recorded in the
// grounding ledger).
func (p *Pool) iteration(r *idgen.Rand, pid int) error {
	idx := p.Corpus.Pick(r)

	inputPath, err := p.Preparer.Prepare(idx, r, pid)
	if err != nil {
		var mutErr *prepare.MutatorError
		if errors.As(err, &mutErr) {
			hflog.Logf(1, "worker: mutator error: %v", err)
			p.Tallies.IoErrors.Add(1)
			return nil
		}
		hflog.Logf(1, "worker: prepare error: %v", err)
		p.Tallies.IoErrors.Add(1)
		return nil
	}

	// The Target Runner unlinks inputPath as soon as it reaps the
	// target (spec §4.4 step 3), so the bytes that produced this
	// Observation must be captured now: the Feedback Store's Offer
	// needs them on improvement, and the verifier needs them to
	// re-materialize fresh temp files for its re-run budget.
	buf, err := os.ReadFile(inputPath)
	if err != nil {
		hflog.Logf(1, "worker: reading prepared input: %v", err)
		p.Tallies.IoErrors.Add(1)
		return nil
	}

	obs, err := p.Runner.Run(inputPath)
	if err != nil {
		var launchErr *target.LaunchError
		if errors.As(err, &launchErr) {
			// Child-side exec failure: the parent reaped it, nothing more
			// to classify (spec §7 TargetLaunchError).
			hflog.Logf(1, "worker: target launch error: %v", err)
			return nil
		}
		hflog.Logf(1, "worker: run error: %v", err)
		p.Tallies.IoErrors.Add(1)
		return nil
	}

	if p.Tallies.Latency != nil {
		p.Tallies.Latency.Observe(obs.WallMS)
	}

	rerun := p.rerunFunc(buf, r, pid)
	p.Classifier.Classify(obs, inputPath, rerun)

	if !obs.Counters.IsZero() {
		if _, err := p.Feedback.Offer(buf, obs.Counters); err != nil {
			hflog.Logf(1, "worker: feedback offer error: %v", err)
			p.Tallies.IoErrors.Add(1)
		}
	}
	return nil
}

// rerunFunc builds the verifier's Rerun closure: write buf to a fresh
// temp path and run the target against it, same as a normal iteration
// minus preparation.
func (p *Pool) rerunFunc(buf []byte, r *idgen.Rand, pid int) classify.Rerun {
	return func() (*target.Observation, error) {
		path := idgen.TempInputName(p.Cfg.WorkDir, idgen.ProgName(), pid, r, p.Cfg.FileExtn)
		if err := os.WriteFile(path, buf, 0644); err != nil {
			return nil, err
		}
		return p.Runner.Run(path)
	}
}
