// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Command hfuzz is the fuzzing supervisor's entry point: it parses the
// CLI surface (spec §6), wires every component together, and drives
// the Supervisor to completion.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Bluebear171/honggfuzz/pkg/classify"
	"github.com/Bluebear171/honggfuzz/pkg/config"
	"github.com/Bluebear171/honggfuzz/pkg/corpus"
	"github.com/Bluebear171/honggfuzz/pkg/crashstore"
	"github.com/Bluebear171/honggfuzz/pkg/feedback"
	"github.com/Bluebear171/honggfuzz/pkg/hflog"
	"github.com/Bluebear171/honggfuzz/pkg/mutate"
	"github.com/Bluebear171/honggfuzz/pkg/osutil"
	"github.com/Bluebear171/honggfuzz/pkg/prepare"
	"github.com/Bluebear171/honggfuzz/pkg/report"
	"github.com/Bluebear171/honggfuzz/pkg/runner"
	"github.com/Bluebear171/honggfuzz/pkg/stats"
	"github.com/Bluebear171/honggfuzz/pkg/supervisor"
	"github.com/Bluebear171/honggfuzz/pkg/target"
	"github.com/Bluebear171/honggfuzz/pkg/worker"
)

func main() {
	fs := flag.CommandLine
	load := config.Flags(fs)
	flag.Parse()

	cfg, err := load()
	if err != nil {
		var cfgErr *config.Error
		if asConfigError(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "hfuzz: %v\n", cfgErr)
			os.Exit(1)
		}
		hflog.Fatal(err)
	}

	if err := osutil.MkdirAll(cfg.WorkDir); err != nil {
		hflog.Fatalf("hfuzz: creating work_dir: %v", err)
	}

	if cfg.DisableRandomization {
		if err := target.DisableASLR(); err != nil {
			hflog.Fatalf("hfuzz: %v", err)
		}
	}

	dynamicOrExternal := len(cfg.DynFileMethods) > 0 || cfg.ExternalCmd != ""
	cp, err := corpus.Init(cfg.InputPath, cfg.MaxFileSz, dynamicOrExternal)
	if err != nil {
		hflog.Fatalf("hfuzz: %v", err)
	}

	s := stats.NewSet()
	fb := feedback.New(cfg.WorkDir, cfg.MaxFileSz)

	pool := &worker.Pool{
		Cfg:    cfg,
		Corpus: cp,
		Preparer: &prepare.Preparer{
			Cfg:      cfg,
			Corpus:   cp,
			Feedback: fb,
			Mutator:  mutate.Default{},
		},
		Runner: &runner.Runner{Target: &target.Unix{Cfg: cfg}, TimeoutS: cfg.TimeoutS},
		Classifier: &classify.Classifier{
			Cfg:      cfg,
			Store:    &crashstore.Store{BaseDir: cfg.WorkDir},
			Reporter: &report.TextFile{WorkDir: cfg.WorkDir},
			Tallies: classify.Tallies{
				Timeouts:        s.Create("timeouts_cnt", stats.PromOption("hfuzz_timeouts_total")),
				Crashes:         s.Create("crashes_cnt", stats.PromOption("hfuzz_crashes_total")),
				Blacklisted:     s.Create("blacklisted_crashes_cnt", stats.PromOption("hfuzz_blacklisted_crashes_total")),
				UniqueCrashes:   s.Create("unique_crashes_cnt", stats.PromOption("hfuzz_unique_crashes_total")),
				VerifiedCrashes: s.Create("verified_crashes_cnt", stats.PromOption("hfuzz_verified_crashes_total")),
			},
		},
		Feedback: fb,
		Tallies: worker.Tallies{
			Mutations:       s.Create("mutations_cnt", stats.PromOption("hfuzz_mutations_total")),
			ThreadsFinished: s.Create("threads_finished"),
			IoErrors:        s.Create("io_errors_cnt", stats.PromOption("hfuzz_io_errors_total")),
			Latency:         stats.NewLatency(),
		},
	}

	sup := &supervisor.Supervisor{
		Pool:       pool,
		Stats:      s,
		ThreadsMax: cfg.ThreadsMax,
		Display: func(snapshot map[string]uint64) {
			hflog.Logf(0, "mutations=%d crashes=%d unique=%d timeouts=%d",
				snapshot["mutations_cnt"], snapshot["crashes_cnt"],
				snapshot["unique_crashes_cnt"], snapshot["timeouts_cnt"])
		},
	}

	summary := sup.Wait()
	hflog.Logf(0, "hfuzz: done in %s, mutations=%d crashes=%d unique=%d, p50=%.1fms p99=%.1fms",
		summary.Duration, summary.Tallies["mutations_cnt"],
		summary.Tallies["crashes_cnt"], summary.Tallies["unique_crashes_cnt"],
		summary.P50LatencyMS, summary.P99LatencyMS)
	if summary.Signaled {
		os.Exit(1)
	}
}

func asConfigError(err error, out **config.Error) bool {
	if ce, ok := err.(*config.Error); ok {
		*out = ce
		return true
	}
	return false
}
