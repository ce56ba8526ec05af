// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluebear171/honggfuzz/pkg/classify"
	"github.com/Bluebear171/honggfuzz/pkg/config"
	"github.com/Bluebear171/honggfuzz/pkg/corpus"
	"github.com/Bluebear171/honggfuzz/pkg/crashstore"
	"github.com/Bluebear171/honggfuzz/pkg/feedback"
	"github.com/Bluebear171/honggfuzz/pkg/mutate"
	"github.com/Bluebear171/honggfuzz/pkg/prepare"
	"github.com/Bluebear171/honggfuzz/pkg/runner"
	"github.com/Bluebear171/honggfuzz/pkg/stats"
	"github.com/Bluebear171/honggfuzz/pkg/target"
	"github.com/Bluebear171/honggfuzz/pkg/worker"
)

func TestSupervisorWaitReturnsAfterMutationsBound(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed")
	require.NoError(t, os.WriteFile(seed, []byte("AAAA"), 0644))

	cfg := &config.Config{
		WorkDir:      dir,
		FileExtn:     "fuzz",
		MaxFileSz:    1 << 20,
		ThreadsMax:   3,
		MutationsMax: 15,
		TimeoutS:     2,
		SaveUnique:   true,
		InputPath:    seed,
		Cmdline:      []string{"/bin/true", config.FilePlaceholder},
	}
	c, err := corpus.Init(seed, cfg.MaxFileSz, false)
	require.NoError(t, err)

	s := stats.NewSet()
	pool := &worker.Pool{
		Cfg:    cfg,
		Corpus: c,
		Preparer: &prepare.Preparer{
			Cfg:     cfg,
			Corpus:  c,
			Mutator: mutate.Default{},
		},
		Runner: &runner.Runner{Target: &target.Unix{Cfg: cfg}, TimeoutS: cfg.TimeoutS},
		Classifier: &classify.Classifier{Cfg: cfg, Store: &crashstore.Store{BaseDir: dir}, Tallies: classify.Tallies{
			Timeouts:        s.Create("timeouts_cnt"),
			Crashes:         s.Create("crashes_cnt"),
			Blacklisted:     s.Create("blacklisted_crashes_cnt"),
			UniqueCrashes:   s.Create("unique_crashes_cnt"),
			VerifiedCrashes: s.Create("verified_crashes_cnt"),
		}},
		Feedback: feedback.New(dir, cfg.MaxFileSz),
		Tallies: worker.Tallies{
			Mutations:       s.Create("mutations_cnt"),
			ThreadsFinished: s.Create("threads_finished"),
			IoErrors:        s.Create("io_errors_cnt"),
		},
	}

	var displayCalls int
	sup := &Supervisor{
		Pool:       pool,
		Stats:      s,
		ThreadsMax: cfg.ThreadsMax,
		Display:    func(map[string]uint64) { displayCalls++ },
	}

	summary := sup.Wait()
	assert.False(t, summary.Signaled)
	assert.GreaterOrEqual(t, summary.Tallies["mutations_cnt"], uint64(cfg.MutationsMax))
	assert.Equal(t, uint64(cfg.ThreadsMax), summary.Tallies["threads_finished"])
}
