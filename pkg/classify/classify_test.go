// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluebear171/honggfuzz/pkg/config"
	"github.com/Bluebear171/honggfuzz/pkg/crashstore"
	"github.com/Bluebear171/honggfuzz/pkg/stats"
	"github.com/Bluebear171/honggfuzz/pkg/target"
)

func newClassifier(t *testing.T, cfg *config.Config) *Classifier {
	t.Helper()
	s := stats.NewSet()
	return &Classifier{
		Cfg:   cfg,
		Store: &crashstore.Store{BaseDir: t.TempDir()},
		Tallies: Tallies{
			Timeouts:        s.Create("timeouts_cnt"),
			Crashes:         s.Create("crashes_cnt"),
			Blacklisted:     s.Create("blacklisted_crashes_cnt"),
			UniqueCrashes:   s.Create("unique_crashes_cnt"),
			VerifiedCrashes: s.Create("verified_crashes_cnt"),
		},
	}
}

func TestTimeoutIsNotACrash(t *testing.T) {
	c := newClassifier(t, &config.Config{SaveUnique: true})
	verdict, _ := c.Classify(&target.Observation{ExitSignal: target.Timeout}, "in", nil)
	assert.Equal(t, NotACrash, verdict)
	assert.Equal(t, uint64(1), c.Tallies.Timeouts.Load())
}

func TestNonCrashSignalIsNotACrash(t *testing.T) {
	c := newClassifier(t, &config.Config{SaveUnique: true})
	verdict, _ := c.Classify(&target.Observation{ExitSignal: target.SigNone}, "in", nil)
	assert.Equal(t, NotACrash, verdict)
	assert.Equal(t, uint64(0), c.Tallies.Crashes.Load())
}

func TestFirstCrashIsUniqueSecondIsDuplicate(t *testing.T) {
	c := newClassifier(t, &config.Config{SaveUnique: true, FileExtn: "fuzz"})
	obs := &target.Observation{ExitSignal: target.SigSegv, Backtrace: []uint64{0x1000}}

	verdict, fp1 := c.Classify(obs, "in", nil)
	assert.Equal(t, Unique, verdict)
	assert.Equal(t, uint64(1), c.Tallies.UniqueCrashes.Load())

	verdict, fp2 := c.Classify(obs, "in", nil)
	assert.Equal(t, Duplicate, verdict)
	assert.Equal(t, fp1, fp2)
	assert.Equal(t, uint64(1), c.Tallies.UniqueCrashes.Load())
}

func TestBlacklistedCrashIsNotPersisted(t *testing.T) {
	obs := &target.Observation{ExitSignal: target.SigSegv, Backtrace: []uint64{0x1000}}
	fp := Fingerprint(obs.Backtrace)

	c := newClassifier(t, &config.Config{SaveUnique: true, StackhashBlacklist: []uint64{fp}})
	verdict, gotFp := c.Classify(obs, "in", nil)
	assert.Equal(t, Blacklisted, verdict)
	assert.Equal(t, fp, gotFp)
	assert.Equal(t, uint64(1), c.Tallies.Blacklisted.Load())
	assert.Equal(t, uint64(0), c.Tallies.UniqueCrashes.Load())
}

func TestSymbolBlacklistDoesNotSuppressCrash(t *testing.T) {
	// SymbolBlacklist/SymbolWhitelist are parsed config surface (spec
	// §3, CLI -b/-A) but the classifier never consults them, matching
	// the original's own classifier.
	cfg := &config.Config{SaveUnique: true, SymbolBlacklist: map[string]bool{"bad_fn": true}}
	c := newClassifier(t, cfg)
	obs := &target.Observation{ExitSignal: target.SigSegv, Backtrace: []uint64{0x1000}, Symbol: "bad_fn"}
	verdict, _ := c.Classify(obs, "in", nil)
	assert.Equal(t, Unique, verdict)
	assert.Equal(t, uint64(1), c.Tallies.Crashes.Load())
}

func TestShallowFingerprintTagged(t *testing.T) {
	fp := Fingerprint([]uint64{0x1})
	assert.Equal(t, shallowTag, fp&shallowTag)
}

func TestVerifierConfirmsStableCrash(t *testing.T) {
	cfg := &config.Config{SaveUnique: true, Verifier: true}
	c := newClassifier(t, cfg)
	rerun := func() (*target.Observation, error) {
		return &target.Observation{ExitSignal: target.SigSegv, Backtrace: []uint64{0x1000}}, nil
	}
	obs := &target.Observation{ExitSignal: target.SigSegv, Backtrace: []uint64{0x1000}}
	verdict, _ := c.Classify(obs, "in", rerun)
	require.Equal(t, Unique, verdict)
	assert.Equal(t, uint64(1), c.Tallies.VerifiedCrashes.Load())
}

func TestVerifierRejectsFlakyCrash(t *testing.T) {
	cfg := &config.Config{SaveUnique: true, Verifier: true}
	c := newClassifier(t, cfg)
	rerun := func() (*target.Observation, error) {
		return &target.Observation{ExitSignal: target.SigNone}, nil
	}
	obs := &target.Observation{ExitSignal: target.SigSegv, Backtrace: []uint64{0x1000}}
	verdict, _ := c.Classify(obs, "in", rerun)
	require.Equal(t, Unique, verdict)
	assert.Equal(t, uint64(0), c.Tallies.VerifiedCrashes.Load())
}
