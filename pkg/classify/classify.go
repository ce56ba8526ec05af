// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package classify implements the Crash Classifier (spec §4.5): from an
// Observation, decide not-a-crash / crash / unique-crash / blacklisted,
// compute the stack fingerprint, and persist unique crashes. Config's
// SymbolWhitelist/SymbolBlacklist are not consulted here — the original
// declares and parses those flags but never wires them into its own
// classifier either.
package classify

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/Bluebear171/honggfuzz/pkg/config"
	"github.com/Bluebear171/honggfuzz/pkg/crashstore"
	"github.com/Bluebear171/honggfuzz/pkg/stats"
	"github.com/Bluebear171/honggfuzz/pkg/target"
)

// shallowTag is OR'd into a fingerprint computed from a single frame,
// so a "shallow" crash (no real backtrace available) never collides
// with a deep one that happens to hash to the same low bits (spec
// §4.5 step 4).
const shallowTag uint64 = 0xBADBAD0000000000

// Verdict is the classifier's decision for one Observation.
type Verdict int

const (
	NotACrash Verdict = iota
	Blacklisted
	Duplicate
	Unique
	Saved // save_all policy: persisted, uniqueness not tracked
)

// Tallies are the subset of the process-wide stats.Set the classifier
// increments (spec §3).
type Tallies struct {
	Timeouts        *stats.Val
	Crashes         *stats.Val
	Blacklisted     *stats.Val
	UniqueCrashes   *stats.Val
	VerifiedCrashes *stats.Val
}

// Reporter renders a crash Observation into the blob persisted
// alongside it (spec §6 Reporter::Report). A nil Reporter leaves
// ReportBlob empty.
type Reporter interface {
	Report(obs *target.Observation, fingerprint uint64, inputPath string) ([]byte, error)
}

// Classifier applies the decision procedure from spec §4.5. It is
// shared read-mostly across every worker (only the Tallies and Store
// are mutated), so per-call state like the verifier's rerun closure is
// passed into Classify rather than stored on the Classifier itself.
type Classifier struct {
	Cfg      *config.Config
	Store    *crashstore.Store
	Reporter Reporter
	Tallies  Tallies
	Android  bool
}

// Rerun re-executes the same input bytes for the verifier step (spec
// §4.5 step 7). A nil Rerun disables verification even if Cfg.Verifier
// is set.
type Rerun func() (*target.Observation, error)

// Classify runs the full decision procedure and returns the verdict plus
// the fingerprint computed (0 if the observation never reached step 4).
// rerun is consulted only when a crash has just been persisted (a new
// Unique crash, or any crash under the save_all policy) and
// Cfg.Verifier is set; the Worker Pool wires it to re-materialize the
// same input bytes and re-run the target, since the Target Runner
// unlinks its temp file on every invocation (spec §4.4 step 3).
func (c *Classifier) Classify(obs *target.Observation, inputPath string, rerun Rerun) (Verdict, uint64) {
	if obs.ExitSignal == target.Timeout {
		c.Tallies.Timeouts.Add(1)
		return NotACrash, 0
	}

	crashSignals := target.CrashSignals(c.Android)
	if !crashSignals[obs.ExitSignal] {
		return NotACrash, 0
	}

	c.Tallies.Crashes.Add(1)

	fp := Fingerprint(obs.Backtrace)

	if blacklisted(c.Cfg.StackhashBlacklist, fp) {
		c.Tallies.Blacklisted.Add(1)
		return Blacklisted, fp
	}

	blob := obs.ReportBlob
	if c.Reporter != nil {
		if rendered, err := c.Reporter.Report(obs, fp, inputPath); err == nil {
			blob = rendered
		}
	}

	rec := crashstore.Record{
		Fingerprint: fp,
		CrashingPC:  obs.CrashingPC,
		FaultAddr:   obs.FaultAddr,
		Signal:      int32(obs.ExitSignal),
		Extn:        c.Cfg.FileExtn,
		ReportBlob:  blob,
	}

	if !c.Cfg.SaveUnique {
		_ = c.Store.SaveAll(rec, time.Now().UTC().Format("20060102T150405.000000000"))
		c.maybeVerify(rerun, fp)
		return Saved, fp
	}

	first, err := c.Store.SaveUnique(rec)
	if err != nil {
		// An IoError here is counted like any other: the crash was real,
		// it just couldn't be persisted. Per spec §7 this fails the
		// iteration, not the process.
		return Unique, fp
	}
	if !first {
		return Duplicate, fp
	}
	c.Tallies.UniqueCrashes.Add(1)
	c.maybeVerify(rerun, fp)
	return Unique, fp
}

// VerifierIterations is the fixed re-run count from spec §4.5 step 7.
const VerifierIterations = 5

func (c *Classifier) maybeVerify(rerun Rerun, want uint64) {
	if !c.Cfg.Verifier || rerun == nil {
		return
	}
	for i := 0; i < VerifierIterations; i++ {
		obs, err := rerun()
		if err != nil || obs == nil {
			return
		}
		crashSignals := target.CrashSignals(c.Android)
		if !crashSignals[obs.ExitSignal] {
			return
		}
		if Fingerprint(obs.Backtrace) != want {
			return
		}
	}
	c.Tallies.VerifiedCrashes.Add(1)
}

// Fingerprint hashes the top frames of a backtrace into a 64-bit value
// (spec §4.5 step 4). A single-frame backtrace is tagged "shallow" by
// OR-ing in shallowTag so it never collides with a deep crash that
// happens to share the low bits.
func Fingerprint(frames []uint64) uint64 {
	if len(frames) == 0 {
		return shallowTag
	}
	buf := make([]byte, 8)
	var h uint64 = 14695981039346656037 // FNV-1a 64-bit offset basis
	const prime uint64 = 1099511628211
	for _, f := range frames {
		binary.LittleEndian.PutUint64(buf, f)
		for _, b := range buf {
			h ^= uint64(b)
			h *= prime
		}
	}
	if len(frames) == 1 {
		h |= shallowTag
	}
	return h
}

// blacklisted reports whether fp is present in a sorted blacklist. It
// uses binary search via sort.Search rather than interpolation search;
// both give the sublinear lookup spec §4.5 relies on the sort order for.
func blacklisted(sortedBlacklist []uint64, fp uint64) bool {
	i := sort.Search(len(sortedBlacklist), func(i int) bool { return sortedBlacklist[i] >= fp })
	return i < len(sortedBlacklist) && sortedBlacklist[i] == fp
}
