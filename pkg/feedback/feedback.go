// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package feedback holds the single process-wide "best dynamic seed"
// record (spec §4.3) — a counter vector and the bytes that produced it,
// guarded by one mutex so readers always see bytes and counters from the
// same generation.
package feedback

import (
	"path/filepath"
	"sync"

	"github.com/Bluebear171/honggfuzz/pkg/osutil"
)

// Counters is the 5-scalar feedback vector from spec §3.
type Counters struct {
	InstrCnt  int64
	BranchCnt int64
	PCCnt     int64
	PathCnt   int64
	CustomCnt int64
}

// IsZero reports whether every component is zero, the warm-up predicate
// the Input Preparer reads under the Store's mutex (spec §4.2 step 2,
// §5 "ordering guarantees").
func (c Counters) IsZero() bool {
	return c == Counters{}
}

// Dominates reports whether c dominates other: every component of c is
// >= the corresponding component of other, with at least one strictly
// greater (spec §3).
func (c Counters) Dominates(other Counters) bool {
	ge := c.InstrCnt >= other.InstrCnt && c.BranchCnt >= other.BranchCnt &&
		c.PCCnt >= other.PCCnt && c.PathCnt >= other.PathCnt && c.CustomCnt >= other.CustomCnt
	if !ge {
		return false
	}
	return c != other
}

// Store is the best-seed record (spec §4.3), protected by one mutex.
// A Store from New starts with empty bytes and zero counters, matching
// the "initialized empty" lifecycle in spec §3. The zero value has a
// max size of 0, so its Offer panics on any non-empty candidate.
type Store struct {
	mu       sync.Mutex
	bytes    []byte
	counters Counters
	workDir  string
	maxSz    int64
}

// New returns a Store that persists CURRENT_BEST under workDir. maxSz
// bounds best_sz, enforced as an InternalInvariant (spec §7) by Offer.
func New(workDir string, maxSz int64) *Store {
	return &Store{workDir: workDir, maxSz: maxSz}
}

// Snapshot returns a copy of the current best bytes and counters under
// the mutex (spec §4.3 snapshot).
func (s *Store) Snapshot() ([]byte, Counters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.bytes...), s.counters
}

// SeedIfEmpty sets the best buffer from seed iff the current counter
// vector is all-zero — the race-free "first iteration seeds the best
// buffer" step from spec §4.2 step 2 / §5. While the counters are still
// all-zero every call succeeds and a non-empty seed replaces the
// buffer; once an Offer has stored non-zero counters it returns false
// and leaves the buffer alone.
func (s *Store) SeedIfEmpty(seed []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.counters.IsZero() {
		return false
	}
	if len(seed) > 0 {
		s.bytes = append([]byte(nil), seed...)
	}
	return true
}

// Offer attempts to replace the best record with candidate. It returns
// true and persists CURRENT_BEST iff candidate's counters dominate or
// tie the current best (every component <= candidate's — spec §4.3:
// "best_counters - candidate_counters <= 0 componentwise").
func (s *Store) Offer(candidate []byte, counters Counters) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(len(candidate)) > s.maxSz {
		panic("feedback: candidate exceeds max_file_sz, caller violated the invariant")
	}

	improves := counters.InstrCnt >= s.counters.InstrCnt &&
		counters.BranchCnt >= s.counters.BranchCnt &&
		counters.PCCnt >= s.counters.PCCnt &&
		counters.PathCnt >= s.counters.PathCnt &&
		counters.CustomCnt >= s.counters.CustomCnt
	if !improves {
		return false, nil
	}

	if s.workDir != "" {
		if err := osutil.ReplaceFile(filepath.Join(s.workDir, "CURRENT_BEST"), candidate); err != nil {
			return false, err
		}
	}
	s.bytes = append([]byte(nil), candidate...)
	s.counters = counters
	return true, nil
}
