// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package crashstore persists crash records to work_dir (spec §4.5 step
// 6, §6) using create-exclusive writes keyed by fingerprint, so a
// SaveUnique call reports whether this is the first time a given
// identity was seen, for pkg/classify to decide uniqueness.
package crashstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bluebear171/honggfuzz/pkg/osutil"
)

// Record is everything the Crash Classifier has decided to persist
// about one crash.
type Record struct {
	Fingerprint uint64
	CrashingPC  uint64
	FaultAddr   uint64
	Signal      int32
	Extn        string
	ReportBlob  []byte
}

// FileName returns the stable, fingerprint-embedding crash filename from
// spec §6: SIG<n>.PC.<hex>.STACK.<hex>.ADDR.<hex>.<extn>
func (r Record) FileName() string {
	extn := r.Extn
	if extn == "" {
		extn = "fuzz"
	}
	return fmt.Sprintf("SIG%d.PC.%016x.STACK.%016x.ADDR.%016x.%s",
		r.Signal, r.CrashingPC, r.Fingerprint, r.FaultAddr, extn)
}

// Store persists crash records under BaseDir.
type Store struct {
	BaseDir string
}

// SaveUnique writes rec's blob to BaseDir under its fingerprint-derived
// name using create-exclusive semantics. It returns (true, nil) the
// first time a given fingerprint is saved, and (false, nil) — without
// touching disk — on any later duplicate (spec §4.5 step 6, §8 property
// 3: no two unique-crash files share a fingerprint).
func (s *Store) SaveUnique(rec Record) (first bool, err error) {
	if err := osutil.MkdirAll(s.BaseDir); err != nil {
		return false, fmt.Errorf("crashstore: %w", err)
	}
	path := filepath.Join(s.BaseDir, rec.FileName())
	err = osutil.WriteFileExcl(path, rec.ReportBlob, osutil.DefaultFilePerm)
	if err == nil {
		return true, nil
	}
	if os.IsExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("crashstore: saving %q: %w", path, err)
}

// SaveAll appends a timestamp suffix so writes never collide, for the
// save_all (not save_unique) policy in spec §4.5 step 6 "else" branch.
func (s *Store) SaveAll(rec Record, timestampSuffix string) error {
	if err := osutil.MkdirAll(s.BaseDir); err != nil {
		return fmt.Errorf("crashstore: %w", err)
	}
	path := filepath.Join(s.BaseDir, rec.FileName()+"."+timestampSuffix)
	if err := os.WriteFile(path, rec.ReportBlob, osutil.DefaultFilePerm); err != nil {
		return fmt.Errorf("crashstore: saving %q: %w", path, err)
	}
	return nil
}
