// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package report defines the Reporter capability (spec §6) and a
// default textual implementation writing HONGGFUZZ.REPORT.TXT, the
// out-of-scope rendering layer the core hands a pre-built blob to
// rather than owning a report format itself (spec §1 Non-goals).
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bluebear171/honggfuzz/pkg/target"
)

// Reporter is the capability the Crash Classifier and Supervisor hand a
// finished Observation to for rendering (spec §6 Reporter::Report).
type Reporter interface {
	Report(obs *target.Observation, fingerprint uint64, inputPath string) ([]byte, error)
}

// TextFile appends one human-readable record per crash to
// HONGGFUZZ.REPORT.TXT under WorkDir, the default report sink named in
// spec §6. Each record is tagged with a random UUID so an operator can
// cross-reference it against the verifier/display log without parsing
// the crash filename.
type TextFile struct {
	WorkDir string
}

// Report renders obs and appends it to the report file, returning the
// rendered blob (also suitable as crashstore.Record.ReportBlob).
func (t *TextFile) Report(obs *target.Observation, fingerprint uint64, inputPath string) ([]byte, error) {
	id := uuid.New()
	var b strings.Builder
	fmt.Fprintf(&b, "REPORT_ID: %s\n", id)
	fmt.Fprintf(&b, "TIME: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "INPUT: %s\n", filepath.Base(inputPath))
	fmt.Fprintf(&b, "PID: %d\n", obs.PID)
	fmt.Fprintf(&b, "SIGNAL: %d\n", obs.ExitSignal)
	fmt.Fprintf(&b, "FINGERPRINT: %016x\n", fingerprint)
	fmt.Fprintf(&b, "CRASHING_PC: %016x\n", obs.CrashingPC)
	fmt.Fprintf(&b, "FAULT_ADDR: %016x\n", obs.FaultAddr)
	if obs.Symbol != "" {
		fmt.Fprintf(&b, "SYMBOL: %s\n", obs.Symbol)
	}
	fmt.Fprintf(&b, "WALL_MS: %d\n", obs.WallMS)
	b.WriteString("---\n")

	blob := []byte(b.String())
	if t.WorkDir != "" {
		f, err := os.OpenFile(filepath.Join(t.WorkDir, "HONGGFUZZ.REPORT.TXT"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("report: opening report file: %w", err)
		}
		defer f.Close()
		if _, err := f.Write(blob); err != nil {
			return nil, fmt.Errorf("report: writing report file: %w", err)
		}
	}
	return blob, nil
}
