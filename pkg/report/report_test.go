// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluebear171/honggfuzz/pkg/target"
)

func TestReportAppendsToReportFile(t *testing.T) {
	dir := t.TempDir()
	r := &TextFile{WorkDir: dir}

	obs := &target.Observation{PID: 42, ExitSignal: target.SigSegv, CrashingPC: 0xdead}
	blob1, err := r.Report(obs, 0x1234, "/tmp/in1")
	require.NoError(t, err)
	assert.Contains(t, string(blob1), "FINGERPRINT: 0000000000001234")

	blob2, err := r.Report(obs, 0x5678, "/tmp/in2")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "HONGGFUZZ.REPORT.TXT"))
	require.NoError(t, err)
	assert.Contains(t, string(data), string(blob1))
	assert.Contains(t, string(data), string(blob2))
}

func TestReportWithoutWorkDirStillRenders(t *testing.T) {
	r := &TextFile{}
	obs := &target.Observation{PID: 1, ExitSignal: target.SigAbrt}
	blob, err := r.Report(obs, 0x1, "/tmp/in")
	require.NoError(t, err)
	assert.Contains(t, string(blob), "SIGNAL: 6")
}

func TestReportIncludesSymbolWhenResolved(t *testing.T) {
	r := &TextFile{}
	obs := &target.Observation{ExitSignal: target.SigSegv, Symbol: "parse_input"}
	blob, err := r.Report(obs, 1, "/tmp/in")
	require.NoError(t, err)
	assert.Contains(t, string(blob), "SYMBOL: parse_input")
}
