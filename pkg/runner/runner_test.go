// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluebear171/honggfuzz/pkg/config"
	"github.com/Bluebear171/honggfuzz/pkg/target"
)

func TestRunUnlinksInputOnSuccess(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0644))

	r := &Runner{
		Target:   &target.Unix{Cfg: &config.Config{Cmdline: []string{"/bin/true", config.FilePlaceholder}}},
		TimeoutS: 2,
	}
	obs, err := r.Run(input)
	require.NoError(t, err)
	assert.Equal(t, target.SigNone, obs.ExitSignal)
	assert.False(t, fileExists(input))
}

func TestRunUnlinksInputOnTimeout(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0644))

	r := &Runner{
		Target:   &target.Unix{Cfg: &config.Config{Cmdline: []string{"/bin/sleep", "5"}}},
		TimeoutS: 1,
	}
	obs, err := r.Run(input)
	require.NoError(t, err)
	assert.Equal(t, target.Timeout, obs.ExitSignal)
	assert.False(t, fileExists(input))
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
