// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTimeout(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	_, timedOut, err := Run(50*time.Millisecond, cmd)
	assert.True(t, timedOut)
	assert.Error(t, err)
}

func TestRunNormalExit(t *testing.T) {
	cmd := exec.Command("true")
	_, timedOut, err := Run(time.Second, cmd)
	assert.False(t, timedOut)
	assert.NoError(t, err)
}

func TestWriteFileExclDuplicateFails(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "f")
	require.NoError(t, WriteFileExcl(name, []byte("a"), DefaultFilePerm))
	err := WriteFileExcl(name, []byte("b"), DefaultFilePerm)
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestReplaceFileAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "CURRENT_BEST")
	require.NoError(t, ReplaceFile(dst, []byte("v1")))
	require.NoError(t, ReplaceFile(dst, []byte("v2")))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.False(t, IsExist(filepath.Join(dir, ".tmp.CURRENT_BEST")))
}
