// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package feedback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedIfEmptyRefusedAfterOffer(t *testing.T) {
	s := New("", 1024)
	assert.True(t, s.SeedIfEmpty([]byte("seed")))
	bytes, _ := s.Snapshot()
	assert.Equal(t, "seed", string(bytes))

	_, err := s.Offer([]byte("xx"), Counters{InstrCnt: 1})
	require.NoError(t, err)

	assert.False(t, s.SeedIfEmpty([]byte("other")))
}

func TestOfferDominatingCandidateWins(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 1024)

	ok, err := s.Offer([]byte("a"), Counters{InstrCnt: 5})
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(filepath.Join(dir, "CURRENT_BEST"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	ok, err = s.Offer([]byte("b"), Counters{InstrCnt: 3})
	require.NoError(t, err)
	assert.False(t, ok, "regression must not replace the best")

	bytes, counters := s.Snapshot()
	assert.Equal(t, "a", string(bytes))
	assert.Equal(t, int64(5), counters.InstrCnt)
}

func TestOfferTieReplacesBuffer(t *testing.T) {
	s := New("", 1024)
	ok, err := s.Offer([]byte("a"), Counters{InstrCnt: 5})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Offer([]byte("b"), Counters{InstrCnt: 5})
	require.NoError(t, err)
	assert.True(t, ok, "a tie still counts as interesting per spec")
}

func TestDominatesRequiresStrictImprovementSomewhere(t *testing.T) {
	a := Counters{InstrCnt: 5, BranchCnt: 5}
	assert.False(t, a.Dominates(a))
	b := Counters{InstrCnt: 6, BranchCnt: 5}
	assert.True(t, b.Dominates(a))
}
