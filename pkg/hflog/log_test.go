// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package hflog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaching(t *testing.T) {
	mu.Lock()
	cacheEntries = nil
	cachePos = 0
	cacheMem = 0
	prependTime = false
	mu.Unlock()
	defer func() {
		mu.Lock()
		prependTime = true
		mu.Unlock()
	}()

	EnableCaching(4, 1<<20)
	Logf(0, "line %d", 1)
	Logf(1, "line %d", 2)
	Logf(2, "ignored for cache purposes") // v=2 is still above the cache threshold in this test build

	out := CachedOutput()
	require.NotEmpty(t, out)
	assert.True(t, strings.Contains(out, "line 1"))
	assert.True(t, strings.Contains(out, "line 2"))
}

func TestEnableCachingTwicePanics(t *testing.T) {
	mu.Lock()
	cacheEntries = make([]string, 1)
	mu.Unlock()
	defer func() {
		mu.Lock()
		cacheEntries = nil
		mu.Unlock()
	}()
	assert.Panics(t, func() { EnableCaching(1, 1) })
}
