// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConcurrentAdd(t *testing.T) {
	s := NewSet()
	v := s.Create("mutations_cnt")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Add(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(50), v.Load())
}

func TestCollectSnapshot(t *testing.T) {
	s := NewSet()
	s.Create("crashes_cnt").Add(3)
	s.Create("timeouts_cnt").Add(2)

	snap := s.Collect()
	assert.Equal(t, uint64(3), snap["crashes_cnt"])
	assert.Equal(t, uint64(2), snap["timeouts_cnt"])
}

func TestPrometheusRegistrationDoesNotPanicOnReuse(t *testing.T) {
	s := NewSet()
	assert.NotPanics(t, func() {
		s.Create("unique_crashes_cnt", PromOption("hfuzz_unique_crashes_total_test_reuse"))
		s.Create("unique_crashes_cnt_2", PromOption("hfuzz_unique_crashes_total_test_reuse"))
	})
}

func TestLatencyQuantilesTrackObservations(t *testing.T) {
	l := NewLatency()
	for i := 1; i <= 100; i++ {
		l.Observe(int64(i))
	}
	assert.InDelta(t, 50, l.Quantile(0.5), 10)
	assert.InDelta(t, 99, l.Quantile(0.99), 10)
}

func TestLatencyQuantileOnEmptyHistogramDoesNotPanic(t *testing.T) {
	l := NewLatency()
	assert.NotPanics(t, func() { l.Quantile(0.5) })
}
