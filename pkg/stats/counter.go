// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import "sync/atomic"

type uint64Counter struct {
	v atomic.Uint64
}

func (c *uint64Counter) add(delta uint64) uint64 { return c.v.Add(delta) }
func (c *uint64Counter) load() uint64            { return c.v.Load() }
