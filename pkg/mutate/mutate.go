// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package mutate defines the Mutator capability the Input Preparer
// consumes (spec §6) and a default dictionary-aware byte mutator. The
// low-level byte-mangling algorithms themselves are explicitly out of
// scope for the core (spec §1) — this default implementation exists so
// the supervisor is runnable end to end, and any part of it can be
// swapped out without touching pkg/prepare.
package mutate

import (
	"github.com/Bluebear171/honggfuzz/pkg/idgen"
)

// Mutator is the capability consumed by the Input Preparer (spec §6).
type Mutator interface {
	// Resize grows or shrinks buf in place toward a plausible size for
	// this run, never exceeding max. Implementations may leave buf
	// unchanged.
	Resize(buf []byte, max int64, r *idgen.Rand) []byte
	// Mangle flips and substitutes bytes in buf according to flipRate,
	// optionally drawing replacement strings from dictionary.
	Mangle(buf []byte, flipRate float64, dictionary [][]byte, r *idgen.Rand)
	// PostMangle runs after Mangle and after any resize; implementations
	// use it for format-specific repair (e.g. fixing up a checksum).
	// The default Mutator's PostMangle is a no-op.
	PostMangle(buf []byte, r *idgen.Rand)
}

// Default is a minimal flip/dictionary mutator: each byte is flipped
// independently with probability flipRate, and a dictionary token
// occasionally overwrites the bytes at a random offset (cut short at
// the end of the buffer). It is deliberately simple — production
// byte-mutation strategy is an external collaborator per spec §1.
type Default struct{}

func (Default) Resize(buf []byte, max int64, r *idgen.Rand) []byte {
	if int64(len(buf)) >= max {
		return buf[:max]
	}
	if len(buf) == 0 {
		return buf
	}
	// Occasionally grow by duplicating a random slice, capped at max.
	if r.Float64() < 0.1 {
		extra := buf[r.Range(0, len(buf)):]
		grown := append(append([]byte(nil), buf...), extra...)
		if int64(len(grown)) > max {
			grown = grown[:max]
		}
		return grown
	}
	return buf
}

func (Default) Mangle(buf []byte, flipRate float64, dictionary [][]byte, r *idgen.Rand) {
	if len(buf) == 0 {
		return
	}
	for i := range buf {
		if r.Float64() < flipRate {
			buf[i] ^= 1 << uint(r.Range(0, 8))
		}
	}
	if len(dictionary) > 0 && r.Float64() < flipRate*10 {
		tok := dictionary[r.Range(0, len(dictionary))]
		at := r.Range(0, len(buf))
		n := len(tok)
		if at+n > len(buf) {
			n = len(buf) - at
		}
		copy(buf[at:at+n], tok[:n])
	}
}

func (Default) PostMangle([]byte, *idgen.Rand) {}
