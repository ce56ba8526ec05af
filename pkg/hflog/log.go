// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package hflog provides a verbosity-gated logger shared by every
// component of the supervisor, plus a small in-memory ring buffer so a
// Reporter can attach recent log lines to a crash report.
package hflog

import (
	"bytes"
	"flag"
	"fmt"
	golog "log"
	"sync"
	"time"
)

var (
	flagV = flag.Int("vv", 0, "log verbosity")

	mu           sync.Mutex
	cacheEntries []string
	cachePos     int
	cacheMem     int
	cacheMaxMem  int
	prependTime  = true // disabled by tests for deterministic output
)

// EnableCaching turns on the in-memory ring buffer. Cached output can
// later be read back with CachedOutput. Calling it twice is a bug in the
// caller and panics, same as double-enabling a global resource anywhere
// else in this package.
func EnableCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if cacheEntries != nil {
		panic("hflog: caching already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("hflog: invalid maxLines/maxMem")
	}
	cacheMaxMem = maxMem
	cacheEntries = make([]string, maxLines)
}

// CachedOutput returns the buffered log lines in emission order.
func CachedOutput() string {
	mu.Lock()
	defer mu.Unlock()
	buf := new(bytes.Buffer)
	for i := range cacheEntries {
		pos := (cachePos + i) % len(cacheEntries)
		if cacheEntries[pos] == "" {
			continue
		}
		buf.WriteString(cacheEntries[pos])
		buf.WriteByte('\n')
	}
	return buf.String()
}

// Logf logs msg at verbosity level v. It is only printed to the standard
// logger when v is at or below the -vv flag; it is always appended to the
// cache (when enabled) for v<=1, mirroring the always-on crash context the
// Reporter needs regardless of how quiet the run was asked to be.
func Logf(v int, msg string, args ...interface{}) {
	mu.Lock()
	doLog := v <= *flagV
	if cacheEntries != nil && v <= 1 {
		cacheMem -= len(cacheEntries[cachePos])
		if cacheMem < 0 {
			panic("hflog: cache size underflow")
		}
		timeStr := ""
		if prependTime {
			timeStr = time.Now().Format("2006/01/02 15:04:05 ")
		}
		cacheEntries[cachePos] = fmt.Sprintf(timeStr+msg, args...)
		cacheMem += len(cacheEntries[cachePos])
		cachePos++
		if cachePos == len(cacheEntries) {
			cachePos = 0
		}
		for i := 0; i < len(cacheEntries)-1 && cacheMem > cacheMaxMem; i++ {
			pos := (cachePos + i) % len(cacheEntries)
			cacheMem -= len(cacheEntries[pos])
			cacheEntries[pos] = ""
		}
	}
	mu.Unlock()

	if doLog {
		golog.Printf(msg, args...)
	}
}

// Fatalf logs and terminates the process. Reserved for ConfigError and
// InternalInvariant failures (spec §7) — never for per-iteration errors,
// which are counted and logged via Logf instead.
func Fatalf(msg string, args ...interface{}) {
	golog.Fatalf(msg, args...)
}

// Fatal is Fatalf's error-argument sibling.
func Fatal(err error) {
	golog.Fatal(err)
}
