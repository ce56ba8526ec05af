// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package prepare implements the Input Preparer (spec §4.2): produce one
// on-disk input per worker iteration via exactly one of three strategies
// selected by configuration — static, dynamic-feedback, or
// external-command.
package prepare

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/Bluebear171/honggfuzz/pkg/config"
	"github.com/Bluebear171/honggfuzz/pkg/corpus"
	"github.com/Bluebear171/honggfuzz/pkg/feedback"
	"github.com/Bluebear171/honggfuzz/pkg/idgen"
	"github.com/Bluebear171/honggfuzz/pkg/mutate"
	"github.com/Bluebear171/honggfuzz/pkg/osutil"
)

// MutatorError wraps a broken external-mutator contract (spec §4.2,
// §7): the child exited nonzero or could not be run at all, with its
// combined stdout+stderr attached so the diagnostic isn't lost
// (SPEC_FULL §5). A child killed by a signal yields a plain error
// instead.
type MutatorError struct {
	Err    error
	Output []byte
}

func (e *MutatorError) Error() string {
	return fmt.Sprintf("prepare: external mutator: %v: %s", e.Err, e.Output)
}

func (e *MutatorError) Unwrap() error { return e.Err }

// Preparer produces one materialized input per call to Prepare, choosing
// its strategy from cfg exactly as spec §4.2 requires (mutually
// exclusive by construction — config.Validate already rejects a config
// that selects more than one).
type Preparer struct {
	Cfg      *config.Config
	Corpus   *corpus.Corpus
	Feedback *feedback.Store
	Mutator  mutate.Mutator
}

// Prepare runs one iteration's preparation and returns the path of the
// materialized input, ready for the Target Runner.
func (p *Preparer) Prepare(seedIdx int, r *idgen.Rand, pid int) (string, error) {
	switch {
	case p.Cfg.ExternalCmd != "":
		return p.prepareExternal(seedIdx, r, pid)
	case len(p.Cfg.DynFileMethods) > 0:
		return p.prepareDynamic(seedIdx, r, pid)
	default:
		return p.prepareStatic(seedIdx, r, pid)
	}
}

func (p *Preparer) tmpPath(r *idgen.Rand, pid int) string {
	return idgen.TempInputName(p.Cfg.WorkDir, idgen.ProgName(), pid, r, p.Cfg.FileExtn)
}

// prepareStatic is spec §4.2 "static mode": read, resize, mangle,
// optional post-mangle, write create-exclusive.
func (p *Preparer) prepareStatic(seedIdx int, r *idgen.Rand, pid int) (string, error) {
	buf, err := os.ReadFile(p.Corpus.At(seedIdx))
	if err != nil {
		return "", fmt.Errorf("prepare: reading seed %q: %w", p.Corpus.At(seedIdx), err)
	}
	buf = p.Mutator.Resize(buf, p.Cfg.MaxFileSz, r)
	p.Mutator.Mangle(buf, p.Cfg.FlipRate, p.Cfg.Dictionary, r)
	p.Mutator.PostMangle(buf, r)

	dst := p.tmpPath(r, pid)
	if err := osutil.WriteFileExcl(dst, buf, osutil.DefaultFilePerm); err != nil {
		return "", fmt.Errorf("prepare: writing %q: %w", dst, err)
	}
	return dst, nil
}

// prepareDynamic is spec §4.2 "dynamic-feedback mode": steps 1-6,
// mutating only once the warm-up iteration (all-zero counters) has
// passed.
func (p *Preparer) prepareDynamic(seedIdx int, r *idgen.Rand, pid int) (string, error) {
	if p.Feedback.SeedIfEmpty(nil) && p.Cfg.InputPath != "" {
		seed, err := os.ReadFile(p.Corpus.At(seedIdx))
		if err != nil {
			return "", fmt.Errorf("prepare: seeding best buffer from %q: %w", p.Corpus.At(seedIdx), err)
		}
		// This second SeedIfEmpty call stores the seed only while the
		// counter vector is still all-zero; if an Offer landed in the
		// meantime it leaves the best buffer alone. Workers that are
		// all still in warm-up each replace the buffer with their seed.
		p.Feedback.SeedIfEmpty(seed)
	}

	best, counters := p.Feedback.Snapshot()
	buf := append([]byte(nil), best...)

	if !counters.IsZero() {
		buf = p.Mutator.Resize(buf, p.Cfg.MaxFileSz, r)
		p.Mutator.Mangle(buf, p.Cfg.FlipRate, p.Cfg.Dictionary, r)
	}

	dst := p.tmpPath(r, pid)
	if err := osutil.WriteFileExcl(dst, buf, osutil.DefaultFilePerm); err != nil {
		return "", fmt.Errorf("prepare: writing %q: %w", dst, err)
	}
	return dst, nil
}

// prepareExternal is spec §4.2 "external-command mode": an empty temp
// file, optionally pre-seeded and post-mangled, handed to
// external_command as its sole argument. A signaled exit fails the
// iteration; any other nonzero exit is a broken mutator contract and is
// returned as a *MutatorError carrying the captured output so the
// caller can decide to abort the process (spec §7).
func (p *Preparer) prepareExternal(seedIdx int, r *idgen.Rand, pid int) (string, error) {
	dst := p.tmpPath(r, pid)

	var buf []byte
	if p.Cfg.InputPath != "" {
		seed, err := os.ReadFile(p.Corpus.At(seedIdx))
		if err != nil {
			return "", fmt.Errorf("prepare: reading seed %q: %w", p.Corpus.At(seedIdx), err)
		}
		buf = seed
		p.Mutator.PostMangle(buf, r)
	}
	if err := osutil.WriteFileExcl(dst, buf, osutil.DefaultFilePerm); err != nil {
		return "", fmt.Errorf("prepare: writing %q: %w", dst, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(p.Cfg.TimeoutS)*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.Cfg.ExternalCmd, dst)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err == nil {
		return dst, nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		if exitErr.ExitCode() < 0 {
			// Terminated by signal: fails this iteration only.
			os.Remove(dst)
			return "", fmt.Errorf("prepare: external mutator %q killed: %w", p.Cfg.ExternalCmd, err)
		}
		os.Remove(dst)
		return "", &MutatorError{Err: err, Output: out.Bytes()}
	}
	os.Remove(dst)
	return "", &MutatorError{Err: err, Output: out.Bytes()}
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
