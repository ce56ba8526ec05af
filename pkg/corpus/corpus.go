// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus builds and indexes the seed file list (spec §4.1).
package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bluebear171/honggfuzz/pkg/idgen"
)

// Sentinel errors, fatal at startup only (spec §4.1).
var (
	ErrNoInput          = errors.New("corpus: no usable input files")
	ErrAllFilesTooLarge = errors.New("corpus: every candidate file exceeds max_file_sz")
)

// Corpus is the read-only, post-init seed file list shared by all
// workers (spec §5 shared-resource policy).
type Corpus struct {
	files []string
}

// Init builds a Corpus from inputPath per spec §4.1:
//   - a directory: enumerate regular files with size in (0, maxFileSz]
//   - a regular file: validate its size and form a one-element list
//   - empty: only legal when dynamic or external mode is active, in
//     which case a single synthetic placeholder entry is created so
//     every downstream index operation still has something to name.
func Init(inputPath string, maxFileSz int64, dynamicOrExternal bool) (*Corpus, error) {
	if inputPath == "" {
		if !dynamicOrExternal {
			return nil, ErrNoInput
		}
		return &Corpus{files: []string{"DYNAMIC_FILE"}}, nil
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("corpus: stat %q: %w", inputPath, err)
	}

	if !info.IsDir() {
		if info.Size() == 0 || info.Size() > maxFileSz {
			return nil, ErrAllFilesTooLarge
		}
		return &Corpus{files: []string{inputPath}}, nil
	}

	entries, err := os.ReadDir(inputPath)
	if err != nil {
		return nil, fmt.Errorf("corpus: reading dir %q: %w", inputPath, err)
	}
	var files []string
	sawOversize := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.Size() == 0 {
			continue
		}
		if fi.Size() > maxFileSz {
			sawOversize = true
			continue
		}
		files = append(files, filepath.Join(inputPath, fi.Name()))
	}
	if len(files) == 0 {
		if sawOversize {
			return nil, ErrAllFilesTooLarge
		}
		return nil, ErrNoInput
	}
	return &Corpus{files: files}, nil
}

// Len reports the number of seeds.
func (c *Corpus) Len() int { return len(c.files) }

// At returns the seed path at index i.
func (c *Corpus) At(i int) string { return c.files[i] }

// Basename returns the base name of the seed at index i, used to name
// per-iteration artifacts after their originating seed.
func (c *Corpus) Basename(i int) string {
	return filepath.Base(c.files[i])
}

// Pick returns a uniformly random index into the corpus.
func (c *Corpus) Pick(r *idgen.Rand) int {
	return r.Range(0, len(c.files))
}
