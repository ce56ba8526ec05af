// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"bufio"
	"os"
	"sort"
	"strconv"
	"strings"
)

// loadDictionary reads one token per line (blank lines and #-comments
// skipped), matching the wordlist format the teacher's mutation
// back-ends expect. This is file-I/O plumbing, not core per spec §1 —
// the core only ever sees the resulting [][]byte.
func loadDictionary(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, configErrorf("opening dictionary %q: %v", path, err)
	}
	defer f.Close()

	var dict [][]byte
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dict = append(dict, []byte(line))
	}
	if err := sc.Err(); err != nil {
		return nil, configErrorf("reading dictionary %q: %v", path, err)
	}
	return dict, nil
}

// parseHashList parses a comma-separated list of hex 64-bit hashes and
// returns them sorted, satisfying the interpolation-search invariant
// the Crash Classifier's blacklist lookup depends on (spec §4.5).
func parseHashList(csv string) ([]uint64, error) {
	var hashes []uint64
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		tok = strings.TrimPrefix(tok, "0x")
		v, err := strconv.ParseUint(tok, 16, 64)
		if err != nil {
			return nil, configErrorf("invalid stackhash %q: %v", tok, err)
		}
		hashes = append(hashes, v)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes, nil
}
