// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cachekey computes the DJB2 digest used everywhere husako needs
// a stable, short identity for a string or a file tree: cache bucket
// names under .husako/cache, and lock-file content hashes.
package cachekey

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Hash returns the 16-character lowercase hex DJB2 digest of s.
//
// h := 5381; for each byte b: h := (h*33 + b) mod 2^64.
//
// This is the one place the algorithm is implemented; both cache bucket
// names and lock content-hash fields go through it, so a change here
// invalidates every cache entry and every lock identity simultaneously.
func Hash(s string) string {
	return fmt.Sprintf("%016x", sum(s))
}

func sum(s string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint64(s[i])
	}
	return h
}

// HashBytes is Hash for a byte slice, avoiding an intermediate string copy
// for large file contents.
func HashBytes(b []byte) string {
	var h uint64 = 5381
	for _, c := range b {
		h = h*33 + uint64(c)
	}
	return fmt.Sprintf("%016x", h)
}

// HashDir computes the content hash of a directory: every contained file
// in lexicographic order by path relative to root, each fed as
// "<relpath>\0<bytes>\0" into a single DJB2 stream.
func HashDir(root string) (string, error) {
	type entry struct {
		rel  string
		path string
	}
	var entries []entry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), path: path})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	var h uint64 = 5381
	feed := func(b []byte) {
		for _, c := range b {
			h = h*33 + uint64(c)
		}
	}

	for _, e := range entries {
		data, err := os.ReadFile(e.path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", e.path, err)
		}
		feed([]byte(e.rel))
		feed([]byte{0})
		feed(data)
		feed([]byte{0})
	}

	return fmt.Sprintf("%016x", h), nil
}
