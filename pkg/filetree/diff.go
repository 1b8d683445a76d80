/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package filetree

import (
	"fmt"
	"os"
	"path/filepath"
)

// Diff holds the three disjoint path sets produced by comparing two
// FileTrees.
type Diff struct {
	Additions map[string]struct{}
	Removals  map[string]struct{}
	Changes   map[string]struct{}
}

func newDiff() *Diff {
	return &Diff{
		Additions: make(map[string]struct{}),
		Removals:  make(map[string]struct{}),
		Changes:   make(map[string]struct{}),
	}
}

// Count returns the total number of paths across all three sets.
func (d *Diff) Count() int {
	return len(d.Additions) + len(d.Removals) + len(d.Changes)
}

// String implements fmt.Stringer for diagnostic logging.
func (d *Diff) String() string {
	return fmt.Sprintf("additions: %d removals: %d changes: %d", len(d.Additions), len(d.Removals), len(d.Changes))
}

// Diff determines the changes from t to updated: paths present only in
// updated are additions, only in t are removals, and present in both
// with differing metadata are changes. Tie-break is purely by path
// string.
func (t *FileTree) Diff(updated *FileTree) *Diff {
	return t.diffImpl(updated, true)
}

// changes is the non-additions-tracking half of Diff, kept for parity
// with the original's test-only helpers; nothing in this module calls it.
func (t *FileTree) changes(current *FileTree) *Diff {
	return t.diffImpl(current, false)
}

func (t *FileTree) diffImpl(updated *FileTree, checkAdditions bool) *Diff {
	d := newDiff()

	for path, v1 := range t.Children {
		if v2, ok := updated.Children[path]; ok {
			if v1 != v2 {
				d.Changes[path] = struct{}{}
			}
		} else {
			d.Removals[path] = struct{}{}
		}
	}

	if checkAdditions {
		for path := range updated.Children {
			if _, ok := t.Children[path]; ok {
				continue
			}
			d.Additions[path] = struct{}{}
		}
	}

	return d
}

// RelativeDiffTo compares t against the live contents of dir, restricted
// to the paths tracked in t: a path missing from dir is a removal; a
// size/hash mismatch, or a path whose live type is no longer a regular
// file, is a change. No additions are ever emitted.
func (t *FileTree) RelativeDiffTo(dir string) (*Diff, error) {
	d := newDiff()

	for path, info := range t.Children {
		full := filepath.Join(dir, path)
		fi, err := os.Lstat(full)
		if os.IsNotExist(err) {
			d.Removals[path] = struct{}{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", full, err)
		}

		if !fi.Mode().IsRegular() {
			d.Changes[path] = struct{}{}
			continue
		}

		live, err := hashFile(full)
		if err != nil {
			return nil, err
		}
		if live != info {
			d.Changes[path] = struct{}{}
		}
	}

	return d, nil
}
