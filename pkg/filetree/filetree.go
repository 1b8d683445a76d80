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

// Package filetree models a flat filename->(size, content-digest) mapping
// for a subtree, used by the diff applier to compare an
// on-disk EFI system partition against a target tree. FAT filesystems
// hold only regular files and directories, so from_dir rejects anything
// else outright.
package filetree

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
)

// TmpPrefix is the reserved prefix the diff applier uses for its
// temporary subtree swaps. FromDir rejects any file using it.
const TmpPrefix = ".btmp."

// DefaultFileMode is applied to directories the diff applier creates,
// since FAT filesystems carry no unix permission bits of their own
//.
const DefaultFileMode = 0o700

// FileMetadata is (size, content-digest) for one tracked file.
type FileMetadata struct {
	Size   uint64
	Digest digestx.Digest
}

// FileTree is a flat path->FileMetadata mapping for a subtree. Keys are
// slash-separated relative paths with no leading slash.
type FileTree struct {
	Children map[string]FileMetadata
}

// New returns an empty FileTree.
func New() *FileTree {
	return &FileTree{Children: make(map[string]FileMetadata)}
}

// FromDir recursively walks dir and hashes every regular file with
// SHA-512. Symlinks and any entry that is neither a regular file nor a
// directory fail with ErrUnsupportedEntry; a name beginning with
// TmpPrefix fails with ErrNameConflict, anywhere in the tree.
func FromDir(dir string) (*FileTree, error) {
	t := New()
	if err := walkInto(dir, "", t); err != nil {
		return nil, err
	}
	return t, nil
}

func walkInto(root, prefix string, t *FileTree) error {
	entries, err := os.ReadDir(filepath.Join(root, prefix))
	if err != nil {
		return fmt.Errorf("read dir %s: %w", filepath.Join(root, prefix), err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if len(name) >= len(TmpPrefix) && name[:len(TmpPrefix)] == TmpPrefix {
			return fmt.Errorf("file %s contains the reserved temporary prefix: %w", name, imgerrors.ErrNameConflict)
		}

		relPath := name
		if prefix != "" {
			relPath = prefix + "/" + name
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", relPath, err)
		}

		switch {
		case entry.IsDir():
			if err := walkInto(root, relPath, t); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			meta, err := hashFile(filepath.Join(root, relPath))
			if err != nil {
				return err
			}
			t.Children[relPath] = meta
		default:
			return fmt.Errorf("unsupported entry %s: %w", relPath, imgerrors.ErrUnsupportedEntry)
		}
	}
	return nil
}

func hashFile(path string) (FileMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d, n, err := digestx.CopyAndVerify(io.Discard, f, digestx.SHA512, "")
	if err != nil {
		return FileMetadata{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return FileMetadata{Size: uint64(n), Digest: d}, nil
}

// SortedPaths returns the tree's paths in sorted order, useful for
// deterministic logging and tests.
func (t *FileTree) SortedPaths() []string {
	paths := make([]string, 0, len(t.Children))
	for p := range t.Children {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
