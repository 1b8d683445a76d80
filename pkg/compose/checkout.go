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

package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

// whiteoutPrefix and whiteoutOpaque follow the OCI image layer whiteout
// convention (a real-world, ecosystem-standard marker, not something this
// module's object-store grammar defines): a regular file named
// ".wh.<name>" in a derived tree means "<name>" must not survive the
// merge; ".wh..wh..opq" inside a directory means that directory's
// pre-existing children from earlier layers are discarded before this
// layer's own entries are applied.
const (
	whiteoutPrefix = ".wh."
	whiteoutOpaque = ".wh..wh..opq"
)

// CheckoutCommit materializes commit's tree under destDir, hardlinking
// regular file content from the object store where possible.
func CheckoutCommit(s store.ObjectStore, commit digestx.Digest, destDir string) error {
	rootDirTree, rootDirMeta, _, err := s.ReadCommit(commit)
	if err != nil {
		return fmt.Errorf("read commit %s: %w", commit, err)
	}
	return checkoutDirTree(s, rootDirTree, rootDirMeta, destDir)
}

// MergeCommit checks out commit's tree on top of destDir's existing
// content, overwriting any path the derived tree also names and honoring
// OCI-style whiteout markers.
func MergeCommit(s store.ObjectStore, commit digestx.Digest, destDir string) error {
	rootDirTree, rootDirMeta, _, err := s.ReadCommit(commit)
	if err != nil {
		return fmt.Errorf("read commit %s: %w", commit, err)
	}
	return mergeDirTree(s, rootDirTree, rootDirMeta, destDir)
}

func checkoutDirTree(s store.ObjectStore, dirTree, dirMeta digestx.Digest, destDir string) error {
	uid, gid, mode, _, err := s.ReadDirMeta(dirMeta)
	if err != nil {
		return fmt.Errorf("read dirmeta %s: %w", dirMeta, err)
	}
	if err := os.MkdirAll(destDir, os.FileMode(mode)|0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", destDir, err)
	}
	_ = os.Chown(destDir, uid, gid)

	files, subdirs, err := s.ReadDirTree(dirTree)
	if err != nil {
		return fmt.Errorf("read dirtree %s: %w", dirTree, err)
	}
	for name, fileDigest := range files {
		if err := checkoutEntry(s, fileDigest, filepath.Join(destDir, name)); err != nil {
			return err
		}
	}
	for name, pair := range subdirs {
		if err := checkoutDirTree(s, pair[0], pair[1], filepath.Join(destDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// mergeDirTree is checkoutDirTree's overwrite-union variant: existing
// destDir content from an earlier layer survives unless this tree
// replaces or whites it out.
func mergeDirTree(s store.ObjectStore, dirTree, dirMeta digestx.Digest, destDir string) error {
	uid, gid, mode, _, err := s.ReadDirMeta(dirMeta)
	if err != nil {
		return fmt.Errorf("read dirmeta %s: %w", dirMeta, err)
	}
	if err := os.MkdirAll(destDir, os.FileMode(mode)|0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", destDir, err)
	}
	_ = os.Chown(destDir, uid, gid)

	files, subdirs, err := s.ReadDirTree(dirTree)
	if err != nil {
		return fmt.Errorf("read dirtree %s: %w", dirTree, err)
	}

	if _, opaque := files[whiteoutOpaque]; opaque {
		if err := clearExistingChildren(destDir); err != nil {
			return err
		}
	}

	for name, fileDigest := range files {
		if name == whiteoutOpaque {
			continue
		}
		if target, ok := strings.CutPrefix(name, whiteoutPrefix); ok {
			if err := os.RemoveAll(filepath.Join(destDir, target)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("whiteout %s: %w", target, err)
			}
			continue
		}
		dest := filepath.Join(destDir, name)
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("remove %s before union checkout: %w", dest, err)
		}
		if err := checkoutEntry(s, fileDigest, dest); err != nil {
			return err
		}
	}
	for name, pair := range subdirs {
		if err := mergeDirTree(s, pair[0], pair[1], filepath.Join(destDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func clearExistingChildren(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clear %s: %w", filepath.Join(dir, e.Name()), err)
		}
	}
	return nil
}

func checkoutEntry(s store.ObjectStore, fileDigest digestx.Digest, dest string) error {
	if s.HasObject(store.KindSymlink, fileDigest) {
		attrs, err := s.ReadFileAttrs(store.KindSymlink, fileDigest)
		if err != nil {
			return fmt.Errorf("read symlink attrs %s: %w", fileDigest, err)
		}
		if err := os.Symlink(attrs.Target, dest); err != nil {
			return fmt.Errorf("symlink %s: %w", dest, err)
		}
		return nil
	}

	attrs, err := s.ReadFileAttrs(store.KindFile, fileDigest)
	if err != nil {
		return fmt.Errorf("read file attrs %s: %w", fileDigest, err)
	}

	src := s.ObjectPath(store.KindFile, fileDigest)
	if err := os.Link(src, dest); err != nil {
		data, rerr := s.ReadObjectContent(store.KindFile, fileDigest)
		if rerr != nil {
			return fmt.Errorf("read file content %s: %w", fileDigest, rerr)
		}
		if werr := os.WriteFile(dest, data, os.FileMode(attrs.Mode)); werr != nil {
			return fmt.Errorf("write file %s: %w", dest, werr)
		}
	}
	_ = os.Chmod(dest, os.FileMode(attrs.Mode))
	_ = os.Chown(dest, attrs.UID, attrs.GID)
	return nil
}

// checkoutSubpath checks out only the subtree at relPath (if present)
// under destRoot, returning false if relPath does not exist in the tree
//.
func checkoutSubpath(s store.ObjectStore, rootDirTree, rootDirMeta digestx.Digest, relPath, destRoot string) (bool, error) {
	dirTree, dirMeta := rootDirTree, rootDirMeta
	parts := strings.Split(relPath, "/")
	for _, part := range parts {
		_, subdirs, err := s.ReadDirTree(dirTree)
		if err != nil {
			return false, fmt.Errorf("read dirtree %s: %w", dirTree, err)
		}
		pair, ok := subdirs[part]
		if !ok {
			return false, nil
		}
		dirTree, dirMeta = pair[0], pair[1]
	}
	if err := checkoutDirTree(s, dirTree, dirMeta, destRoot); err != nil {
		return false, err
	}
	return true, nil
}
