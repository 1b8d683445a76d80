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

// Package apply implements the transactional diff applier:
// given a FileTree diff between a source and a target directory, it mutates
// the target with a per-top-level-subtree atomic swap so that readers never
// observe a half-applied update.
package apply

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cowdogmoo/imagecore/pkg/filetree"
	"github.com/cowdogmoo/imagecore/pkg/logging"
)

// Options controls optional steps of ApplyDiff.
type Options struct {
	// SkipRemovals omits stage 2; the caller accepts stale files.
	SkipRemovals bool
	// SkipSync omits both sync barriers, for callers that perform their
	// own global sync.
	SkipSync bool
}

// firstComponent returns the leading path segment of p (p itself if p has
// no separator) and the TmpPrefix-decorated temp name for that segment,
// e.g. "foo/subdir/bar" -> ("foo", ".btmp.foo").
func firstComponent(p string) (string, string) {
	first := p
	if idx := strings.IndexByte(p, '/'); idx >= 0 {
		first = p[:idx]
	}
	return first, filetree.TmpPrefix + first
}

// ApplyDiff mutates destDir so that it matches the tree described by diff,
// sourcing new or changed content from srcDir. It assumes exclusive
// ownership of destDir for the duration of the call.
func ApplyDiff(ctx context.Context, srcDir, destDir string, diff *filetree.Diff, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}

	if err := cleanupTmp(destDir); err != nil {
		return fmt.Errorf("cleaning up temporary files: %w", err)
	}

	updates := make(map[string]string)

	if !opts.SkipRemovals {
		if err := stageRemovals(destDir, diff.Removals, updates); err != nil {
			return err
		}
	}

	if err := stageChangesAndAdditions(ctx, srcDir, destDir, diff, updates); err != nil {
		return err
	}

	for original, tmp := range updates {
		if err := exchangeOrRename(destDir, original, tmp); err != nil {
			return err
		}
	}

	if !opts.SkipSync {
		if err := syncDir(destDir); err != nil {
			return fmt.Errorf("sync barrier #1: %w", err)
		}
	}

	for _, tmp := range updates {
		if err := os.RemoveAll(filepath.Join(destDir, tmp)); err != nil {
			return fmt.Errorf("clean up temp %s: %w", tmp, err)
		}
	}

	if !opts.SkipSync {
		if err := syncDir(destDir); err != nil {
			return fmt.Errorf("sync barrier #2: %w", err)
		}
	}

	return nil
}

func stageRemovals(destDir string, removals map[string]struct{}, updates map[string]string) error {
	for p := range removals {
		first, firstTmp := firstComponent(p)
		var pathTmp string
		if first == p {
			pathTmp = p
		} else {
			if _, ok := updates[first]; !ok {
				if !pathExists(filepath.Join(destDir, firstTmp)) {
					if err := copyDir(destDir, first, firstTmp); err != nil {
						return err
					}
				}
				updates[first] = firstTmp
			}
			rest := strings.TrimPrefix(p, first+"/")
			pathTmp = filepath.Join(firstTmp, rest)
		}

		if err := os.Remove(filepath.Join(destDir, pathTmp)); err != nil {
			return fmt.Errorf("removing %s: %w", pathTmp, err)
		}
	}
	return nil
}

func stageChangesAndAdditions(ctx context.Context, srcDir, destDir string, diff *filetree.Diff, updates map[string]string) error {
	paths := make([]string, 0, len(diff.Changes)+len(diff.Additions))
	for p := range diff.Changes {
		paths = append(paths, p)
	}
	for p := range diff.Additions {
		paths = append(paths, p)
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		first, firstTmp := firstComponent(p)
		pathTmp := firstTmp

		if first != p {
			if !pathExists(filepath.Join(destDir, firstTmp)) && pathExists(filepath.Join(destDir, first)) {
				if err := copyDir(destDir, first, firstTmp); err != nil {
					return err
				}
			}
			rest := strings.TrimPrefix(p, first+"/")
			pathTmp = filepath.Join(firstTmp, rest)

			if parent := filepath.Dir(pathTmp); parent != "." {
				if err := os.MkdirAll(filepath.Join(destDir, parent), filetree.DefaultFileMode); err != nil {
					return fmt.Errorf("ensure dir %s: %w", parent, err)
				}
			}

			if err := os.Remove(filepath.Join(destDir, pathTmp)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s before copying: %w", pathTmp, err)
			}
		}

		updates[first] = firstTmp

		if err := copyFile(filepath.Join(srcDir, p), filepath.Join(destDir, pathTmp)); err != nil {
			return fmt.Errorf("copying %s to %s: %w", p, pathTmp, err)
		}
	}
	return nil
}

func exchangeOrRename(destDir, original, tmp string) error {
	originalPath := filepath.Join(destDir, original)
	tmpPath := filepath.Join(destDir, tmp)

	logging.Debug("applying update for %s via %s", original, tmp)

	if pathExists(originalPath) {
		if err := exchange(originalPath, tmpPath); err != nil {
			return fmt.Errorf("exchange for %s and %s: %w", tmp, original, err)
		}
		return nil
	}
	if err := os.Rename(tmpPath, originalPath); err != nil {
		return fmt.Errorf("rename for %s and %s: %w", tmp, original, err)
	}
	return nil
}

func pathExists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// cleanupTmp recursively removes any file or directory whose name starts
// with filetree.TmpPrefix.
func cleanupTmp(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if strings.HasPrefix(entry.Name(), filetree.TmpPrefix) {
			if err := os.RemoveAll(full); err != nil {
				return fmt.Errorf("remove %s: %w", full, err)
			}
			continue
		}
		if entry.IsDir() {
			if err := cleanupTmp(full); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyDir recursively clones src to dst, both relative to root, preserving
// file modes. Grounded on the original's shell-out to "cp -a"; we follow
// the same approach since os.CopyFS (Go's closest stdlib analogue) does not
// preserve permissions.
func copyDir(root, src, dst string) error {
	cmd := exec.Command("cp", "-a", src, dst)
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("copy %s to %s: %w (%s)", src, dst, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
