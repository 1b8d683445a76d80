package filetree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestFromDirHashesRegularFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "sub/b.txt", "world")

	tree, err := FromDir(dir)
	require.NoError(t, err)
	assert.Len(t, tree.Children, 2)
	assert.Contains(t, tree.Children, "a.txt")
	assert.Contains(t, tree.Children, "sub/b.txt")
	assert.EqualValues(t, 5, tree.Children["a.txt"].Size)
}

func TestFromDirRejectsReservedTmpPrefix(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, TmpPrefix+"leftover", "x")

	_, err := FromDir(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, imgerrors.ErrNameConflict)
}

func TestFromDirRejectsSymlinks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "real.txt", "x")
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")))

	_, err := FromDir(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, imgerrors.ErrUnsupportedEntry)
}

// Diffing a tree against itself must be empty in all three sets.
func TestDiffIdentical(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	tree, err := FromDir(dir)
	require.NoError(t, err)

	d := tree.Diff(tree)
	assert.Equal(t, 0, d.Count())
}

func TestDiffAdditionsRemovalsChanges(t *testing.T) {
	dirA := t.TempDir()
	writeFile(t, dirA, "keep.txt", "same")
	writeFile(t, dirA, "removed.txt", "gone-soon")
	writeFile(t, dirA, "changed.txt", "before")
	treeA, err := FromDir(dirA)
	require.NoError(t, err)

	dirB := t.TempDir()
	writeFile(t, dirB, "keep.txt", "same")
	writeFile(t, dirB, "changed.txt", "after")
	writeFile(t, dirB, "added.txt", "new")
	treeB, err := FromDir(dirB)
	require.NoError(t, err)

	d := treeA.Diff(treeB)
	assert.Contains(t, d.Additions, "added.txt")
	assert.Contains(t, d.Removals, "removed.txt")
	assert.Contains(t, d.Changes, "changed.txt")
	assert.NotContains(t, d.Additions, "keep.txt")
	assert.NotContains(t, d.Removals, "keep.txt")
	assert.NotContains(t, d.Changes, "keep.txt")
}

// Testable Property 4: diffing in each direction swaps additions and
// removals but keeps the same change set, since change detection does
// not depend on diff direction.
func TestDiffSymmetry(t *testing.T) {
	dirA := t.TempDir()
	writeFile(t, dirA, "removed.txt", "x")
	writeFile(t, dirA, "changed.txt", "before")
	treeA, err := FromDir(dirA)
	require.NoError(t, err)

	dirB := t.TempDir()
	writeFile(t, dirB, "added.txt", "y")
	writeFile(t, dirB, "changed.txt", "after")
	treeB, err := FromDir(dirB)
	require.NoError(t, err)

	forward := treeA.Diff(treeB)
	backward := treeB.Diff(treeA)

	assert.Equal(t, forward.Additions, backward.Removals)
	assert.Equal(t, forward.Removals, backward.Additions)
	assert.Equal(t, forward.Changes, backward.Changes)
}

// RelativeDiffTo never emits additions: it only ever reports on paths
// the tracked tree already knows about.
func TestRelativeDiffToNeverAdds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	tree, err := FromDir(dir)
	require.NoError(t, err)

	writeFile(t, dir, "new.txt", "unexpected")

	d, err := tree.RelativeDiffTo(dir)
	require.NoError(t, err)
	assert.Empty(t, d.Additions)
	assert.Empty(t, d.Removals)
	assert.Empty(t, d.Changes)
}

func TestRelativeDiffToDetectsRemovalAndChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stays.txt", "same")
	writeFile(t, dir, "disappears.txt", "gone")
	writeFile(t, dir, "mutates.txt", "before")
	tree, err := FromDir(dir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "disappears.txt")))
	writeFile(t, dir, "mutates.txt", "after")

	d, err := tree.RelativeDiffTo(dir)
	require.NoError(t, err)
	assert.Contains(t, d.Removals, "disappears.txt")
	assert.Contains(t, d.Changes, "mutates.txt")
	assert.NotContains(t, d.Removals, "stays.txt")
	assert.NotContains(t, d.Changes, "stays.txt")
	assert.Empty(t, d.Additions)
}

func TestRelativeDiffToDetectsTypeChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "was-file.txt", "content")
	tree, err := FromDir(dir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "was-file.txt")))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "was-file.txt"), 0o755))

	d, err := tree.RelativeDiffTo(dir)
	require.NoError(t, err)
	assert.Contains(t, d.Changes, "was-file.txt")
}

func TestDiffStringAndCount(t *testing.T) {
	dirA := t.TempDir()
	writeFile(t, dirA, "a.txt", "1")
	treeA, err := FromDir(dirA)
	require.NoError(t, err)

	dirB := t.TempDir()
	writeFile(t, dirB, "b.txt", "2")
	treeB, err := FromDir(dirB)
	require.NoError(t, err)

	d := treeA.Diff(treeB)
	assert.Equal(t, 2, d.Count())
	assert.Contains(t, d.String(), "additions: 1")
	assert.Contains(t, d.String(), "removals: 1")
}
