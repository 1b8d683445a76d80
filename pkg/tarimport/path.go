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

package tarimport

import (
	"fmt"
	"path"
	"strings"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

// RepoPrefix is the fixed prefix stripped from tar entry paths before the
// object path grammar applies.
const RepoPrefix = "sysroot/"

// ObjectsPrefix and XattrsPrefix introduce the two entry families under
// RepoPrefix.
const (
	ObjectsPrefix = "objects/"
	XattrsPrefix  = "xattrs/"
)

// entrySuffix classifies the trailing extension of an objects/ path.
type entrySuffix string

const (
	suffixCommit        entrySuffix = "commit"
	suffixDirTree        entrySuffix = "dirtree"
	suffixDirMeta        entrySuffix = "dirmeta"
	suffixFile           entrySuffix = "file"
	suffixCommitMeta     entrySuffix = "commitmeta"
	suffixFileXattrs     entrySuffix = "file-xattrs"
	suffixFileXattrsLink entrySuffix = "file-xattrs-link"
	suffixXattrs         entrySuffix = "xattrs"
)

// stripRepoPrefix removes RepoPrefix from p, reporting whether it was
// present.
func stripRepoPrefix(p string) (string, bool) {
	return strings.CutPrefix(p, RepoPrefix)
}

// parseObjectPath splits an "objects/<2hex>/<62hex>.<suffix>" path (after
// RepoPrefix has already been stripped) into its 64-hex digest and suffix.
func parseObjectPath(p string) (digestx.Digest, entrySuffix, error) {
	rest, ok := strings.CutPrefix(p, ObjectsPrefix)
	if !ok {
		return "", "", fmt.Errorf("%s: %w", p, imgerrors.ErrInvalidObjectPath)
	}

	dir, file := path.Split(rest)
	dir = strings.TrimSuffix(dir, "/")
	if len(dir) != 2 || !isLowerHex(dir) {
		return "", "", fmt.Errorf("invalid checksum shard %q: %w", dir, imgerrors.ErrInvalidObjectPath)
	}

	name, suffix, ok := strings.Cut(file, ".")
	if !ok {
		return "", "", fmt.Errorf("invalid object path %q: %w", p, imgerrors.ErrInvalidObjectPath)
	}
	// With more than one dot, the text up to the second dot is folded back
	// into name, which then fails the 62-hex check below.
	if idx := strings.Index(suffix, "."); idx >= 0 {
		name = name + "." + suffix[:idx]
		suffix = suffix[idx+1:]
	}

	if len(name) != 62 || !isLowerHex(name) {
		return "", "", fmt.Errorf("invalid checksum remainder %q: %w", name, imgerrors.ErrInvalidObjectPath)
	}

	d, err := digestx.ParseHex(digestx.SHA256, dir+name)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", p, imgerrors.ErrInvalidChecksumString)
	}

	switch entrySuffix(suffix) {
	case suffixCommit, suffixDirTree, suffixDirMeta, suffixFile, suffixCommitMeta,
		suffixFileXattrs, suffixFileXattrsLink, suffixXattrs:
		return d, entrySuffix(suffix), nil
	default:
		return "", "", fmt.Errorf("invalid object suffix %q: %w", suffix, imgerrors.ErrInvalidObjectPath)
	}
}

// parseXattrsStandaloneDigest parses an "xattrs/<64hex>" path (after
// RepoPrefix stripped) into its digest (v0 standalone xattrs content).
func parseXattrsStandaloneDigest(p string) (digestx.Digest, error) {
	rest, ok := strings.CutPrefix(p, XattrsPrefix)
	if !ok {
		return "", fmt.Errorf("%s: %w", p, imgerrors.ErrInvalidObjectPath)
	}
	if len(rest) != 64 || !isLowerHex(rest) {
		return "", fmt.Errorf("invalid xattrs digest %q: %w", rest, imgerrors.ErrInvalidObjectPath)
	}
	return digestx.ParseHex(digestx.SHA256, rest)
}

// parseXattrsLinkTarget extracts the digest a .file-xattrs-link hardlink
// points at, from the link target path.
func parseXattrsLinkTarget(target string) (digestx.Digest, error) {
	target = strings.TrimPrefix(target, RepoPrefix)
	for strings.HasPrefix(target, "../") {
		target = strings.TrimPrefix(target, "../")
	}
	d, suffix, err := parseObjectPath(target)
	if err != nil {
		return "", err
	}
	if suffix != suffixFileXattrs {
		return "", fmt.Errorf("unexpected xattrs link suffix %q: %w", suffix, imgerrors.ErrInvalidObjectPath)
	}
	return d, nil
}

func isLowerHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// kindForSuffix maps a metadata entry suffix to its store.Kind.
func kindForSuffix(s entrySuffix) (store.Kind, error) {
	switch s {
	case suffixCommit:
		return store.KindCommit, nil
	case suffixDirTree:
		return store.KindDirTree, nil
	case suffixDirMeta:
		return store.KindDirMeta, nil
	case suffixCommitMeta:
		return store.KindCommitMeta, nil
	default:
		return "", fmt.Errorf("not a metadata suffix %q: %w", s, imgerrors.ErrInvalidObjectPath)
	}
}
