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
	"time"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

// syntheticDirMode is the permission bits recorded on the dirmeta object
// that roots a synthesized component-layer tree: a plain root-owned
// directory, since object-set streams carry no directory metadata of
// their own to preserve.
const syntheticDirMode = 0o40755

// writeSyntheticDirTree builds the dirtree/dirmeta/commit triple for an
// object-set import: a flat dirtree whose entries map each collected
// object's digest to itself, under a default dirmeta, wrapped in a
// parentless commit. It returns the commit's
// digest, the same kind of handle a commit-mode import produces, so
// callers can set a LAYER_NS reference uniformly regardless of import mode.
func writeSyntheticDirTree(s store.ObjectStore, objectSet map[digestx.Digest]struct{}) (digestx.Digest, error) {
	files := make(map[string]digestx.Digest, len(objectSet))
	for d := range objectSet {
		files[d.Hex()] = d
	}

	dirTreeData, err := store.EncodeDirTree(files, nil)
	if err != nil {
		return "", err
	}
	dirTreeDigest := digestx.FromBytes(digestx.SHA256, dirTreeData)
	if _, err := s.WriteMetadata(store.KindDirTree, dirTreeDigest, dirTreeData); err != nil {
		return "", err
	}

	dirMetaData, err := store.EncodeDirMeta(0, 0, syntheticDirMode, "")
	if err != nil {
		return "", err
	}
	dirMetaDigest := digestx.FromBytes(digestx.SHA256, dirMetaData)
	if _, err := s.WriteMetadata(store.KindDirMeta, dirMetaDigest, dirMetaData); err != nil {
		return "", err
	}

	commitData, err := store.EncodeCommit(nil, "", dirTreeDigest, dirMetaDigest, time.Now().Unix())
	if err != nil {
		return "", err
	}
	commitDigest := digestx.FromBytes(digestx.SHA256, commitData)
	if _, err := s.WriteMetadata(store.KindCommit, commitDigest, commitData); err != nil {
		return "", err
	}

	return commitDigest, nil
}
