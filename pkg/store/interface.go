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

package store

import (
	"context"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
)

// ObjectStore is the interface the tar importer, composer, and GC consume
//, so tests can substitute an in-memory
// fake without touching disk.
type ObjectStore interface {
	HasObject(kind Kind, d digestx.Digest) bool
	WriteMetadata(kind Kind, expected digestx.Digest, data []byte) (digestx.Digest, error)
	WriteRegfileInline(expected digestx.Digest, uid, gid int, mode uint32, xattrsDigest digestx.Digest, data []byte) (digestx.Digest, error)
	WriteRegfileStreaming(expected digestx.Digest, uid, gid int, mode uint32, size int64, xattrsDigest digestx.Digest) (*RegfileWriter, error)
	WriteSymlink(expected digestx.Digest, uid, gid int, xattrsDigest digestx.Digest, target string) (digestx.Digest, error)
	WriteXattrsBlob(expected digestx.Digest, data []byte) (digestx.Digest, error)
	ReadXattrsBlob(d digestx.Digest) ([]byte, error)
	ReadFileAttrs(kind Kind, d digestx.Digest) (FileAttrs, error)
	ReadObjectContent(kind Kind, d digestx.Digest) ([]byte, error)
	ReadCommit(d digestx.Digest) (rootDirTree, rootDirMeta digestx.Digest, metadata CommitMetadata, err error)
	ParentOf(d digestx.Digest) (digestx.Digest, error)
	ReadDirTree(d digestx.Digest) (files map[string]digestx.Digest, subdirs map[string][2]digestx.Digest, err error)
	ReadDirMeta(d digestx.Digest) (uid, gid int, mode uint32, xattrsDigest digestx.Digest, err error)
	ObjectPath(kind Kind, d digestx.Digest) string

	ResolveRef(name string) (digestx.Digest, bool, error)
	ListRefs() (map[string]digestx.Digest, error)

	BeginTransaction(ctx context.Context) (*Txn, error)
}

var _ ObjectStore = (*Store)(nil)
