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
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.etcd.io/bbolt"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
)

const (
	// MaxMetadataSize is the size limit for dirtree/dirmeta/commit/commitmeta
	// objects.
	MaxMetadataSize = 10 * 1024 * 1024
	// MaxXattrsSize is the size limit for a standalone xattrs blob
	//.
	MaxXattrsSize = 1 * 1024 * 1024
	// InlineThreshold is the payload size at and below which a regular
	// file is written inline rather than streamed.
	InlineThreshold = 127 * 1024

	refsBucket = "refs"
	lockFile   = ".imagecore.lock"
	refsDBFile = "refs.db"
)

// Store is a content-addressed object store rooted at a directory.
type Store struct {
	root string
	refs *bbolt.DB
	lock *flock.Flock
}

// Open opens (creating if necessary) a Store rooted at root.
func Open(root string) (*Store, error) {
	for _, sub := range []string{"objects", "xattrs"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	db, err := bbolt.Open(filepath.Join(root, refsDBFile), 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("open refs database: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(refsBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize refs bucket: %w", err)
	}

	return &Store{
		root: root,
		refs: db,
		lock: flock.New(filepath.Join(root, lockFile)),
	}, nil
}

// Close releases the store's refs database handle. It does not release an
// in-progress transaction's lock; callers must Commit or Abort first.
func (s *Store) Close() error {
	return s.refs.Close()
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// objectDir is the <root>/objects/<2hex> shard directory for a 64-hex digest.
func (s *Store) objectDir(hexDigest string) string {
	return filepath.Join(s.root, "objects", hexDigest[:2])
}

// objectPath is <root>/objects/<2hex>/<62hex>.<kind>.
func (s *Store) objectPath(kind Kind, hexDigest string) string {
	return filepath.Join(s.objectDir(hexDigest), fmt.Sprintf("%s.%s", hexDigest[2:], kind))
}

// ObjectPath returns the on-disk path of an object, so a caller that knows
// it is talking to a filesystem-backed store (the composer's checkout
// step) can hardlink directly from it instead of reading and rewriting
// the bytes.
func (s *Store) ObjectPath(kind Kind, d digestx.Digest) string {
	return s.objectPath(kind, d.Hex())
}

// metaSidecarPath is the JSON sidecar carrying (mode, uid, gid,
// xattrs-digest) for a file or symlink object, stored alongside the
// content-addressed object itself. A file object's digest is a function
// of its content only; a symlink object's digest also covers its uid and
// gid (see symlinkCanonicalForm). The rest of the sidecar is decoration
// the object store tracks out-of-band.
func (s *Store) metaSidecarPath(kind Kind, hexDigest string) string {
	return s.objectPath(kind, hexDigest) + ".meta"
}

// xattrsPath is <root>/xattrs/<64hex>, the v0 standalone xattrs blob path.
func (s *Store) xattrsPath(hexDigest string) string {
	return filepath.Join(s.root, "xattrs", hexDigest)
}
