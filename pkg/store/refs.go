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
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
)

// ResolveRef looks up a named reference. The second return value is
// false if the reference does not exist.
func (s *Store) ResolveRef(name string) (digestx.Digest, bool, error) {
	var digest string
	err := s.refs.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(refsBucket))
		v := b.Get([]byte(name))
		if v == nil {
			return nil
		}
		digest = string(v)
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("resolve ref %s: %w", name, err)
	}
	if digest == "" {
		return "", false, nil
	}
	return digestx.Digest(digest), true, nil
}

// ListRefs returns every currently-set reference name and its digest.
func (s *Store) ListRefs() (map[string]digestx.Digest, error) {
	out := make(map[string]digestx.Digest)
	err := s.refs.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(refsBucket))
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = digestx.Digest(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return out, nil
}

// applyRefs commits a batch of staged reference changes inside one bbolt
// transaction, so a crash mid-update never leaves refs half-applied.
func (s *Store) applyRefs(pending map[string]*digestx.Digest) error {
	if len(pending) == 0 {
		return nil
	}
	return s.refs.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(refsBucket))
		for name, digest := range pending {
			if digest == nil {
				if err := b.Delete([]byte(name)); err != nil {
					return fmt.Errorf("unset ref %s: %w", name, err)
				}
				continue
			}
			if err := b.Put([]byte(name), []byte(*digest)); err != nil {
				return fmt.Errorf("set ref %s: %w", name, err)
			}
		}
		return nil
	})
}

// CommitMetadata is the decoded form of a commit object's metadata
// dictionary.
type CommitMetadata map[string]json.RawMessage

// commitRecord is the on-disk JSON form of a commit object.
type commitRecord struct {
	Metadata      CommitMetadata `json:"metadata"`
	Parent        string         `json:"parent,omitempty"`
	RootDirTree   string         `json:"root_dirtree"`
	RootDirMeta   string         `json:"root_dirmeta"`
	TimestampUnix int64          `json:"timestamp"`
	Signature     []byte         `json:"signature,omitempty"`
}

// EncodeCommit serializes a commit object's fields to the canonical bytes
// whose digest identifies it.
func EncodeCommit(metadata CommitMetadata, parent digestx.Digest, rootDirTree, rootDirMeta digestx.Digest, timestampUnix int64) ([]byte, error) {
	rec := commitRecord{
		Metadata:      metadata,
		Parent:        string(parent),
		RootDirTree:   string(rootDirTree),
		RootDirMeta:   string(rootDirMeta),
		TimestampUnix: timestampUnix,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode commit: %w", err)
	}
	return data, nil
}

// ReadCommit reads and decodes a commit object, returning its root
// dirtree digest, root dirmeta digest, and metadata dictionary
//.
func (s *Store) ReadCommit(d digestx.Digest) (rootDirTree, rootDirMeta digestx.Digest, metadata CommitMetadata, err error) {
	data, err := s.ReadObjectContent(KindCommit, d)
	if err != nil {
		return "", "", nil, err
	}
	var rec commitRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", "", nil, fmt.Errorf("decode commit %s: %w", d, err)
	}
	return digestx.Digest(rec.RootDirTree), digestx.Digest(rec.RootDirMeta), rec.Metadata, nil
}

// ParentOf returns the parent commit digest recorded in d, or "" if d has
// no parent.
func (s *Store) ParentOf(d digestx.Digest) (digestx.Digest, error) {
	data, err := s.ReadObjectContent(KindCommit, d)
	if err != nil {
		return "", err
	}
	var rec commitRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("decode commit %s: %w", d, err)
	}
	return digestx.Digest(rec.Parent), nil
}
