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

	"github.com/cowdogmoo/imagecore/pkg/digestx"
)

// dirTreeRecord is the on-disk JSON form of a dirtree object: a directory's immediate children, split into
// regular file/symlink content entries and nested subdirectories. Each
// subdirectory entry names both its dirtree and its dirmeta digest, the
// way an ostree dirtree pairs the two.
type dirTreeRecord struct {
	Files   map[string]string    `json:"files"`
	Subdirs map[string]dirSubdir `json:"subdirs,omitempty"`
}

type dirSubdir struct {
	DirTree string `json:"dirtree"`
	DirMeta string `json:"dirmeta"`
}

// EncodeDirTree serializes a directory's children to the canonical bytes
// whose digest identifies the dirtree object. files maps a child name to
// the digest of its file/symlink content object; subdirs maps a child name
// to its nested dirtree and dirmeta digests.
func EncodeDirTree(files map[string]digestx.Digest, subdirs map[string][2]digestx.Digest) ([]byte, error) {
	rec := dirTreeRecord{
		Files: make(map[string]string, len(files)),
	}
	for name, d := range files {
		rec.Files[name] = string(d)
	}
	if len(subdirs) > 0 {
		rec.Subdirs = make(map[string]dirSubdir, len(subdirs))
		for name, pair := range subdirs {
			rec.Subdirs[name] = dirSubdir{DirTree: string(pair[0]), DirMeta: string(pair[1])}
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode dirtree: %w", err)
	}
	return data, nil
}

// dirMetaRecord is the on-disk JSON form of a dirmeta object: the permission bits of one directory.
type dirMetaRecord struct {
	UID          int    `json:"uid"`
	GID          int    `json:"gid"`
	Mode         uint32 `json:"mode"`
	XattrsDigest string `json:"xattrs,omitempty"`
}

// EncodeDirMeta serializes a directory's ownership/mode/xattrs to the
// canonical bytes whose digest identifies the dirmeta object.
func EncodeDirMeta(uid, gid int, mode uint32, xattrsDigest digestx.Digest) ([]byte, error) {
	data, err := json.Marshal(dirMetaRecord{UID: uid, GID: gid, Mode: mode, XattrsDigest: string(xattrsDigest)})
	if err != nil {
		return nil, fmt.Errorf("encode dirmeta: %w", err)
	}
	return data, nil
}

// ReadDirMeta reads and decodes a dirmeta object.
func (s *Store) ReadDirMeta(d digestx.Digest) (uid, gid int, mode uint32, xattrsDigest digestx.Digest, err error) {
	data, err := s.ReadObjectContent(KindDirMeta, d)
	if err != nil {
		return 0, 0, 0, "", err
	}
	var rec dirMetaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, 0, 0, "", fmt.Errorf("decode dirmeta %s: %w", d, err)
	}
	return rec.UID, rec.GID, rec.Mode, digestx.Digest(rec.XattrsDigest), nil
}

// ReadDirTree reads and decodes a dirtree object's children.
func (s *Store) ReadDirTree(d digestx.Digest) (files map[string]digestx.Digest, subdirs map[string][2]digestx.Digest, err error) {
	data, err := s.ReadObjectContent(KindDirTree, d)
	if err != nil {
		return nil, nil, err
	}
	var rec dirTreeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("decode dirtree %s: %w", d, err)
	}

	files = make(map[string]digestx.Digest, len(rec.Files))
	for name, v := range rec.Files {
		files[name] = digestx.Digest(v)
	}
	subdirs = make(map[string][2]digestx.Digest, len(rec.Subdirs))
	for name, v := range rec.Subdirs {
		subdirs[name] = [2]digestx.Digest{digestx.Digest(v.DirTree), digestx.Digest(v.DirMeta)}
	}
	return files, subdirs, nil
}
