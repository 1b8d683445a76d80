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
	"os"
	"path/filepath"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
)

// FileAttrs is the sidecar metadata kept alongside a file or symlink
// object's content-addressed bytes.
type FileAttrs struct {
	UID          int    `json:"uid"`
	GID          int    `json:"gid"`
	Mode         uint32 `json:"mode,omitempty"`
	XattrsDigest string `json:"xattrs_digest,omitempty"`
	Target       string `json:"target,omitempty"` // symlink only
}

// HasObject reports whether an object of the given kind and digest exists.
func (s *Store) HasObject(kind Kind, d digestx.Digest) bool {
	_, err := os.Stat(s.objectPath(kind, d.Hex()))
	return err == nil
}

// WriteMetadata writes a dirtree, dirmeta, commit, or commitmeta object.
// It fails with ErrOversizeObject if data exceeds MaxMetadataSize.
//
// Every kind except commitmeta is content-addressed: expected, if
// non-empty, must equal the digest of data, and that digest is also the
// storage key. commitmeta is detached metadata keyed by the digest of the
// commit it describes, not by a hash of its own bytes, so for it
// expected is taken as the storage key directly and must be provided.
func (s *Store) WriteMetadata(kind Kind, expected digestx.Digest, data []byte) (digestx.Digest, error) {
	if kind.IsMetadataKind() && len(data) > MaxMetadataSize {
		return "", fmt.Errorf("%s object is %d bytes: %w", kind, len(data), imgerrors.ErrOversizeObject)
	}

	if kind == KindCommitMeta {
		if expected == "" {
			return "", fmt.Errorf("commitmeta requires its commit digest as a key: %w", imgerrors.ErrInvalidObjectPath)
		}
		if err := s.writeFileAtomic(s.objectPath(kind, expected.Hex()), data, 0o644); err != nil {
			return "", err
		}
		return expected, nil
	}

	got := digestx.FromBytes(digestx.SHA256, data)
	if expected != "" && expected != got {
		return "", fmt.Errorf("expected %s, computed %s: %w", expected, got, imgerrors.ErrChecksumMismatch)
	}

	path := s.objectPath(kind, got.Hex())
	if err := s.writeFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	return got, nil
}

// WriteRegfileInline writes a small (<=InlineThreshold) regular file
// object plus its sidecar attributes.
func (s *Store) WriteRegfileInline(expected digestx.Digest, uid, gid int, mode uint32, xattrsDigest digestx.Digest, data []byte) (digestx.Digest, error) {
	got := digestx.FromBytes(digestx.SHA256, data)
	if expected != "" && expected != got {
		return "", fmt.Errorf("expected %s, computed %s: %w", expected, got, imgerrors.ErrChecksumMismatch)
	}

	path := s.objectPath(KindFile, got.Hex())
	if err := s.writeFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	if err := s.writeAttrs(KindFile, got.Hex(), FileAttrs{UID: uid, GID: gid, Mode: mode, XattrsDigest: string(xattrsDigest)}); err != nil {
		return "", err
	}
	return got, nil
}

// RegfileWriter accepts exactly Size bytes for a streamed large file,
// then finalizes to a verified Digest.
type RegfileWriter struct {
	store        *Store
	expected     digestx.Digest
	uid, gid     int
	mode         uint32
	xattrsDigest digestx.Digest
	size         int64

	tmp      *os.File
	verifier *digestx.Verifier
}

// WriteRegfileStreaming returns a RegfileWriter for a file of exactly size
// bytes. Callers must Write exactly size bytes then call Finalize.
func (s *Store) WriteRegfileStreaming(expected digestx.Digest, uid, gid int, mode uint32, size int64, xattrsDigest digestx.Digest) (*RegfileWriter, error) {
	tmp, err := os.CreateTemp(s.root, "streaming-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create streaming temp file: %w", err)
	}
	return &RegfileWriter{
		store:        s,
		expected:     expected,
		uid:          uid,
		gid:          gid,
		mode:         mode,
		xattrsDigest: xattrsDigest,
		size:         size,
		tmp:          tmp,
		verifier:     digestx.NewVerifier(digestx.SHA256),
	}, nil
}

// Write implements io.Writer.
func (w *RegfileWriter) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	if err != nil {
		return n, err
	}
	if _, verr := w.verifier.Write(p[:n]); verr != nil {
		return n, verr
	}
	return n, nil
}

// Finalize closes the temp file, verifies the digest against the
// expectation given at creation, and moves the content into place.
func (w *RegfileWriter) Finalize() (digestx.Digest, error) {
	defer func() { _ = os.Remove(w.tmp.Name()) }()

	if w.verifier.Size() != w.size {
		_ = w.tmp.Close()
		return "", fmt.Errorf("wrote %d bytes, expected %d: %w", w.verifier.Size(), w.size, imgerrors.ErrChecksumMismatch)
	}
	if err := w.tmp.Close(); err != nil {
		return "", fmt.Errorf("close streaming temp file: %w", err)
	}

	got, err := w.verifier.CheckExpected(w.expected)
	if err != nil {
		return "", err
	}

	dest := w.store.objectPath(KindFile, got.Hex())
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create object shard dir: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("finalize streamed object: %w", err)
	}

	attrs := FileAttrs{UID: w.uid, GID: w.gid, Mode: w.mode, XattrsDigest: string(w.xattrsDigest)}
	if err := w.store.writeAttrs(KindFile, got.Hex(), attrs); err != nil {
		return "", err
	}
	return got, nil
}

// ReadFileAttrs reads the sidecar attributes for a file or symlink object.
func (s *Store) ReadFileAttrs(kind Kind, d digestx.Digest) (FileAttrs, error) {
	data, err := os.ReadFile(s.metaSidecarPath(kind, d.Hex()))
	if err != nil {
		return FileAttrs{}, fmt.Errorf("read attrs for %s: %w", d, err)
	}
	var attrs FileAttrs
	if err := json.Unmarshal(data, &attrs); err != nil {
		return FileAttrs{}, fmt.Errorf("decode attrs for %s: %w", d, err)
	}
	return attrs, nil
}

// ReadObjectContent reads the raw bytes of a file, dirtree, dirmeta,
// commit, or commitmeta object.
func (s *Store) ReadObjectContent(kind Kind, d digestx.Digest) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(kind, d.Hex()))
	if err != nil {
		return nil, fmt.Errorf("read %s object %s: %w", kind, d, err)
	}
	return data, nil
}

// WriteSymlink writes a symlink object. Since a symlink has no raw
// "content" payload, its digest is computed over a canonical encoding of
// (uid, gid, target); xattrs-digest is decoration, stored in the
// sidecar like file objects.
func (s *Store) WriteSymlink(expected digestx.Digest, uid, gid int, xattrsDigest digestx.Digest, target string) (digestx.Digest, error) {
	canonical := symlinkCanonicalForm(uid, gid, target)
	got := digestx.FromBytes(digestx.SHA256, canonical)
	if expected != "" && expected != got {
		return "", fmt.Errorf("expected %s, computed %s: %w", expected, got, imgerrors.ErrChecksumMismatch)
	}

	path := s.objectPath(KindSymlink, got.Hex())
	if err := s.writeFileAtomic(path, canonical, 0o644); err != nil {
		return "", err
	}
	attrs := FileAttrs{UID: uid, GID: gid, XattrsDigest: string(xattrsDigest), Target: target}
	if err := s.writeAttrs(KindSymlink, got.Hex(), attrs); err != nil {
		return "", err
	}
	return got, nil
}

func symlinkCanonicalForm(uid, gid int, target string) []byte {
	return fmt.Appendf(nil, "uid=%d\x00gid=%d\x00target=%s", uid, gid, target)
}

// WriteXattrsBlob writes a v0 standalone xattrs object under xattrs/<64hex>,
// failing with ErrOversizeObject if it exceeds MaxXattrsSize.
func (s *Store) WriteXattrsBlob(expected digestx.Digest, data []byte) (digestx.Digest, error) {
	if len(data) > MaxXattrsSize {
		return "", fmt.Errorf("xattrs blob is %d bytes: %w", len(data), imgerrors.ErrOversizeObject)
	}
	got := digestx.FromBytes(digestx.SHA256, data)
	if expected != "" && expected != got {
		return "", fmt.Errorf("expected %s, computed %s: %w", expected, got, imgerrors.ErrChecksumMismatch)
	}
	if err := s.writeFileAtomic(s.xattrsPath(got.Hex()), data, 0o644); err != nil {
		return "", err
	}
	return got, nil
}

// ReadXattrsBlob reads a previously written v0 standalone xattrs object.
func (s *Store) ReadXattrsBlob(d digestx.Digest) ([]byte, error) {
	data, err := os.ReadFile(s.xattrsPath(d.Hex()))
	if err != nil {
		return nil, fmt.Errorf("read xattrs blob %s: %w", d, err)
	}
	return data, nil
}

func (s *Store) writeAttrs(kind Kind, hexDigest string, attrs FileAttrs) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attrs: %w", err)
	}
	return s.writeFileAtomic(s.metaSidecarPath(kind, hexDigest), data, 0o644)
}

// writeFileAtomic writes data to a temp file in the object's shard
// directory, then renames into place, so a crash mid-write never leaves a
// half-written object visible at its final path. Writing the same digest
// twice is harmless: content-addressed objects are idempotent.
func (s *Store) writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create object shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp object file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp object file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp object file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod temp object file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename temp object file into place: %w", err)
	}
	return nil
}
