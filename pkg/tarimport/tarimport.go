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

// Package tarimport implements the tar object importer: a
// synchronous state machine that reads a tar stream of content-addressed
// objects, in either commit mode (a single ostree-style commit and its
// object graph) or object-set mode (a bag of file/symlink objects that
// gets a synthetic dirtree generated for it), and writes each object to
// the object store exactly once.
package tarimport

import (
	"archive/tar"
	"context"
	"fmt"
	"io"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

// SignatureVerifier checks a commit's detached metadata against its
// content before any objects are written.
type SignatureVerifier interface {
	VerifyCommit(ctx context.Context, commitDigest digestx.Digest, commitData, detachedMeta []byte) error
}

// Stats records per-kind object counts, surfaced for diagnostics.
type Stats struct {
	DirTree      int
	DirMeta      int
	RegfileSmall int
	RegfileLarge int
	Symlinks     int
}

type importState int

const (
	stateInitial importState = iota
	stateInCommit
)

// pendingXattrs remembers which file digest the most recently seen xattrs
// preamble applies to, and which cached xattrs blob it refers to.
type pendingXattrs struct {
	fileDigest   digestx.Digest
	xattrsDigest digestx.Digest
}

// Importer is the tar object importer's mutable state. It is not safe for
// concurrent use: the state machine is single-threaded per stream.
type Importer struct {
	store    store.ObjectStore
	txn      *store.Txn
	verifier SignatureVerifier

	objectSet   map[digestx.Digest]struct{} // nil in commit mode
	xattrsCache map[digestx.Digest][]byte
	pending     *pendingXattrs

	state        importState
	commitDigest digestx.Digest

	stats Stats
}

// NewCommitImporter creates an importer that expects a commit object as
// the stream's first object, followed by its object graph.
func NewCommitImporter(txn *store.Txn, verifier SignatureVerifier) *Importer {
	return &Importer{
		store:       txn.Store(),
		txn:         txn,
		verifier:    verifier,
		xattrsCache: make(map[digestx.Digest][]byte),
		state:       stateInitial,
	}
}

// NewObjectSetImporter creates an importer for a bag of file/symlink
// objects with no commit; FinishObjectSet synthesizes a dirtree for them.
func NewObjectSetImporter(txn *store.Txn) *Importer {
	return &Importer{
		store:       txn.Store(),
		txn:         txn,
		objectSet:   make(map[digestx.Digest]struct{}),
		xattrsCache: make(map[digestx.Digest][]byte),
		state:       stateInitial,
	}
}

// Stats returns the running per-kind object counters.
func (im *Importer) Stats() Stats {
	return im.stats
}

// Import reads every entry from r's tar stream and feeds it through the
// state machine. At end-of-stream in commit mode, MissingCommit is
// returned if no commit entry was ever seen.
func (im *Importer) Import(ctx context.Context, r io.Reader) error {
	tr := tar.NewReader(r)

	// Commit mode requires the commit entry, and (if a verifier is
	// configured) its detached commitmeta, to be read and verified as a
	// pair before either is written: once handleCommit/handleCommitMeta
	// are reached through the generic per-entry loop below, the commit
	// is already in the store. consumeCommitPrefix handles that leading
	// pair specially; everything after it goes through the normal loop.
	if im.objectSet == nil {
		if err := im.consumeCommitPrefix(ctx, tr); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		if hdr.Typeflag == tar.TypeDir {
			continue
		}

		rel, ok := stripRepoPrefix(hdr.Name)
		if !ok {
			continue
		}

		if err := im.dispatchEntry(ctx, hdr, rel, tr); err != nil {
			return err
		}
	}

	if im.objectSet == nil && im.state != stateInCommit {
		return imgerrors.ErrMissingCommit
	}
	return nil
}

// consumeCommitPrefix reads the stream's first non-directory entry, which
// must be a commit object, and its immediately following entry, which must
// be the matching commitmeta when a SignatureVerifier is configured. With a
// verifier, both are buffered and verified together before either is
// written. Without one, the commit is written immediately; if the next
// entry happens to be its commitmeta it is written too, otherwise it is
// handed to the normal dispatcher so no entry is lost.
func (im *Importer) consumeCommitPrefix(ctx context.Context, tr *tar.Reader) error {
	hdr, err := nextNonDirEntry(tr)
	if err != nil {
		return fmt.Errorf("reading commit entry: %w", imgerrors.ErrMissingCommit)
	}
	rel, ok := stripRepoPrefix(hdr.Name)
	if !ok {
		return fmt.Errorf("entry %s outside repo prefix: %w", hdr.Name, imgerrors.ErrMissingCommit)
	}
	d, suffix, err := parseObjectPath(rel)
	if err != nil {
		return err
	}
	if suffix != suffixCommit {
		return fmt.Errorf("expected commit object, found %s: %w", suffix, imgerrors.ErrMissingCommit)
	}
	commitData, err := readMetadata(hdr, tr)
	if err != nil {
		return err
	}

	nextHdr, err := nextNonDirEntry(tr)
	if err != nil {
		if im.verifier != nil {
			return fmt.Errorf("remote verification requires a commitmeta entry: %w", imgerrors.ErrMissingCommit)
		}
		if _, werr := im.store.WriteMetadata(store.KindCommit, d, commitData); werr != nil {
			return werr
		}
		im.state = stateInCommit
		im.commitDigest = d
		return nil
	}

	nextRel, nextIsRepo := stripRepoPrefix(nextHdr.Name)
	var nextDigest digestx.Digest
	var nextSuffix entrySuffix
	if nextIsRepo {
		nextDigest, nextSuffix, _ = parseObjectPath(nextRel)
	}
	nextIsMatchingCommitMeta := nextIsRepo && nextSuffix == suffixCommitMeta && nextDigest == d

	if im.verifier != nil {
		if !nextIsMatchingCommitMeta {
			return fmt.Errorf("expected commitmeta for %s: %w", d, imgerrors.ErrMissingCommit)
		}
		metaData, err := readMetadata(nextHdr, tr)
		if err != nil {
			return err
		}
		if verr := im.verifier.VerifyCommit(ctx, d, commitData, metaData); verr != nil {
			return fmt.Errorf("verifying commit %s: %w: %w", d, imgerrors.ErrSignatureInvalid, verr)
		}
		if _, err := im.store.WriteMetadata(store.KindCommit, d, commitData); err != nil {
			return err
		}
		if _, err := im.store.WriteMetadata(store.KindCommitMeta, d, metaData); err != nil {
			return err
		}
		im.state = stateInCommit
		im.commitDigest = d
		return nil
	}

	if _, err := im.store.WriteMetadata(store.KindCommit, d, commitData); err != nil {
		return err
	}
	im.state = stateInCommit
	im.commitDigest = d

	if nextIsMatchingCommitMeta {
		metaData, err := readMetadata(nextHdr, tr)
		if err != nil {
			return err
		}
		_, err = im.store.WriteMetadata(store.KindCommitMeta, d, metaData)
		return err
	}

	if !nextIsRepo {
		return nil
	}
	return im.dispatchEntry(ctx, nextHdr, nextRel, tr)
}

// nextNonDirEntry returns the next tar entry that isn't a directory,
// propagating io.EOF unchanged when the stream ends first.
func nextNonDirEntry(tr *tar.Reader) (*tar.Header, error) {
	for {
		hdr, err := tr.Next()
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeDir {
			return hdr, nil
		}
	}
}

func (im *Importer) dispatchEntry(ctx context.Context, hdr *tar.Header, rel string, r io.Reader) error {
	switch {
	case hasPrefixObjects(rel):
		return im.importObject(ctx, hdr, rel, r)
	case hasPrefixXattrs(rel):
		return im.processSplitXattrsContent(hdr, rel, r)
	default:
		return nil
	}
}

func hasPrefixObjects(p string) bool {
	return len(p) >= len(ObjectsPrefix) && p[:len(ObjectsPrefix)] == ObjectsPrefix
}

func hasPrefixXattrs(p string) bool {
	return len(p) >= len(XattrsPrefix) && p[:len(XattrsPrefix)] == XattrsPrefix
}

func (im *Importer) importObject(ctx context.Context, hdr *tar.Header, rel string, r io.Reader) error {
	d, suffix, err := parseObjectPath(rel)
	if err != nil {
		return err
	}

	switch suffix {
	case suffixCommit:
		// The stream's one legitimate commit entry is consumed specially by
		// consumeCommitPrefix before this dispatcher ever runs; reaching
		// here means a second one showed up later in the stream.
		return imgerrors.ErrDuplicateCommit
	case suffixCommitMeta:
		return im.handleCommitMeta(ctx, hdr, d, r)
	case suffixDirTree, suffixDirMeta:
		if im.state != stateInCommit {
			return fmt.Errorf("metadata object before commit: %w", imgerrors.ErrInvalidObjectPath)
		}
		return im.handleMetadata(hdr, d, suffix, r)
	case suffixFileXattrs:
		return im.processFileXattrs(hdr, d, r)
	case suffixFileXattrsLink:
		return im.processFileXattrsLink(hdr, d)
	case suffixXattrs:
		return im.processXattrRef(hdr, d)
	case suffixFile:
		return im.handleContent(hdr, d, r)
	default:
		return fmt.Errorf("unhandled suffix %q: %w", suffix, imgerrors.ErrInvalidObjectPath)
	}
}

// handleCommitMeta handles a commitmeta entry reached through the normal
// dispatcher: either a duplicate of the one consumeCommitPrefix already
// processed (the digest check below simply re-verifies and re-writes,
// which is idempotent) or, in the no-verifier case, one that did not
// immediately follow its commit and so fell through to here.
func (im *Importer) handleCommitMeta(ctx context.Context, hdr *tar.Header, d digestx.Digest, r io.Reader) error {
	if im.state != stateInCommit {
		return fmt.Errorf("commitmeta before commit: %w", imgerrors.ErrInvalidObjectPath)
	}
	if d != im.commitDigest {
		return fmt.Errorf("commitmeta digest %s does not match commit %s: %w", d, im.commitDigest, imgerrors.ErrInvalidObjectPath)
	}

	data, err := readMetadata(hdr, r)
	if err != nil {
		return err
	}

	if im.verifier != nil {
		commitData, rerr := im.store.ReadObjectContent(store.KindCommit, d)
		if rerr != nil {
			return rerr
		}
		if verr := im.verifier.VerifyCommit(ctx, d, commitData, data); verr != nil {
			return fmt.Errorf("verifying commit %s: %w: %w", d, imgerrors.ErrSignatureInvalid, verr)
		}
	}

	_, err = im.store.WriteMetadata(store.KindCommitMeta, d, data)
	return err
}

func (im *Importer) handleMetadata(hdr *tar.Header, d digestx.Digest, suffix entrySuffix, r io.Reader) error {
	data, err := readMetadata(hdr, r)
	if err != nil {
		return err
	}

	kind, err := kindForSuffix(suffix)
	if err != nil {
		return err
	}

	if _, err := im.store.WriteMetadata(kind, d, data); err != nil {
		return err
	}

	switch kind {
	case store.KindDirTree:
		im.stats.DirTree++
	case store.KindDirMeta:
		im.stats.DirMeta++
	}
	return nil
}

func readMetadata(hdr *tar.Header, r io.Reader) ([]byte, error) {
	if hdr.Typeflag != tar.TypeReg {
		return nil, fmt.Errorf("non-regular metadata entry %s: %w", hdr.Name, imgerrors.ErrUnsupportedEntry)
	}
	if hdr.Size > store.MaxMetadataSize {
		return nil, fmt.Errorf("%s exceeds metadata size limit: %w", hdr.Name, imgerrors.ErrOversizeObject)
	}
	buf := make([]byte, hdr.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading %s: %w", hdr.Name, err)
	}
	return buf, nil
}

func (im *Importer) processFileXattrs(hdr *tar.Header, d digestx.Digest, r io.Reader) error {
	if im.pending != nil {
		return fmt.Errorf("dangling xattrs for %s: %w", im.pending.fileDigest, imgerrors.ErrDanglingXattrs)
	}
	if _, err := im.cacheXattrsContent(hdr, r, d); err != nil {
		return err
	}
	return nil
}

func (im *Importer) processFileXattrsLink(hdr *tar.Header, fileDigest digestx.Digest) error {
	if im.pending != nil {
		return fmt.Errorf("dangling xattrs for %s: %w", im.pending.fileDigest, imgerrors.ErrDanglingXattrs)
	}
	if hdr.Typeflag != tar.TypeLink {
		return fmt.Errorf("file-xattrs-link %s is not a hardlink: %w", hdr.Name, imgerrors.ErrUnsupportedEntry)
	}
	xattrsDigest, err := parseXattrsLinkTarget(hdr.Linkname)
	if err != nil {
		return err
	}
	im.pending = &pendingXattrs{fileDigest: fileDigest, xattrsDigest: xattrsDigest}
	return nil
}

func (im *Importer) processXattrRef(hdr *tar.Header, fileDigest digestx.Digest) error {
	if im.pending != nil {
		return fmt.Errorf("dangling xattrs for %s: %w", im.pending.fileDigest, imgerrors.ErrDanglingXattrs)
	}
	if hdr.Typeflag != tar.TypeLink {
		return fmt.Errorf("v0 xattrs ref %s is not a hardlink: %w", hdr.Name, imgerrors.ErrUnsupportedEntry)
	}
	rel, ok := stripRepoPrefix(hdr.Linkname)
	if !ok {
		rel = hdr.Linkname
	}
	xattrsDigest, err := parseXattrsStandaloneDigest(rel)
	if err != nil {
		return err
	}
	im.pending = &pendingXattrs{fileDigest: fileDigest, xattrsDigest: xattrsDigest}
	return nil
}

// processSplitXattrsContent handles a v0 standalone "xattrs/<64hex>" entry.
func (im *Importer) processSplitXattrsContent(hdr *tar.Header, rel string, r io.Reader) error {
	d, err := parseXattrsStandaloneDigest(rel)
	if err != nil {
		return err
	}
	_, err = im.cacheXattrsContent(hdr, r, d)
	return err
}

func (im *Importer) cacheXattrsContent(hdr *tar.Header, r io.Reader, expected digestx.Digest) (digestx.Digest, error) {
	if hdr.Typeflag != tar.TypeReg {
		return "", fmt.Errorf("non-regular xattrs entry %s: %w", hdr.Name, imgerrors.ErrUnsupportedEntry)
	}
	if hdr.Size > store.MaxXattrsSize {
		return "", fmt.Errorf("%s exceeds xattrs size limit: %w", hdr.Name, imgerrors.ErrOversizeObject)
	}
	buf := make([]byte, hdr.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("reading %s: %w", hdr.Name, err)
	}

	got := digestx.FromBytes(digestx.SHA256, buf)
	if expected != "" && got != expected {
		return "", fmt.Errorf("xattrs checksum mismatch, expected %s got %s: %w", expected, got, imgerrors.ErrChecksumMismatch)
	}

	im.xattrsCache[got] = buf
	return got, nil
}

func (im *Importer) handleContent(hdr *tar.Header, d digestx.Digest, r io.Reader) error {
	if im.pending == nil {
		return fmt.Errorf("missing xattrs reference for %s: %w", d, imgerrors.ErrDanglingXattrs)
	}
	pending := im.pending
	im.pending = nil

	if pending.fileDigest != d {
		return fmt.Errorf("xattrs queued for %s, found object %s: %w", pending.fileDigest, d, imgerrors.ErrInvalidObjectPath)
	}

	contentKind := store.KindFile
	if hdr.Typeflag == tar.TypeSymlink {
		contentKind = store.KindSymlink
	}
	if im.store.HasObject(contentKind, d) {
		if im.objectSet != nil {
			im.recordObjectSetMember(d)
		}
		return nil
	}

	xattrsBlob, ok := im.xattrsCache[pending.xattrsDigest]
	if !ok {
		return fmt.Errorf("xattrs content %s not found: %w", pending.xattrsDigest, imgerrors.ErrDanglingXattrs)
	}
	xattrsDigest, err := im.store.WriteXattrsBlob(pending.xattrsDigest, xattrsBlob)
	if err != nil {
		return err
	}

	uid, gid, mode := int(hdr.Uid), int(hdr.Gid), uint32(hdr.Mode)

	switch hdr.Typeflag {
	case tar.TypeReg:
		if err := im.writeRegfile(hdr, d, uid, gid, mode, xattrsDigest, r); err != nil {
			return err
		}
	case tar.TypeSymlink:
		if _, err := im.store.WriteSymlink(d, uid, gid, xattrsDigest, hdr.Linkname); err != nil {
			return err
		}
		im.stats.Symlinks++
	default:
		return fmt.Errorf("invalid content entry type for %s: %w", d, imgerrors.ErrUnsupportedEntry)
	}

	if im.objectSet != nil {
		im.recordObjectSetMember(d)
	}
	return nil
}

func (im *Importer) recordObjectSetMember(d digestx.Digest) {
	if _, dup := im.objectSet[d]; dup {
		return
	}
	im.objectSet[d] = struct{}{}
}

func (im *Importer) writeRegfile(hdr *tar.Header, d digestx.Digest, uid, gid int, mode uint32, xattrsDigest digestx.Digest, r io.Reader) error {
	if hdr.Size > store.InlineThreshold {
		w, err := im.store.WriteRegfileStreaming(d, uid, gid, mode, hdr.Size, xattrsDigest)
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, r); err != nil {
			return fmt.Errorf("streaming regfile %s: %w", d, err)
		}
		if _, err := w.Finalize(); err != nil {
			return err
		}
		im.stats.RegfileLarge++
		return nil
	}

	buf := make([]byte, hdr.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("reading regfile %s: %w", d, err)
	}
	if _, err := im.store.WriteRegfileInline(d, uid, gid, mode, xattrsDigest, buf); err != nil {
		return err
	}
	im.stats.RegfileSmall++
	return nil
}

// FinishCommit returns the imported commit's digest. Valid only after a
// successful Import in commit mode.
func (im *Importer) FinishCommit() (digestx.Digest, error) {
	if im.state != stateInCommit {
		return "", imgerrors.ErrMissingCommit
	}
	return im.commitDigest, nil
}

// FinishObjectSet synthesizes a dirtree whose entries map each imported
// object's digest to itself, wraps it in a default dirmeta and a parentless
// commit, and returns that commit's digest. Valid only for an object-set
// importer.
func (im *Importer) FinishObjectSet() (digestx.Digest, error) {
	if im.objectSet == nil {
		return "", fmt.Errorf("FinishObjectSet called on a commit importer: %w", imgerrors.ErrInvalidObjectPath)
	}
	return writeSyntheticDirTree(im.store, im.objectSet)
}
