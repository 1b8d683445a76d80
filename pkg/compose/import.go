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

package compose

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/layerfetch"
	"github.com/cowdogmoo/imagecore/pkg/ociimage"
	"github.com/cowdogmoo/imagecore/pkg/store"
	"github.com/cowdogmoo/imagecore/pkg/tarimport"
)

// VersionHintOption carries the (year, release) pair an import call was
// asked to assume, resolved once via VersionHint into FilterConfig.RetainVar.
type VersionHintOption struct {
	Year, Release int
}

// ImportOptions controls one Import call.
type ImportOptions struct {
	// RequireBootable enforces the bootable-label and architecture-match
	// checks.
	RequireBootable bool
	// VersionHint selects the var/ rewrite regime. Nil behaves like the
	// pre-2024.3 regime (var/ is remapped).
	VersionHint *VersionHintOption
	// DisableGC skips the Garbage Collector at the end of import.
	DisableGC bool
	// NoWriteImageRef writes layer refs but not the image ref itself,
	// useful for pre-cache scenarios.
	NoWriteImageRef bool
	// AllowNonUsr forces transient-root filtering semantics regardless of
	// what the base commit declares; used by tests and by callers that
	// already know their base is transient.
	AllowNonUsr bool
	// Verifier checks the commit layer's signature against its detached
	// commitmeta. With a nil Verifier the commit layer is imported
	// without verification.
	Verifier tarimport.SignatureVerifier
	// Progress carries the optional discrete-event and byte-level
	// channels.
	Progress *layerfetch.Progress
	// GC runs the Garbage Collector, if set and DisableGC is false. Accepted as a callback rather than a
	// direct pkg/gc import to avoid a pkg/compose<->pkg/gc import cycle:
	// the Garbage Collector itself loads each image ref's merge commit,
	// which is exactly what pkg/compose produces.
	GC func(ctx context.Context) error
}

// Import performs the Import phase for a PreparedImport
// produced by Prepare, returning the new merge commit's decoded state.
func Import(ctx context.Context, src layerfetch.BlobSource, txn *store.Txn, prepared *PreparedImport, opts *ImportOptions) (*LayeredImageState, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}

	if err := ociimage.CheckArchAndBootable(prepared.Config, opts.RequireBootable); err != nil {
		return nil, err
	}

	s := txn.Store()
	partition := prepared.Partition

	// Steps 1-2: component layers, then the commit layer, fetched
	// concurrently. First-error-wins is correct here: any one failed
	// layer aborts the whole import (DESIGN.md "errgroup moved to
	// pkg/compose").
	g, gctx := errgroup.WithContext(ctx)
	for i := range partition.ComponentLayers {
		ls := &partition.ComponentLayers[i]
		if ls.HasCache {
			continue
		}
		idx := i
		g.Go(func() error {
			return layerfetch.FetchObjectLayer(gctx, src, idx, ls, txn, layerfetch.ModeObjectSet, nil, opts.Progress)
		})
	}
	if partition.CommitLayer != nil && !partition.CommitLayer.HasCache {
		g.Go(func() error {
			return layerfetch.FetchObjectLayer(gctx, src, len(partition.ComponentLayers), partition.CommitLayer, txn, layerfetch.ModeCommit, opts.Verifier, opts.Progress)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 3: determine transient-root / allow_nonusr semantics.
	allowNonUsr := opts.AllowNonUsr
	var baseCommit digestx.Digest
	if partition.CommitLayer != nil {
		baseCommit = partition.CommitLayer.Commit
		transient, err := isTransientRoot(s, baseCommit)
		if err != nil {
			return nil, err
		}
		allowNonUsr = allowNonUsr || transient
	} else {
		// A generic (non-ostree) image has no base commit at all: treated
		// as transient by convention.
		allowNonUsr = true
	}

	retainVar := false
	if opts.VersionHint != nil {
		hint, err := VersionHint(opts.VersionHint.Year, opts.VersionHint.Release)
		if err != nil {
			return nil, err
		}
		retainVar = hint
	}
	filterCfg := FilterConfig{AllowNonUsr: allowNonUsr, RetainVar: retainVar}

	// Step 4: derived layers, fetched and filtered concurrently (no
	// shared mutable state beyond txn, which now tolerates concurrent
	// SetRef). SELinux labeling happens later, in one pass over the fully
	// merged tree (see newLivePolicyProvider).
	tarFiltered := TarFiltered{}
	var filteredMu sync.Mutex
	dg, dgctx := errgroup.WithContext(ctx)
	for i := range partition.DerivedLayers {
		ls := &partition.DerivedLayers[i]
		if ls.HasCache {
			continue
		}
		idx := i
		dg.Go(func() error {
			result, err := importDerivedLayer(dgctx, src, idx, ls, txn, filterCfg, opts.Progress)
			if err != nil {
				return err
			}
			if len(result.Filtered) > 0 {
				filteredMu.Lock()
				tarFiltered[string(ls.Layer.Digest)] = result.Filtered
				filteredMu.Unlock()
			}
			return nil
		})
	}
	if err := dg.Wait(); err != nil {
		return nil, err
	}

	// Step 5: checkout base, then merge each derived-layer commit in
	// order (ordering matters: later layers win overwrite-union
	// conflicts, so this loop is deliberately sequential).
	scratch, err := os.MkdirTemp("", "imagecore-compose-*")
	if err != nil {
		return nil, fmt.Errorf("create compose scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if baseCommit != "" {
		if err := CheckoutCommit(s, baseCommit, scratch); err != nil {
			return nil, fmt.Errorf("checkout base commit %s: %w", baseCommit, err)
		}
	}
	for i := range partition.DerivedLayers {
		ls := &partition.DerivedLayers[i]
		if err := MergeCommit(s, ls.Commit, scratch); err != nil {
			return nil, fmt.Errorf("merge derived layer %s: %w", ls.Layer.Digest, err)
		}
	}

	// SELinux labeling: the merged tree's own policy store, which is the
	// base's unless a derived layer overwrote it, now labels every path
	// in scratch before it's ingested.
	if len(partition.DerivedLayers) > 0 || baseCommit != "" {
		if err := LabelTree(scratch, newLivePolicyProvider(scratch)); err != nil {
			return nil, fmt.Errorf("label merged tree: %w", err)
		}
	}

	// Step 6: ingest the merged directory into a new mutable tree.
	rootDirTree, rootDirMeta, err := IngestDir(s, scratch)
	if err != nil {
		return nil, fmt.Errorf("ingest merged tree: %w", err)
	}

	// Step 7: write the merge commit.
	manifestDigestJSON, err := json.Marshal(string(prepared.ManifestDigest))
	if err != nil {
		return nil, fmt.Errorf("encode manifest digest: %w", err)
	}
	tarFilteredJSON, err := json.Marshal(tarFiltered)
	if err != nil {
		return nil, fmt.Errorf("encode filtered-content dictionary: %w", err)
	}
	importerVersionJSON, err := json.Marshal(ImporterVersion)
	if err != nil {
		return nil, fmt.Errorf("encode importer version: %w", err)
	}

	commitMeta := store.CommitMetadata{
		MetaManifestDigest:  manifestDigestJSON,
		MetaManifest:        prepared.ManifestRaw,
		MetaImageConfig:     prepared.ConfigRaw,
		MetaImporterVersion: importerVersionJSON,
		MetaTarFiltered:     tarFilteredJSON,
	}
	if baseCommit != "" {
		baseJSON, err := json.Marshal(string(baseCommit))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", MetaDerivedBase, err)
		}
		commitMeta[MetaDerivedBase] = baseJSON
	}

	commitData, err := store.EncodeCommit(commitMeta, "", rootDirTree, rootDirMeta, commitTimestamp(prepared))
	if err != nil {
		return nil, fmt.Errorf("encode merge commit: %w", err)
	}
	mergeCommit, err := s.WriteMetadata(store.KindCommit, "", commitData)
	if err != nil {
		return nil, fmt.Errorf("write merge commit: %w", err)
	}

	// Step 8: set the image reference, unless suppressed.
	if !opts.NoWriteImageRef {
		txn.SetRef(prepared.ManifestRef, mergeCommit)
	}

	state, err := decodeLayeredImageState(mergeCommit, toRawMessageMap(commitMeta), nil)
	if err != nil {
		return nil, err
	}
	state.BaseCommit = baseCommit

	// Step 9: garbage collect, unless disabled.
	if !opts.DisableGC && opts.GC != nil {
		if err := opts.GC(ctx); err != nil {
			return nil, fmt.Errorf("garbage collect after import: %w", err)
		}
	}

	return state, nil
}

// importDerivedLayer fetches and filters one derived layer, then ingests
// the filtered filesystem tree as a standalone commit so step 5 can merge
// it onto the working tree with MergeCommit's whiteout-aware semantics,
// the same way it merges the base. Unlike a
// component or commit layer, a derived layer's filtered tar is a plain
// filesystem-path archive, not a stream of content-addressed objects, so
// it is extracted to a scratch directory and ingested with IngestDir
// rather than handed to the Tar Object Importer.
func importDerivedLayer(ctx context.Context, src layerfetch.BlobSource, layerIndex int, ls *layerfetch.LayerState, txn *store.Txn, cfg FilterConfig, progress *layerfetch.Progress) (*FilterResult, error) {
	progress.SendEvent(layerfetch.Event{Layer: *ls})

	blob, err := src.FetchLayer(ctx, ls.Layer)
	if err != nil {
		return nil, fmt.Errorf("fetching derived layer %s: %w", ls.Layer.Digest, err)
	}
	defer blob.Close()

	decompressed, err := layerfetch.Decompress(blob, ls.Layer.MediaType)
	if err != nil {
		return nil, err
	}
	defer decompressed.Close()

	var filtered bytes.Buffer
	result, err := FilterTar(decompressed, &filtered, cfg)
	if err != nil {
		return nil, fmt.Errorf("filtering derived layer %s: %w", ls.Layer.Digest, err)
	}

	extractDir, err := os.MkdirTemp("", "imagecore-derived-*")
	if err != nil {
		return nil, fmt.Errorf("create extraction dir for %s: %w", ls.Layer.Digest, err)
	}
	defer os.RemoveAll(extractDir)

	if err := extractFilteredTar(&filtered, extractDir); err != nil {
		return nil, fmt.Errorf("extracting filtered layer %s: %w", ls.Layer.Digest, err)
	}

	s := txn.Store()
	dirTree, dirMeta, err := IngestDir(s, extractDir)
	if err != nil {
		return nil, fmt.Errorf("ingesting filtered layer %s: %w", ls.Layer.Digest, err)
	}
	commitData, err := store.EncodeCommit(nil, "", dirTree, dirMeta, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("encode derived layer commit %s: %w", ls.Layer.Digest, err)
	}
	commit, err := s.WriteMetadata(store.KindCommit, "", commitData)
	if err != nil {
		return nil, fmt.Errorf("write derived layer commit %s: %w", ls.Layer.Digest, err)
	}

	txn.SetRef(ls.RefName, commit)
	ls.Commit = commit
	ls.HasCache = true
	progress.SendEvent(layerfetch.Event{Layer: *ls, Completed: true})
	return result, nil
}

// extractFilteredTar materializes a FilterTar-produced filesystem-path tar
// onto disk under destDir, preserving whiteout marker entries (".wh.*",
// ".wh..wh..opq") as ordinary files so mergeDirTree can act on them later,
// exactly as it does for a base commit's own tree.
func extractFilteredTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading filtered tar: %w", err)
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(hdr.Name, "./"), "/")
		if rel == "" || rel == "." {
			continue
		}
		target := filepath.Join(destDir, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0o700); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkdir parent of %s: %w", target, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return fmt.Errorf("write %s: %w", target, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", target, err)
			}
			_ = os.Chown(target, hdr.Uid, hdr.Gid)
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkdir parent of %s: %w", target, err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("symlink %s: %w", target, err)
			}
		case tar.TypeLink:
			linkRel := strings.TrimPrefix(strings.TrimPrefix(hdr.Linkname, "./"), "/")
			linkTarget := filepath.Join(destDir, linkRel)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkdir parent of %s: %w", target, err)
			}
			if err := os.Link(linkTarget, target); err != nil {
				return fmt.Errorf("hardlink %s: %w", target, err)
			}
		default:
			// Device nodes, fifos, sockets: not representable as a
			// content-addressed object, consistent with IngestDir's own
			// handling of a live directory's non-regular entries.
		}
	}
	return nil
}

// isTransientRoot reads MetaTransientRoot off base, defaulting to false
// (non-transient) when the key is absent.
func isTransientRoot(s store.ObjectStore, base digestx.Digest) (bool, error) {
	_, _, metadata, err := s.ReadCommit(base)
	if err != nil {
		return false, fmt.Errorf("read base commit %s: %w", base, err)
	}
	raw, ok := metadata[MetaTransientRoot]
	if !ok {
		return false, nil
	}
	var transient bool
	if err := json.Unmarshal(raw, &transient); err != nil {
		return false, fmt.Errorf("decode %s: %w", MetaTransientRoot, err)
	}
	return transient, nil
}

// commitTimestamp derives the merge commit's timestamp from the manifest
// or config "created" field, falling back to now.
func commitTimestamp(prepared *PreparedImport) int64 {
	if prepared.Config != nil && prepared.Config.Created != nil {
		return prepared.Config.Created.Unix()
	}
	if created, ok := prepared.Manifest.Annotations["org.opencontainers.image.created"]; ok {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			return t.Unix()
		}
	}
	return time.Now().Unix()
}

func toRawMessageMap(m store.CommitMetadata) map[string]json.RawMessage {
	return map[string]json.RawMessage(m)
}
