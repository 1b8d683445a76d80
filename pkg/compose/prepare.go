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
	"context"
	"encoding/json"
	"fmt"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/layerfetch"
	"github.com/cowdogmoo/imagecore/pkg/logging"
	"github.com/cowdogmoo/imagecore/pkg/ociimage"
	"github.com/cowdogmoo/imagecore/pkg/refescape"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

// PreparedImport carries everything the Import phase needs once Prepare
// has decided work remains.
type PreparedImport struct {
	ImageRef       string
	ManifestRef    string
	ManifestRaw    []byte
	Manifest       ociimage.Manifest
	ConfigRaw      []byte
	Config         *ociimage.ImageConfiguration
	ManifestDigest digestx.Digest
	Partition      *layerfetch.Partition
	// ExistingMergeCommit is the prior merge commit for this image
	// reference, if one exists (a fresh image has none). Import does not
	// read it: the checkout base is always the commit layer's commit, and
	// cached-update commitmeta on the prior merge commit is left in place.
	ExistingMergeCommit digestx.Digest
}

// PrepareResult is Prepare's return value: exactly one of AlreadyPresent's
// State or Import is populated.
type PrepareResult struct {
	AlreadyPresent bool
	State          *LayeredImageState // set when AlreadyPresent
	Import         *PreparedImport    // set when !AlreadyPresent
}

// Prepare fetches imageRef's manifest and configuration from src and
// decides whether import work remains.
func Prepare(ctx context.Context, src ManifestSource, s store.ObjectStore, imageRef string) (*PrepareResult, error) {
	manifestData, _, err := src.FetchManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest for %s: %w", imageRef, err)
	}
	manifest, err := ociimage.DecodeManifest(manifestData)
	if err != nil {
		return nil, fmt.Errorf("decode manifest for %s: %w", imageRef, err)
	}
	manifestDigest := ociimage.ManifestDigest(manifestData)

	refName := refescape.ImageRef(imageRef)
	existingCommit, hasExisting, err := s.ResolveRef(refName)
	if err != nil {
		return nil, fmt.Errorf("resolve image ref %s: %w", refName, err)
	}

	var existingMeta store.CommitMetadata
	if hasExisting {
		_, _, existingMeta, err = s.ReadCommit(existingCommit)
		if err != nil {
			return nil, fmt.Errorf("read existing merge commit %s: %w", existingCommit, err)
		}

		// Step 1: stored manifest-digest already matches.
		if existingDigest, ok := existingMeta[MetaManifestDigest]; ok {
			var d string
			if err := json.Unmarshal(existingDigest, &d); err != nil {
				return nil, fmt.Errorf("decode %s: %w", MetaManifestDigest, err)
			}
			if digestx.Digest(d) == manifestDigest {
				state, err := loadLayeredImageState(s, existingCommit, existingMeta)
				if err != nil {
					return nil, err
				}
				return &PrepareResult{AlreadyPresent: true, State: state}, nil
			}
		}
	}

	configData, err := src.FetchConfig(ctx, manifest.Config)
	if err != nil {
		return nil, fmt.Errorf("fetch config for %s: %w", imageRef, err)
	}
	cfg, err := ociimage.DecodeImageConfiguration(configData)
	if err != nil {
		return nil, fmt.Errorf("decode config for %s: %w", imageRef, err)
	}
	if v, present, known := cfg.CheckCompatLabel(); present && !known {
		logging.WarnUnknownCompatibilityLabel(ociimage.CompatLabel, v)
	}
	imageID := digestx.FromBytes(digestx.SHA256, configData)

	// Step 2: same content under a new tag/manifest.
	if hasExisting {
		if existingConfigRaw, ok := existingMeta[MetaImageConfig]; ok {
			existingImageID := digestx.FromBytes(digestx.SHA256, existingConfigRaw)
			if existingImageID == imageID {
				if err := recordCachedUpdate(s, existingCommit, manifestDigest, manifestData, configData); err != nil {
					return nil, err
				}
				state, err := loadLayeredImageState(s, existingCommit, existingMeta)
				if err != nil {
					return nil, err
				}
				return &PrepareResult{AlreadyPresent: true, State: state}, nil
			}
		}
	}

	// Step 3: real work remains.
	partition, err := layerfetch.PartitionLayers(manifest, cfg)
	if err != nil {
		return nil, fmt.Errorf("partition layers for %s: %w", imageRef, err)
	}
	if err := layerfetch.ResolveCacheState(s, partition); err != nil {
		return nil, fmt.Errorf("resolve cache state for %s: %w", imageRef, err)
	}

	return &PrepareResult{
		Import: &PreparedImport{
			ImageRef:            imageRef,
			ManifestRef:         refName,
			ManifestRaw:         manifestData,
			Manifest:            manifest,
			ConfigRaw:           configData,
			Config:              cfg,
			ManifestDigest:      manifestDigest,
			Partition:           partition,
			ExistingMergeCommit: existingCommit,
		},
	}, nil
}

// recordCachedUpdate is Prepare's side effect when an AlreadyPresent base
// exists under a different new manifest.
func recordCachedUpdate(s store.ObjectStore, mergeCommit digestx.Digest, manifestDigest digestx.Digest, manifestRaw, configRaw []byte) error {
	data, err := encodeCachedUpdate(manifestDigest, manifestRaw, configRaw)
	if err != nil {
		return err
	}
	if _, err := s.WriteMetadata(store.KindCommitMeta, mergeCommit, data); err != nil {
		return fmt.Errorf("record cached update on %s: %w", mergeCommit, err)
	}
	return nil
}

// loadLayeredImageState decodes a merge commit's metadata into a
// LayeredImageState, including any pending cached update recorded as
// detached commitmeta.
func loadLayeredImageState(s store.ObjectStore, mergeCommit digestx.Digest, metadata store.CommitMetadata) (*LayeredImageState, error) {
	var cachedRaw []byte
	if s.HasObject(store.KindCommitMeta, mergeCommit) {
		data, err := s.ReadObjectContent(store.KindCommitMeta, mergeCommit)
		if err != nil {
			return nil, fmt.Errorf("read cached update on %s: %w", mergeCommit, err)
		}
		cachedRaw = data
	}
	return decodeLayeredImageState(mergeCommit, metadata, cachedRaw)
}
