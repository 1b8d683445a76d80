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
	"encoding/json"
	"fmt"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/ociimage"
)

// CachedImageUpdate describes a newer manifest observed for an image
// reference but not yet imported, recorded as detached commitmeta on the
// existing merge commit.
type CachedImageUpdate struct {
	ManifestDigest digestx.Digest
	Manifest       ociimage.Manifest
	Config         *ociimage.ImageConfiguration
}

// LayeredImageState is the decoded view of a merge commit's metadata
//.
type LayeredImageState struct {
	BaseCommit     digestx.Digest
	MergeCommit    digestx.Digest
	ManifestDigest digestx.Digest
	Manifest       ociimage.Manifest
	Configuration  *ociimage.ImageConfiguration
	cachedUpdate   *CachedImageUpdate
}

// CachedUpdate returns the pending manifest update recorded for this
// image, if any.
func (s *LayeredImageState) CachedUpdate() (*CachedImageUpdate, bool) {
	return s.cachedUpdate, s.cachedUpdate != nil
}

// Version returns the configuration's org.opencontainers.image.version
// label, if any.
func (s *LayeredImageState) Version() (string, bool) {
	if s.Configuration == nil {
		return "", false
	}
	return s.Configuration.Version()
}

// decodeLayeredImageState builds a LayeredImageState from a merge commit's
// metadata dictionary plus whatever cached-update commitmeta, if any, is
// passed in cachedRaw (nil if none was found).
func decodeLayeredImageState(mergeCommit digestx.Digest, metadata map[string]json.RawMessage, cachedRaw []byte) (*LayeredImageState, error) {
	state := &LayeredImageState{MergeCommit: mergeCommit}

	if raw, ok := metadata[MetaDerivedBase]; ok {
		var base string
		if err := json.Unmarshal(raw, &base); err != nil {
			return nil, fmt.Errorf("decode %s: %w", MetaDerivedBase, err)
		}
		state.BaseCommit = digestx.Digest(base)
	}

	if raw, ok := metadata[MetaManifestDigest]; ok {
		var d string
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", MetaManifestDigest, err)
		}
		state.ManifestDigest = digestx.Digest(d)
	}

	if raw, ok := metadata[MetaManifest]; ok {
		m, err := ociimage.DecodeManifest(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", MetaManifest, err)
		}
		state.Manifest = m
	}

	if raw, ok := metadata[MetaImageConfig]; ok {
		cfg, err := ociimage.DecodeImageConfiguration(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", MetaImageConfig, err)
		}
		state.Configuration = cfg
	}

	if len(cachedRaw) > 0 {
		update, err := decodeCachedUpdate(cachedRaw)
		if err != nil {
			return nil, err
		}
		state.cachedUpdate = update
	}

	return state, nil
}

type cachedUpdateRecord struct {
	ManifestDigest json.RawMessage `json:"cached.manifest-digest"`
	Manifest       json.RawMessage `json:"cached.manifest"`
	Config         json.RawMessage `json:"cached.config"`
}

func encodeCachedUpdate(manifestDigest digestx.Digest, manifestRaw, configRaw []byte) ([]byte, error) {
	digestJSON, err := json.Marshal(string(manifestDigest))
	if err != nil {
		return nil, fmt.Errorf("encode cached manifest digest: %w", err)
	}
	rec := cachedUpdateRecord{
		ManifestDigest: digestJSON,
		Manifest:       manifestRaw,
		Config:         configRaw,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode cached update: %w", err)
	}
	return data, nil
}

func decodeCachedUpdate(data []byte) (*CachedImageUpdate, error) {
	var rec cachedUpdateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode cached update: %w", err)
	}

	var digest string
	if err := json.Unmarshal(rec.ManifestDigest, &digest); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MetaCachedManifestDigest, err)
	}

	manifest, err := ociimage.DecodeManifest(rec.Manifest)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", MetaCachedManifest, err)
	}

	cfg, err := ociimage.DecodeImageConfiguration(rec.Config)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", MetaCachedConfig, err)
	}

	return &CachedImageUpdate{
		ManifestDigest: digestx.Digest(digest),
		Manifest:       manifest,
		Config:         cfg,
	}, nil
}
