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

// Package layerfetch classifies a manifest's layers into ostree-component,
// ostree-commit, and derived groups, tracks which are
// already cached under LAYER_NS, and dispatches fetched blobs to the
// right decompressor and the right Tar Object Importer mode.
package layerfetch

import (
	"fmt"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/ociimage"
	"github.com/cowdogmoo/imagecore/pkg/refescape"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

// LayerState pairs a manifest layer descriptor with the stable ref name
// caching it and, once known, the commit digest cached there (ostree-ext
// container/store.rs ManifestLayerState).
type LayerState struct {
	Layer    v1.Descriptor
	RefName  string
	Commit   digestx.Digest
	HasCache bool
}

// Partition is the result of classifying a manifest's layers against its
// image configuration.
type Partition struct {
	ComponentLayers []LayerState // strictly before the base layer
	CommitLayer     *LayerState  // the base object-graph layer, if any
	DerivedLayers   []LayerState // strictly after the base layer
}

// AllLayers iterates the commit layer (if any), then component layers,
// then derived layers, matching PreparedImport::all_layers's ordering.
func (p *Partition) AllLayers() []*LayerState {
	out := make([]*LayerState, 0, len(p.ComponentLayers)+len(p.DerivedLayers)+1)
	if p.CommitLayer != nil {
		out = append(out, p.CommitLayer)
	}
	for i := range p.ComponentLayers {
		out = append(out, &p.ComponentLayers[i])
	}
	for i := range p.DerivedLayers {
		out = append(out, &p.DerivedLayers[i])
	}
	return out
}

// PartitionLayers classifies manifest's layers against cfg's base-layer
// diff-id label. A
// missing label means a non-ostree image: every layer is derived, matching
// ostree-ext's parse_manifest_layout behavior of returning
// (None, [], all layers) in that case.
func PartitionLayers(manifest ociimage.Manifest, cfg *ociimage.ImageConfiguration) (*Partition, error) {
	diffID, hasBase := cfg.BaseLayerDiffID()
	if !hasBase {
		derived := make([]LayerState, len(manifest.Layers))
		for i, l := range manifest.Layers {
			derived[i] = newLayerState(l)
		}
		return &Partition{DerivedLayers: derived}, nil
	}

	diffIDs := cfg.DiffIDs()
	idx := -1
	for i, d := range diffIDs {
		if d == diffID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("diff-id %s not found among %d configured layers", diffID, len(diffIDs))
	}
	if idx >= len(manifest.Layers) {
		return nil, fmt.Errorf("diff-id position %d exceeds layer count %d", idx, len(manifest.Layers))
	}

	p := &Partition{}
	for i, l := range manifest.Layers {
		ls := newLayerState(l)
		switch {
		case i < idx:
			p.ComponentLayers = append(p.ComponentLayers, ls)
		case i == idx:
			p.CommitLayer = &ls
		default:
			p.DerivedLayers = append(p.DerivedLayers, ls)
		}
	}
	return p, nil
}

func newLayerState(l v1.Descriptor) LayerState {
	return LayerState{
		Layer:   l,
		RefName: refescape.LayerRef(string(l.Digest)),
	}
}

// ResolveCacheState fills in HasCache/Commit for every layer in p by
// querying s for each layer's LAYER_NS reference.
func ResolveCacheState(s store.ObjectStore, p *Partition) error {
	for _, ls := range p.AllLayers() {
		d, ok, err := s.ResolveRef(ls.RefName)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", ls.RefName, err)
		}
		ls.HasCache = ok
		if ok {
			ls.Commit = d
		}
	}
	return nil
}
