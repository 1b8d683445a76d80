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

package layerfetch

import (
	"encoding/json"
	"testing"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/imagecore/pkg/ociimage"
)

func configWithDiffIDs(t *testing.T, diffIDs []string, baseLabel string) *ociimage.ImageConfiguration {
	t.Helper()
	img := v1.Image{}
	for _, d := range diffIDs {
		img.RootFS.DiffIDs = append(img.RootFS.DiffIDs, digest.Digest(d))
	}
	if baseLabel != "" {
		img.Config.Labels = map[string]string{ociimage.DiffIDLabel: baseLabel}
	}
	data, err := json.Marshal(img)
	require.NoError(t, err)
	cfg, err := ociimage.DecodeImageConfiguration(data)
	require.NoError(t, err)
	return cfg
}

func TestPartitionLayersWithBase(t *testing.T) {
	manifest := ociimage.Manifest{Layers: []v1.Descriptor{
		{Digest: "sha256:l0", Size: 1},
		{Digest: "sha256:l1", Size: 1},
		{Digest: "sha256:l2", Size: 1},
		{Digest: "sha256:l3", Size: 1},
	}}
	cfg := configWithDiffIDs(t, []string{"sha256:d0", "sha256:d1", "sha256:d2", "sha256:d3"}, "sha256:d2")

	p, err := PartitionLayers(manifest, cfg)
	require.NoError(t, err)
	require.NotNil(t, p.CommitLayer)
	assert.Equal(t, "sha256:l2", string(p.CommitLayer.Layer.Digest))
	require.Len(t, p.ComponentLayers, 2)
	assert.Equal(t, "sha256:l0", string(p.ComponentLayers[0].Layer.Digest))
	assert.Equal(t, "sha256:l1", string(p.ComponentLayers[1].Layer.Digest))
	require.Len(t, p.DerivedLayers, 1)
	assert.Equal(t, "sha256:l3", string(p.DerivedLayers[0].Layer.Digest))

	all := p.AllLayers()
	require.Len(t, all, 4)
	assert.Equal(t, "sha256:l2", string(all[0].Layer.Digest), "commit layer iterates first")
}

func TestPartitionLayersNoBaseLabel(t *testing.T) {
	manifest := ociimage.Manifest{Layers: []v1.Descriptor{{Digest: "sha256:l0"}, {Digest: "sha256:l1"}}}
	cfg := configWithDiffIDs(t, nil, "")

	p, err := PartitionLayers(manifest, cfg)
	require.NoError(t, err)
	assert.Nil(t, p.CommitLayer)
	assert.Empty(t, p.ComponentLayers)
	assert.Len(t, p.DerivedLayers, 2)
}

func TestPartitionLayersDiffIDNotFound(t *testing.T) {
	manifest := ociimage.Manifest{Layers: []v1.Descriptor{{Digest: "sha256:l0"}}}
	cfg := configWithDiffIDs(t, []string{"sha256:d0"}, "sha256:missing")

	_, err := PartitionLayers(manifest, cfg)
	assert.Error(t, err)
}
