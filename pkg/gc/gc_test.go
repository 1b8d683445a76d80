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

package gc

import (
	"context"
	"encoding/json"
	"testing"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/imagecore/pkg/compose"
	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/refescape"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

func openGCTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeBareCommit(t *testing.T, s store.ObjectStore, metadata store.CommitMetadata) digestx.Digest {
	t.Helper()
	treeData, err := store.EncodeDirTree(nil, nil)
	require.NoError(t, err)
	tree, err := s.WriteMetadata(store.KindDirTree, "", treeData)
	require.NoError(t, err)
	metaData, err := store.EncodeDirMeta(0, 0, 0o755, "")
	require.NoError(t, err)
	meta, err := s.WriteMetadata(store.KindDirMeta, "", metaData)
	require.NoError(t, err)
	commitData, err := store.EncodeCommit(metadata, "", tree, meta, 1700000000)
	require.NoError(t, err)
	commit, err := s.WriteMetadata(store.KindCommit, "", commitData)
	require.NoError(t, err)
	return commit
}

func manifestMetadata(t *testing.T, layerDigests ...digestx.Digest) store.CommitMetadata {
	t.Helper()
	manifest := v1.Manifest{}
	for _, d := range layerDigests {
		manifest.Layers = append(manifest.Layers, v1.Descriptor{Digest: d, MediaType: "application/vnd.oci.image.layer.v1.tar"})
	}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	return store.CommitMetadata{compose.MetaManifest: raw}
}

type fakeDeploymentSource struct {
	commits []digestx.Digest
}

func (f fakeDeploymentSource) DeploymentCommits(context.Context) ([]digestx.Digest, error) {
	return f.commits, nil
}

func TestCollectPrunesUnreferencedLayerRefs(t *testing.T) {
	s := openGCTestStore(t)
	txn, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn.Abort() }()

	kept := digestx.Digest("sha256:kept0000000000000000000000000000000000000000000000000000000000")
	orphan := digestx.Digest("sha256:orphan00000000000000000000000000000000000000000000000000000000")

	imageCommit := writeBareCommit(t, s, manifestMetadata(t, kept))
	txn.SetRef(refescape.ImageRef("example.com/os:latest"), imageCommit)
	txn.SetRef(refescape.LayerRef(string(kept)), kept)
	txn.SetRef(refescape.LayerRef(string(orphan)), orphan)
	require.NoError(t, txn.Commit())

	txn2, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn2.Abort() }()

	result, err := Collect(context.Background(), txn2, NoDeployments{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PrunedLayerRefs)
	assert.Equal(t, 1, result.RetainedLayerRefs)
	require.NoError(t, txn2.Commit())

	_, ok, err := s.ResolveRef(refescape.LayerRef(string(orphan)))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.ResolveRef(refescape.LayerRef(string(kept)))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCollectRetainsLayersPinnedByDeployment(t *testing.T) {
	s := openGCTestStore(t)
	txn, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn.Abort() }()

	pinned := digestx.Digest("sha256:pinned00000000000000000000000000000000000000000000000000000000")
	deploymentCommit := writeBareCommit(t, s, manifestMetadata(t, pinned))
	txn.SetRef(refescape.LayerRef(string(pinned)), pinned)
	require.NoError(t, txn.Commit())

	txn2, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn2.Abort() }()

	result, err := Collect(context.Background(), txn2, fakeDeploymentSource{commits: []digestx.Digest{deploymentCommit}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.PrunedLayerRefs)
	assert.Equal(t, 1, result.RetainedLayerRefs)
}

func TestCollectNilDeploymentSourceDefaultsToNone(t *testing.T) {
	s := openGCTestStore(t)
	txn, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn.Abort() }()

	orphan := digestx.Digest("sha256:none0000000000000000000000000000000000000000000000000000000000")
	txn.SetRef(refescape.LayerRef(string(orphan)), orphan)
	require.NoError(t, txn.Commit())

	txn2, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn2.Abort() }()

	result, err := Collect(context.Background(), txn2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PrunedLayerRefs)
}

func TestCollectSkipsMalformedLayerRefWithoutPruning(t *testing.T) {
	s := openGCTestStore(t)
	txn, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn.Abort() }()

	// A truncated escape sequence: LayerDigestFromRef must reject it.
	txn.SetRef("LAYER_NS/bad_", digestx.Digest("sha256:whatever00000000000000000000000000000000000000000000000000000"))
	require.NoError(t, txn.Commit())

	txn2, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn2.Abort() }()

	result, err := Collect(context.Background(), txn2, NoDeployments{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.PrunedLayerRefs)
	assert.Contains(t, result.SkippedRefs, "LAYER_NS/bad_")
}

func TestCollectIgnoresCommitsWithoutManifestMetadata(t *testing.T) {
	s := openGCTestStore(t)
	txn, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn.Abort() }()

	bareCommit := writeBareCommit(t, s, nil)
	txn.SetRef("IMAGE_NS/bare-layer-commit", bareCommit)
	require.NoError(t, txn.Commit())

	txn2, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	defer func() { _ = txn2.Abort() }()

	result, err := Collect(context.Background(), txn2, NoDeployments{})
	require.NoError(t, err)
	assert.Empty(t, result.SkippedRefs)
}
