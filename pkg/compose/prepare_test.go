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
	"testing"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/ociimage"
	"github.com/cowdogmoo/imagecore/pkg/refescape"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

type fakeManifestSource struct {
	manifest []byte
	config   []byte
}

func (f *fakeManifestSource) FetchManifest(ctx context.Context) ([]byte, string, error) {
	return f.manifest, "application/vnd.oci.image.manifest.v1+json", nil
}

func (f *fakeManifestSource) FetchConfig(ctx context.Context, desc v1.Descriptor) ([]byte, error) {
	return f.config, nil
}

func openComposeTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func simpleManifestAndConfig(t *testing.T, version string) ([]byte, []byte) {
	t.Helper()
	cfg := ociimage.ImageConfiguration{}
	cfg.Config.Labels = map[string]string{ociimage.VersionLabel: version}
	cfg.RootFS.DiffIDs = []digestx.Digest{"sha256:base0000000000000000000000000000000000000000000000000000000000"}
	configData, err := json.Marshal(cfg.Image)
	require.NoError(t, err)

	m := ociimage.Manifest{
		Config: v1.Descriptor{MediaType: "application/vnd.oci.image.config.v1+json", Digest: "sha256:cfg", Size: int64(len(configData))},
		Layers: []v1.Descriptor{
			{Digest: "sha256:base0000000000000000000000000000000000000000000000000000000000", MediaType: "application/vnd.oci.image.layer.v1.tar", Size: 1},
		},
	}
	manifestData, err := json.Marshal(m)
	require.NoError(t, err)
	return manifestData, configData
}

func TestPrepareFreshImageReturnsImport(t *testing.T) {
	s := openComposeTestStore(t)
	manifestData, configData := simpleManifestAndConfig(t, "1.0.0")
	src := &fakeManifestSource{manifest: manifestData, config: configData}

	result, err := Prepare(context.Background(), src, s, "docker://example.com/os:latest")
	require.NoError(t, err)
	require.False(t, result.AlreadyPresent)
	require.NotNil(t, result.Import)
	assert.Equal(t, ociimage.ManifestDigest(manifestData), result.Import.ManifestDigest)
	assert.Equal(t, refescape.ImageRef("docker://example.com/os:latest"), result.Import.ManifestRef)
}

func writeMergeCommit(t *testing.T, s store.ObjectStore, manifestData, configData []byte, manifestDigest digestx.Digest) digestx.Digest {
	t.Helper()
	treeData, err := store.EncodeDirTree(nil, nil)
	require.NoError(t, err)
	tree, err := s.WriteMetadata(store.KindDirTree, "", treeData)
	require.NoError(t, err)
	metaData, err := store.EncodeDirMeta(0, 0, 0o755, "")
	require.NoError(t, err)
	meta, err := s.WriteMetadata(store.KindDirMeta, "", metaData)
	require.NoError(t, err)

	digestJSON, err := json.Marshal(string(manifestDigest))
	require.NoError(t, err)
	commitMeta := store.CommitMetadata{
		MetaManifestDigest: digestJSON,
		MetaManifest:       manifestData,
		MetaImageConfig:    configData,
	}
	commitData, err := store.EncodeCommit(commitMeta, "", tree, meta, 1700000000)
	require.NoError(t, err)
	commit, err := s.WriteMetadata(store.KindCommit, "", commitData)
	require.NoError(t, err)
	return commit
}

func TestPrepareAlreadyPresentSameManifestDigest(t *testing.T) {
	s := openComposeTestStore(t)
	manifestData, configData := simpleManifestAndConfig(t, "1.0.0")
	manifestDigest := ociimage.ManifestDigest(manifestData)

	commit := writeMergeCommit(t, s, manifestData, configData, manifestDigest)
	refName := refescape.ImageRef("docker://example.com/os:latest")
	txn, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	txn.SetRef(refName, commit)
	require.NoError(t, txn.Commit())

	src := &fakeManifestSource{manifest: manifestData, config: configData}
	result, err := Prepare(context.Background(), src, s, "docker://example.com/os:latest")
	require.NoError(t, err)
	assert.True(t, result.AlreadyPresent)
	require.NotNil(t, result.State)
	assert.Equal(t, manifestDigest, result.State.ManifestDigest)
	_, hasCached := result.State.CachedUpdate()
	assert.False(t, hasCached)
}

func TestPrepareAlreadyPresentRetaggedRecordsCachedUpdate(t *testing.T) {
	s := openComposeTestStore(t)
	manifestData, configData := simpleManifestAndConfig(t, "1.0.0")
	manifestDigest := ociimage.ManifestDigest(manifestData)

	commit := writeMergeCommit(t, s, manifestData, configData, manifestDigest)
	refName := refescape.ImageRef("docker://example.com/os:latest")
	txn, err := s.BeginTransaction(context.Background())
	require.NoError(t, err)
	txn.SetRef(refName, commit)
	require.NoError(t, txn.Commit())

	newManifestData, err := json.Marshal(struct {
		Config v1.Descriptor   `json:"config"`
		Layers []v1.Descriptor `json:"layers"`
		Extra  string          `json:"extra"`
	}{
		Config: v1.Descriptor{Digest: "sha256:cfg", Size: int64(len(configData))},
		Layers: []v1.Descriptor{{Digest: "sha256:base0000000000000000000000000000000000000000000000000000000000", Size: 1}},
		Extra:  "retag",
	})
	require.NoError(t, err)

	src := &fakeManifestSource{manifest: newManifestData, config: configData}
	result, err := Prepare(context.Background(), src, s, "docker://example.com/os:latest")
	require.NoError(t, err)
	assert.True(t, result.AlreadyPresent)
	require.NotNil(t, result.State)

	update, hasCached := result.State.CachedUpdate()
	require.True(t, hasCached)
	assert.Equal(t, ociimage.ManifestDigest(newManifestData), update.ManifestDigest)
}
