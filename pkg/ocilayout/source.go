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

// Package ocilayout implements compose.ManifestSource and
// layerfetch.BlobSource over a local OCI Image Layout directory (the
// format `skopeo copy`/`buildah push` write to a plain directory target).
// Network fetching of manifests is explicitly out of scope:
// this package is the "opaque byte source" a caller supplies, reading
// blobs already staged on disk rather than reaching out to a registry.
package ocilayout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Source reads manifest, config, and layer blobs from an OCI Image Layout
// directory rooted at Dir.
type Source struct {
	Dir string
}

// Open validates that dir looks like an OCI Image Layout (an "oci-layout"
// marker file and an index.json) and returns a Source over it.
func Open(dir string) (*Source, error) {
	data, err := os.ReadFile(filepath.Join(dir, v1.ImageLayoutFile))
	if err != nil {
		return nil, fmt.Errorf("read oci-layout marker: %w", err)
	}
	var layout v1.ImageLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("decode oci-layout marker: %w", err)
	}
	if layout.Version != v1.ImageLayoutVersion {
		return nil, fmt.Errorf("unsupported oci-layout version %q", layout.Version)
	}
	if _, err := os.Stat(filepath.Join(dir, "index.json")); err != nil {
		return nil, fmt.Errorf("stat index.json: %w", err)
	}
	return &Source{Dir: dir}, nil
}

// FetchManifest implements compose.ManifestSource / layerfetch.BlobSource,
// resolving index.json's first manifest entry. A layout produced for a
// single image (the common case for `skopeo copy docker://... oci:dir`)
// has exactly one entry; a multi-arch index is rejected rather than
// guessing a platform, since this module has no platform-selection policy
// of its own.
func (s *Source) FetchManifest(ctx context.Context) ([]byte, string, error) {
	indexData, err := os.ReadFile(filepath.Join(s.Dir, "index.json"))
	if err != nil {
		return nil, "", fmt.Errorf("read index.json: %w", err)
	}
	var index v1.Index
	if err := json.Unmarshal(indexData, &index); err != nil {
		return nil, "", fmt.Errorf("decode index.json: %w", err)
	}
	if len(index.Manifests) == 0 {
		return nil, "", fmt.Errorf("oci-layout %s: index.json names no manifests", s.Dir)
	}
	if len(index.Manifests) > 1 {
		return nil, "", fmt.Errorf("oci-layout %s: index.json names %d manifests, expected exactly one", s.Dir, len(index.Manifests))
	}
	desc := index.Manifests[0]
	data, err := s.readBlob(desc.Digest.String())
	if err != nil {
		return nil, "", err
	}
	return data, desc.MediaType, nil
}

// FetchConfig implements layerfetch.BlobSource.
func (s *Source) FetchConfig(ctx context.Context, desc v1.Descriptor) ([]byte, error) {
	return s.readBlob(desc.Digest.String())
}

// FetchLayer implements layerfetch.BlobSource.
func (s *Source) FetchLayer(ctx context.Context, desc v1.Descriptor) (io.ReadCloser, error) {
	return os.Open(s.blobPath(desc.Digest.String()))
}

func (s *Source) readBlob(digest string) ([]byte, error) {
	return os.ReadFile(s.blobPath(digest))
}

// blobPath maps an "<algorithm>:<hex>" digest string to
// blobs/<algorithm>/<hex>, the layout OCI Image Layout mandates.
func (s *Source) blobPath(digest string) string {
	algorithm, hex, ok := splitDigest(digest)
	if !ok {
		return filepath.Join(s.Dir, "blobs", "sha256", digest)
	}
	return filepath.Join(s.Dir, "blobs", algorithm, hex)
}

func splitDigest(digest string) (algorithm, hex string, ok bool) {
	for i := 0; i < len(digest); i++ {
		if digest[i] == ':' {
			return digest[:i], digest[i+1:], true
		}
	}
	return "", "", false
}
