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

// Package ociimage carries the manifest and image-configuration shapes the
// Layer Fetcher and Image Composer consume, built directly on the OCI image-spec Go types
// rather than parallel hand-rolled structs.
package ociimage

import (
	"encoding/json"
	"fmt"
	"runtime"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
)

// Well-known image-configuration labels. The exact strings are an external convention (the real-world
// bootc/ostree-ext tooling this module's design is grounded on); the kept
// slice of original_source/ doesn't carry the constant definitions
// themselves (they live in a container/mod.rs file outside the retrieval
// filter), so these follow the same naming family visible in
// ostree-ext/src/container/store.rs's own label/metadata-key constants
// (e.g. META_FILTERED = "ostree.tar-filtered").
const (
	// DiffIDLabel names the base object-graph layer's plaintext-content
	// digest.
	DiffIDLabel = "ostree.diffid"
	// BootableLabel marks an image as bootable.
	BootableLabel = "containers.bootc"
	// CompatLabel carries a known compatibility version value; unknown
	// values warn rather than fail.
	CompatLabel = "ostree.bootable.compat-version"
	// VersionLabel is the standard OCI version annotation, read by
	// ImageConfiguration.Version().
	VersionLabel = "org.opencontainers.image.version"
)

// KnownCompatVersions enumerates the compatibility values this importer
// recognizes without warning.
var KnownCompatVersions = map[string]bool{
	"1": true,
}

// Manifest is the ordered list of layer descriptors describing one image
// instance, wrapping the OCI manifest type
// directly: Manifest.Layers is the layer sequence in manifest order, and
// each Descriptor carries (digest, size, media-type, optional annotations).
type Manifest = v1.Manifest

// ImageConfiguration wraps the OCI image config, adding the label/version
// accessors the Layer Fetcher and Image Composer need.
type ImageConfiguration struct {
	v1.Image
}

// DecodeManifest parses a manifest blob.
func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decoding manifest: %w", err)
	}
	return m, nil
}

// DecodeImageConfiguration parses an image configuration blob.
func DecodeImageConfiguration(data []byte) (*ImageConfiguration, error) {
	var cfg ImageConfiguration
	if err := json.Unmarshal(data, &cfg.Image); err != nil {
		return nil, fmt.Errorf("decoding image configuration: %w", err)
	}
	return &cfg, nil
}

// Labels returns the configuration's labels, or nil if the config carries
// no Config.Labels map at all.
func (c *ImageConfiguration) Labels() map[string]string {
	return c.Config.Labels
}

// DiffIDs returns the ordered plaintext-content digests of the image's
// layers.
func (c *ImageConfiguration) DiffIDs() []digestx.Digest {
	out := make([]digestx.Digest, len(c.RootFS.DiffIDs))
	for i, d := range c.RootFS.DiffIDs {
		out[i] = digestx.Digest(d)
	}
	return out
}

// BaseLayerDiffID returns the diff-id naming the base object-graph layer,
// and whether the label was present at all. A missing label means a non-ostree image: all layers are derived.
func (c *ImageConfiguration) BaseLayerDiffID() (digestx.Digest, bool) {
	v, ok := c.Labels()[DiffIDLabel]
	if !ok || v == "" {
		return "", false
	}
	return digestx.Digest(v), true
}

// IsBootable reports whether the configuration carries the bootable marker
//.
func (c *ImageConfiguration) IsBootable() bool {
	_, ok := c.Labels()[BootableLabel]
	return ok
}

// Version returns the org.opencontainers.image.version label, if any
//.
func (c *ImageConfiguration) Version() (string, bool) {
	v, ok := c.Labels()[VersionLabel]
	return v, ok
}

// CheckCompatLabel reports whether the compatibility label, if present,
// carries a recognized value. A present-but-unrecognized value is not an
// error; the
// caller is expected to log the returned value via pkg/logging.
func (c *ImageConfiguration) CheckCompatLabel() (value string, present, known bool) {
	v, ok := c.Labels()[CompatLabel]
	if !ok {
		return "", false, true
	}
	return v, true, KnownCompatVersions[v]
}

// hostArchAliases maps runtime.GOARCH spellings to the OCI/Docker arch
// strings an image configuration may declare.
var hostArchAliases = map[string][]string{
	"amd64": {"amd64", "x86_64"},
	"arm64": {"arm64", "aarch64"},
}

// MatchesHostArch reports whether the configuration's declared architecture
// matches the running host, accounting for the amd64/x86_64 and
// arm64/aarch64 naming aliases real registries mix between.
func (c *ImageConfiguration) MatchesHostArch() bool {
	return ArchMatches(string(c.Architecture), runtime.GOARCH)
}

// ArchMatches reports whether declared (as found in an image configuration)
// and host (a runtime.GOARCH value) name the same architecture.
func ArchMatches(declared, host string) bool {
	if declared == host {
		return true
	}
	for _, alias := range hostArchAliases[host] {
		if declared == alias {
			return true
		}
	}
	return false
}

// CheckArchAndBootable enforces the architecture check: when required is
// true, the configuration must declare bootable and its
// architecture must match the host, else ErrNotBootable / ErrArchMismatch.
func CheckArchAndBootable(c *ImageConfiguration, required bool) error {
	if !required {
		return nil
	}
	if !c.IsBootable() {
		return imgerrors.ErrNotBootable
	}
	if !c.MatchesHostArch() {
		return fmt.Errorf("image declares %q, host is %q: %w", c.Architecture, runtime.GOARCH, imgerrors.ErrArchMismatch)
	}
	return nil
}

// ManifestDigest computes the digest identifying this specific manifest
// instance, from its canonical JSON encoding as fetched.
func ManifestDigest(raw []byte) digestx.Digest {
	return digestx.FromBytes(digestx.SHA256, raw)
}
