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

// Well-known merge-commit metadata keys.
const (
	MetaManifestDigest  = "ostree.manifest-digest"
	MetaManifest        = "ostree.manifest"
	MetaImageConfig     = "ostree.container.image-config"
	MetaImporterVersion = "ostree.importer.version"
	MetaTarFiltered     = "ostree.tar-filtered"
	MetaDerivedBase     = "bootc.derived"
)

// MetaTransientRoot marks a base commit whose root is transient
// (overlayfs/composefs style): derived
// layers on top of it may introduce files outside /usr without being
// filtered. Recorded on the base commit itself, not the merge commit, so
// that it is discoverable straight from ostree_commit_layer before any
// derived-layer processing happens. Absent means non-transient; a
// generic (non-ostree) image with no base commit at all is treated as
// transient by convention, matching ostree-ext's "for generic images we
// assume they're using composefs" default.
const MetaTransientRoot = "ostree.transient-root"

// Detached cached-update keys. Stored as
// a commitmeta object, the one object kind keyed directly by the commit
// it describes rather than by its own content hash, so it can be
// rewritten freely as newer manifests are observed.
const (
	MetaCachedManifestDigest = "cached.manifest-digest"
	MetaCachedManifest       = "cached.manifest"
	MetaCachedConfig         = "cached.config"
)

// ImporterVersion is recorded on every merge commit under
// MetaImporterVersion.
const ImporterVersion = "0.1.0"

// TarFiltered is the per-layer filtered-content dictionary recorded under
// MetaTarFiltered.
type TarFiltered map[string]map[string]int
