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

// Package gc prunes layer references that no retained image or deployment
// reaches. It never removes objects themselves: object
// pruning is a separate, externally triggered sweep over reachable
// objects, out of scope here.
package gc

import (
	"context"
	"fmt"
	"strings"

	"github.com/cowdogmoo/imagecore/pkg/compose"
	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/logging"
	"github.com/cowdogmoo/imagecore/pkg/ociimage"
	"github.com/cowdogmoo/imagecore/pkg/refescape"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

// Result reports what one Collect pass did.
type Result struct {
	// PrunedLayerRefs is the count of LAYER_NS references unset because no
	// retained manifest referenced their digest.
	PrunedLayerRefs int
	// RetainedLayerRefs is the count of LAYER_NS references left alone.
	RetainedLayerRefs int
	// SkippedRefs names LAYER_NS or IMAGE_NS references, and the digests of
	// deployment commits, that could not be evaluated (a malformed ref
	// name, or a commit/manifest that failed to decode) and were therefore
	// left untouched rather than pruned.
	// A reference this module cannot parse is never assumed collectible.
	SkippedRefs []string
}

// DeploymentSource supplies the "external" deployment side of the
// reachability set: this module has no boot-loader or deployment model
// of its own, so whatever tracks staged and booted deployments elsewhere
// tells Collect which commits those deployments pin, via the
// merge-commit digests it returns.
type DeploymentSource interface {
	// DeploymentCommits returns the merge-commit digest of every
	// currently retained deployment (e.g. booted and staged, in an
	// rpm-ostree-like model). Each digest must resolve to a commit
	// carrying the same ostree.manifest commit-metadata key a composed
	// image's merge commit does.
	DeploymentCommits(ctx context.Context) ([]digestx.Digest, error)
}

// NoDeployments is a DeploymentSource with no external deployments to
// protect, for callers (tests, or a store used purely as an image cache)
// that never materialize a bootable deployment from it.
type NoDeployments struct{}

// DeploymentCommits implements DeploymentSource.
func (NoDeployments) DeploymentCommits(context.Context) ([]digestx.Digest, error) {
	return nil, nil
}

// Collect enumerates every IMAGE_NS reference and every deployment commit
// deployments reports, unions the layer digests their manifests name, and
// unsets every LAYER_NS reference whose digest is not in that union
//. Reference changes are staged on txn; the caller commits
// or aborts as usual.
func Collect(ctx context.Context, txn *store.Txn, deployments DeploymentSource) (*Result, error) {
	if deployments == nil {
		deployments = NoDeployments{}
	}
	s := txn.Store()

	refs, err := s.ListRefs()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}

	result := &Result{}
	referenced := make(map[string]struct{})

	for name, commit := range refs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !strings.HasPrefix(name, refescape.ImagePrefix+"/") {
			continue
		}
		if err := unionManifestLayers(s, commit, referenced); err != nil {
			logging.Warn("gc: skipping image reference %s: %v", name, err)
			result.SkippedRefs = append(result.SkippedRefs, name)
		}
	}

	deploymentCommits, err := deployments.DeploymentCommits(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate deployment commits: %w", err)
	}
	for _, commit := range deploymentCommits {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := unionManifestLayers(s, commit, referenced); err != nil {
			logging.Warn("gc: skipping deployment commit %s: %v", commit, err)
			result.SkippedRefs = append(result.SkippedRefs, string(commit))
		}
	}

	for name := range refs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !strings.HasPrefix(name, refescape.LayerPrefix+"/") {
			continue
		}
		digest, err := refescape.LayerDigestFromRef(name)
		if err != nil {
			logging.Warn("gc: leaving malformed layer reference %s untouched: %v", name, err)
			result.SkippedRefs = append(result.SkippedRefs, name)
			continue
		}
		if _, ok := referenced[digest]; ok {
			result.RetainedLayerRefs++
			continue
		}
		txn.SetRef(name, "")
		result.PrunedLayerRefs++
	}

	return result, nil
}

// unionManifestLayers decodes commit's recorded manifest, if any, and adds
// every layer digest it names to referenced. A commit with no
// ostree.manifest metadata (a bare layer commit, never a merge commit)
// contributes nothing and is not an error.
func unionManifestLayers(s store.ObjectStore, commit digestx.Digest, referenced map[string]struct{}) error {
	_, _, metadata, err := s.ReadCommit(commit)
	if err != nil {
		return fmt.Errorf("read commit %s: %w", commit, err)
	}
	raw, ok := metadata[compose.MetaManifest]
	if !ok {
		return nil
	}
	manifest, err := ociimage.DecodeManifest(raw)
	if err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	for _, layer := range manifest.Layers {
		referenced[layer.Digest.String()] = struct{}{}
	}
	return nil
}
