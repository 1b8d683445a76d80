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
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/selinux/go-selinux"
	"github.com/opencontainers/selinux/go-selinux/label"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

// selinuxPolicyPath is where a bootc/ostree base image keeps its SELinux
// policy store, rooted at the checked-out tree.
const selinuxPolicyPath = "usr/etc/selinux"

// PolicyProvider labels a path with the SELinux context that the base
// commit's security policy assigns it. Implementations
// own how/where the policy store is made available; the composer only
// calls Label.
type PolicyProvider interface {
	// Label applies whatever file context the provider's policy assigns
	// path, if any. Providers that have no policy (NopPolicyProvider) do
	// nothing and never fail.
	Label(path string) error
}

// NopPolicyProvider labels nothing, matching the original's "unlabeled"
// fallback when the base declares no SELinux policy.
type NopPolicyProvider struct{}

// Label implements PolicyProvider.
func (NopPolicyProvider) Label(string) error { return nil }

// CheckoutPolicyProvider extracts a base commit's usr/etc/selinux policy
// store into a scratch directory once, then labels paths against it for
// the remainder of an import.
type CheckoutPolicyProvider struct {
	policyRoot string
}

// NewCheckoutPolicyProvider checks out base's usr/etc/selinux subtree (if
// present) from s into a fresh temp directory, returning a
// NopPolicyProvider if the base carries no policy at all.
func NewCheckoutPolicyProvider(s store.ObjectStore, base digestx.Digest) (PolicyProvider, error) {
	scratch, err := os.MkdirTemp("", "imagecore-sepolicy-*")
	if err != nil {
		return nil, fmt.Errorf("create selinux policy scratch dir: %w", err)
	}

	rootDirTree, rootDirMeta, _, err := s.ReadCommit(base)
	if err != nil {
		_ = os.RemoveAll(scratch)
		return nil, fmt.Errorf("read base commit %s: %w", base, err)
	}

	found, err := checkoutSubpath(s, rootDirTree, rootDirMeta, selinuxPolicyPath, filepath.Join(scratch, selinuxPolicyPath))
	if err != nil {
		_ = os.RemoveAll(scratch)
		return nil, err
	}
	if !found {
		_ = os.RemoveAll(scratch)
		return NopPolicyProvider{}, nil
	}
	return &CheckoutPolicyProvider{policyRoot: scratch}, nil
}

// Label implements PolicyProvider by looking up path's context under the
// checked-out policy store and applying it via go-selinux/label.
func (p *CheckoutPolicyProvider) Label(path string) error {
	if !selinux.GetEnabled() {
		return nil
	}
	ctx, err := label.FileLabel(filepath.Join(p.policyRoot, selinuxPolicyPath))
	if err != nil {
		return nil
	}
	if ctx == "" {
		return nil
	}
	if err := label.SetFileLabel(path, ctx); err != nil {
		return fmt.Errorf("label %s: %w", path, err)
	}
	return nil
}

// Close removes the provider's scratch policy checkout.
func (p *CheckoutPolicyProvider) Close() error {
	return os.RemoveAll(p.policyRoot)
}

// newLivePolicyProvider builds a PolicyProvider directly against an
// already-materialized directory rather than checking one out from the
// store. Import uses this once the merge commit's working tree is fully
// assembled (base checked out, every derived layer merged on top), so
// that a derived layer's own updated policy store, if any, takes
// precedence over the base's — both cases collapse into "whatever policy store
// is present at root after the merge" since later layers already won any
// overwrite-union conflict by the time this runs. The caller owns root's
// lifecycle; unlike CheckoutPolicyProvider this is never Closed.
func newLivePolicyProvider(root string) PolicyProvider {
	return &CheckoutPolicyProvider{policyRoot: root}
}

// LabelTree walks root and applies policy's SELinux context to every
// entry, matching the effect of labeling as content is written,
// simplified here to a single post-merge pass over the assembled tree.
func LabelTree(root string, policy PolicyProvider) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		return policy.Label(path)
	})
}
