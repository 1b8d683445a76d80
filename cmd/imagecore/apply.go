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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/imagecore/pkg/apply"
	"github.com/cowdogmoo/imagecore/pkg/compose"
	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/filetree"
	"github.com/cowdogmoo/imagecore/pkg/logging"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

var applyCmd = &cobra.Command{
	Use:   "apply REF-OR-COMMIT TARGET-DIR",
	Short: "Apply a commit's filesystem diff onto a live directory",
	Long: `apply checks out the named reference or raw commit digest into a
scratch directory, diffs it against the current contents of TARGET-DIR,
and applies only the additions, removals, and changes, swapping each
top-level subtree atomically so readers never observe a half-applied
update.`,
	Args: cobra.ExactArgs(2),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().Bool("skip-removals", false, "Leave stale files in place instead of removing them")
	applyCmd.Flags().Bool("skip-sync", false, "Skip the fsync barriers around the atomic swap")
}

func runApply(cmd *cobra.Command, args []string) error {
	refOrCommit, targetDir := args[0], args[1]
	cfg := configFromContext(cmd)
	ctx := cmd.Context()

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	defer s.Close()

	commit, err := resolveCommit(s, refOrCommit)
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "imagecore-apply-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := compose.CheckoutCommit(s, commit, scratch); err != nil {
		return fmt.Errorf("checkout commit %s: %w", commit, err)
	}

	liveTree, err := filetree.FromDir(targetDir)
	if err != nil {
		return fmt.Errorf("read target directory %s: %w", targetDir, err)
	}
	updatedTree, err := filetree.FromDir(scratch)
	if err != nil {
		return fmt.Errorf("read checked-out commit: %w", err)
	}

	diff := liveTree.Diff(updatedTree)
	logging.InfoContext(ctx, "applying %s to %s: %s", refOrCommit, targetDir, diff)

	opts := &apply.Options{
		SkipRemovals: cfg.Apply.SkipRemovals,
		SkipSync:     cfg.Apply.SkipSync,
	}
	if cmd.Flags().Changed("skip-removals") {
		opts.SkipRemovals, _ = cmd.Flags().GetBool("skip-removals")
	}
	if cmd.Flags().Changed("skip-sync") {
		opts.SkipSync, _ = cmd.Flags().GetBool("skip-sync")
	}

	if err := apply.ApplyDiff(ctx, scratch, targetDir, diff, opts); err != nil {
		return fmt.Errorf("apply diff to %s: %w", targetDir, err)
	}

	logging.OutputContext(ctx, fmt.Sprintf("applied %s to %s (%s)", refOrCommit, targetDir, diff))
	return nil
}

// resolveCommit treats name as a reference name first, falling back to
// interpreting it as a raw digest string if no such reference exists.
func resolveCommit(s store.ObjectStore, name string) (digestx.Digest, error) {
	if commit, ok, err := s.ResolveRef(name); err != nil {
		return "", fmt.Errorf("resolve ref %s: %w", name, err)
	} else if ok {
		return commit, nil
	}
	return digestx.Digest(name), nil
}
