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
	"context"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/cowdogmoo/imagecore/pkg/compose"
	"github.com/cowdogmoo/imagecore/pkg/gc"
	"github.com/cowdogmoo/imagecore/pkg/layerfetch"
	"github.com/cowdogmoo/imagecore/pkg/logging"
	"github.com/cowdogmoo/imagecore/pkg/ocilayout"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

var (
	composeOCILayoutDir       string
	composeVersionHintYear    int
	composeVersionHintRelease int
)

var composeCmd = &cobra.Command{
	Use:   "compose IMAGE-REF",
	Short: "Fetch and merge an image's layers into a single commit",
	Long: `compose fetches an OCI manifest and configuration from a local OCI Image
Layout directory, decides whether any layer needs fetching, and if so
merges the base commit with every derived layer into a new merge commit,
recorded under the image's reference.

If the image is already up to date, compose exits without fetching
anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompose,
}

func init() {
	composeCmd.Flags().StringVar(&composeOCILayoutDir, "oci-layout", "", "Path to an OCI Image Layout directory to read the manifest/config/layers from (required)")
	composeCmd.Flags().IntVar(&composeVersionHintYear, "version-hint-year", 0, "Year component of the ostree version hint selecting the var-remap regime")
	composeCmd.Flags().IntVar(&composeVersionHintRelease, "version-hint-release", 0, "Release component of the ostree version hint")
	_ = composeCmd.MarkFlagRequired("oci-layout")
}

func runCompose(cmd *cobra.Command, args []string) error {
	imageRef := args[0]
	cfg := configFromContext(cmd)
	ctx := cmd.Context()

	src, err := ocilayout.Open(composeOCILayoutDir)
	if err != nil {
		return fmt.Errorf("open oci layout %s: %w", composeOCILayoutDir, err)
	}

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	defer s.Close()

	txn, err := s.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = txn.Abort()
		}
	}()

	result, err := compose.Prepare(ctx, src, s, imageRef)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", imageRef, err)
	}

	if result.AlreadyPresent {
		logging.InfoContext(ctx, "image %s already up to date at merge commit %s", imageRef, result.State.MergeCommit)
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		committed = true
		return nil
	}

	events := make(chan layerfetch.Event, 16)
	byteProgress := make(chan layerfetch.ByteProgress, 16)
	progressDone := make(chan struct{})
	go printComposeProgress(events, byteProgress, progressDone)

	opts := &compose.ImportOptions{
		RequireBootable: cfg.Fetch.RequireBootable,
		DisableGC:       cfg.Fetch.DisableGC,
		NoWriteImageRef: cfg.Fetch.NoWriteImageRef,
		AllowNonUsr:     cfg.Fetch.AllowNonUsr,
		Progress:        &layerfetch.Progress{Events: events, Bytes: byteProgress},
		GC: func(ctx context.Context) error {
			result, err := gc.Collect(ctx, txn, gc.NoDeployments{})
			if err != nil {
				return err
			}
			logging.InfoContext(ctx, "gc: pruned %d layer refs, retained %d", result.PrunedLayerRefs, result.RetainedLayerRefs)
			return nil
		},
	}
	if composeVersionHintYear != 0 {
		opts.VersionHint = &compose.VersionHintOption{Year: composeVersionHintYear, Release: composeVersionHintRelease}
	}

	state, err := compose.Import(ctx, src, txn, result.Import, opts)
	close(events)
	close(byteProgress)
	<-progressDone
	if err != nil {
		return fmt.Errorf("import %s: %w", imageRef, err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	logging.OutputContext(ctx, fmt.Sprintf("composed %s -> merge commit %s", imageRef, state.MergeCommit))
	return nil
}

// printComposeProgress drains both progress channels until closed,
// printing a line per discrete layer event and an overwriting byte
// counter for whichever layer is currently streaming.
func printComposeProgress(events <-chan layerfetch.Event, byteProgress <-chan layerfetch.ByteProgress, done chan<- struct{}) {
	defer close(done)

	for events != nil || byteProgress != nil {
		select {
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if e.Completed {
				fmt.Fprintf(os.Stderr, "done  %s\n", e.Layer.Layer.Digest)
			} else {
				fmt.Fprintf(os.Stderr, "fetch %s\n", e.Layer.Layer.Digest)
			}
		case b, ok := <-byteProgress:
			if !ok {
				byteProgress = nil
				continue
			}
			fmt.Fprintf(os.Stderr, "\r  %s / %s", units.HumanSize(float64(b.Fetched)), units.HumanSize(float64(b.Total)))
		}
	}
}
