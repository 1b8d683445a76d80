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

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/imagecore/pkg/gc"
	"github.com/cowdogmoo/imagecore/pkg/logging"
	"github.com/cowdogmoo/imagecore/pkg/store"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Prune layer references no retained image reaches",
	Long: `gc unions the layer digests named by every image reference's manifest,
plus any deployment commits reported by the external deployment tracker
(none, by default), and unsets every layer reference outside that union.
Objects themselves are never removed; gc only prunes references.`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg := configFromContext(cmd)
	ctx := cmd.Context()

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

	result, err := gc.Collect(ctx, txn, gc.NoDeployments{})
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	for _, name := range result.SkippedRefs {
		logging.WarnContext(ctx, "gc: left %s untouched (could not evaluate)", name)
	}
	logging.OutputContext(ctx, fmt.Sprintf("pruned %d layer refs, retained %d", result.PrunedLayerRefs, result.RetainedLayerRefs))
	return nil
}
