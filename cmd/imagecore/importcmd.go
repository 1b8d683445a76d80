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

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/logging"
	"github.com/cowdogmoo/imagecore/pkg/store"
	"github.com/cowdogmoo/imagecore/pkg/tarimport"
)

var (
	importRef       string
	importObjectSet bool
)

var importCmd = &cobra.Command{
	Use:   "import TAR-FILE",
	Short: "Import a tar stream of content-addressed objects into the store",
	Long: `import reads a tar stream of content-addressed objects — either a single
commit and its object graph, or a bag of file/symlink objects with no
commit — and writes every object to the store exactly once.

Use --object-set for a bag of objects with no leading commit entry; a
synthetic dirtree commit is generated for it on finish. Use --ref to set
a named reference at the resulting commit.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importRef, "ref", "", "Reference name to set at the resulting commit")
	importCmd.Flags().BoolVar(&importObjectSet, "object-set", false, "Import a bag of file/symlink objects with no leading commit entry")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := configFromContext(cmd)
	ctx := cmd.Context()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

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

	var importer *tarimport.Importer
	if importObjectSet {
		importer = tarimport.NewObjectSetImporter(txn)
	} else {
		importer = tarimport.NewCommitImporter(txn, nil)
	}

	if err := importer.Import(ctx, f); err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}

	var digest digestx.Digest
	var finishErr error
	if importObjectSet {
		digest, finishErr = importer.FinishObjectSet()
	} else {
		digest, finishErr = importer.FinishCommit()
	}
	if finishErr != nil {
		return fmt.Errorf("finish import of %s: %w", args[0], finishErr)
	}

	if importRef != "" {
		txn.SetRef(importRef, digest)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	stats := importer.Stats()
	logging.InfoContext(ctx, "imported %s: %d dirtree, %d dirmeta, %d small files, %d large files, %d symlinks",
		args[0], stats.DirTree, stats.DirMeta, stats.RegfileSmall, stats.RegfileLarge, stats.Symlinks)
	logging.OutputContext(ctx, string(digest))
	return nil
}
