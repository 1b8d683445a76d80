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

package layerfetch

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cowdogmoo/imagecore/pkg/digestx"
	"github.com/cowdogmoo/imagecore/pkg/store"
	"github.com/cowdogmoo/imagecore/pkg/tarimport"
)

// ImportMode selects which Tar Object Importer mode a layer is fetched
// into.
type ImportMode int

const (
	// ModeCommit imports the base object-graph layer with a signature
	// verifier.
	ModeCommit ImportMode = iota
	// ModeObjectSet imports an ostree-component layer: file/symlink/xattrs
	// objects only, synthesizing a dirtree commit on finish.
	ModeObjectSet
)

// Event is sent on the discrete progress channel: one per layer start and
// one per layer completion.
type Event struct {
	Layer     LayerState
	Completed bool
}

// ByteProgress is sent on the byte-level progress channel, emitting the
// running (fetched, total) byte counts for the layer currently streaming.
type ByteProgress struct {
	LayerIndex int
	Fetched    int64
	Total      int64
}

// Progress bundles the two optional channels a caller of FetchObjectLayer
// may provide. Either may be nil. Sends never block on a slow or absent
// consumer.
type Progress struct {
	Events chan<- Event
	Bytes  chan<- ByteProgress
}

func (p *Progress) sendEvent(e Event) {
	if p == nil || p.Events == nil {
		return
	}
	select {
	case p.Events <- e:
	default:
	}
}

// SendEvent is sendEvent's exported form, for callers outside this
// package that drive their own fetch/import loop against the same
// Progress channels (pkg/compose's derived-layer import, which routes the
// decompressed stream through a filter and ingests the extracted result
// directly, without the Tar Object Importer).
func (p *Progress) SendEvent(e Event) {
	p.sendEvent(e)
}

// countingReader reports cumulative bytes read through to a ByteProgress
// sink, if configured.
type countingReader struct {
	r          io.Reader
	p          *Progress
	layerIndex int
	total      int64
	fetched    int64
}

func (c *countingReader) Read(buf []byte) (int, error) {
	n, err := c.r.Read(buf)
	c.fetched += int64(n)
	if c.p != nil && c.p.Bytes != nil {
		select {
		case c.p.Bytes <- ByteProgress{LayerIndex: c.layerIndex, Fetched: c.fetched, Total: c.total}:
		default:
		}
	}
	return n, err
}

// FetchObjectLayer fetches, decompresses, and imports one base or
// component layer,
// setting ls's LAYER_NS reference inside txn on success. verifier is
// required for ModeCommit and ignored for ModeObjectSet.
//
// The fetch and the synchronous tar-reading importer are bridged through
// an io.Pipe: the fetching goroutine writes into the pipe, the importer
// goroutine reads from it,
// and if both fail the reader's error wins because it is typically more
// diagnostic of a corrupt stream.
func FetchObjectLayer(ctx context.Context, src BlobSource, layerIndex int, ls *LayerState, txn *store.Txn, mode ImportMode, verifier tarimport.SignatureVerifier, progress *Progress) error {
	progress.sendEvent(Event{Layer: *ls})

	blob, err := src.FetchLayer(ctx, ls.Layer)
	if err != nil {
		return fmt.Errorf("fetching layer %s: %w", ls.Layer.Digest, err)
	}
	defer blob.Close()

	decompressed, err := Decompress(blob, ls.Layer.MediaType)
	if err != nil {
		return err
	}
	defer decompressed.Close()

	counted := &countingReader{r: decompressed, p: progress, layerIndex: layerIndex, total: ls.Layer.Size}

	pr, pw := io.Pipe()

	var wg sync.WaitGroup
	var writerErr, readerErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, cerr := io.Copy(pw, counted)
		if cerr != nil {
			writerErr = fmt.Errorf("streaming layer %s: %w", ls.Layer.Digest, cerr)
			_ = pw.CloseWithError(cerr)
			return
		}
		_ = pw.Close()
	}()

	var commitDigest digestx.Digest
	wg.Add(1)
	go func() {
		defer wg.Done()
		var importer *tarimport.Importer
		if mode == ModeCommit {
			importer = tarimport.NewCommitImporter(txn, verifier)
		} else {
			importer = tarimport.NewObjectSetImporter(txn)
		}
		if err := importer.Import(ctx, pr); err != nil {
			readerErr = fmt.Errorf("importing layer %s: %w", ls.Layer.Digest, err)
			_ = pr.CloseWithError(err)
			return
		}
		var ferr error
		if mode == ModeCommit {
			commitDigest, ferr = importer.FinishCommit()
		} else {
			commitDigest, ferr = importer.FinishObjectSet()
		}
		readerErr = ferr
	}()

	wg.Wait()

	// Prefer the reader's error when both sides failed: it is typically
	// more diagnostic of a corrupt stream than the fetch side's I/O error
	//.
	if readerErr != nil {
		return readerErr
	}
	if writerErr != nil {
		return writerErr
	}

	txn.SetRef(ls.RefName, commitDigest)
	ls.Commit = commitDigest
	ls.HasCache = true
	progress.sendEvent(Event{Layer: *ls, Completed: true})
	return nil
}
