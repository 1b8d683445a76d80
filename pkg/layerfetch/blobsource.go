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
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// BlobSource is the opaque byte source a layer is fetched from: a reader
// over the compressed blob plus its media type.
// Implementations own retry/auth/timeout policy; this package only
// consumes the returned reader.
type BlobSource interface {
	FetchManifest(ctx context.Context) (data []byte, mediaType string, err error)
	FetchConfig(ctx context.Context, desc v1.Descriptor) (data []byte, err error)
	FetchLayer(ctx context.Context, desc v1.Descriptor) (r io.ReadCloser, err error)
}

// Decompress wraps r with the decompressor matching mediaType, returning r unchanged
// for an uncompressed (identity) layer. The returned ReadCloser's Close
// also closes r.
func Decompress(r io.ReadCloser, mediaType string) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(mediaType, "+gzip") || strings.Contains(mediaType, "tar+gzip"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip layer: %w", err)
		}
		return &gzipReadCloser{gz: zr, under: r}, nil
	case strings.HasSuffix(mediaType, "+zstd") || strings.Contains(mediaType, "tar+zstd"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening zstd layer: %w", err)
		}
		return &zstdReadCloser{zs: zr, under: r}, nil
	default:
		return r, nil
	}
}

type gzipReadCloser struct {
	gz    *gzip.Reader
	under io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gerr := g.gz.Close()
	uerr := g.under.Close()
	if gerr != nil {
		return gerr
	}
	return uerr
}

type zstdReadCloser struct {
	zs    *zstd.Decoder
	under io.ReadCloser
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.zs.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.zs.Close()
	return z.under.Close()
}
