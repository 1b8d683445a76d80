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
	"archive/tar"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTarEntries(t *testing.T, entries []tar.Header, bodies map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, hdr := range entries {
		h := hdr
		body := bodies[hdr.Name]
		h.Size = int64(len(body))
		require.NoError(t, tw.WriteHeader(&h))
		if len(body) > 0 {
			_, err := tw.Write(body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func readTarNames(t *testing.T, data []byte) map[string]*tar.Header {
	t.Helper()
	out := map[string]*tar.Header{}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		h := *hdr
		out[hdr.Name] = &h
	}
	return out
}

func TestFilterTarScenarioF(t *testing.T) {
	src := writeTarEntries(t, []tar.Header{
		{Name: "/usr/bin/app", Typeflag: tar.TypeReg, Mode: 0o755},
		{Name: "/etc/foo", Typeflag: tar.TypeReg, Mode: 0o644},
		{Name: "/opt/pkg", Typeflag: tar.TypeReg, Mode: 0o644},
		{Name: "/run/pid/1", Typeflag: tar.TypeReg, Mode: 0o644},
		{Name: "/var/lib/data", Typeflag: tar.TypeReg, Mode: 0o644},
	}, nil)

	var dest bytes.Buffer
	result, err := FilterTar(bytes.NewReader(src), &dest, FilterConfig{AllowNonUsr: false, RetainVar: false})
	require.NoError(t, err)

	names := readTarNames(t, dest.Bytes())
	_, ok := names["./usr/bin/app"]
	assert.True(t, ok)
	_, ok = names["./usr/etc/foo"]
	assert.True(t, ok)
	_, ok = names["./usr/share/factory/var/lib/data"]
	assert.True(t, ok)
	_, ok = names["./opt/pkg"]
	assert.False(t, ok)
	_, ok = names["./run/pid/1"]
	assert.False(t, ok)

	assert.Equal(t, 1, result.Filtered["opt"])
	assert.Equal(t, 1, result.Filtered["run"])
}

func TestFilterTarRetainVar(t *testing.T) {
	src := writeTarEntries(t, []tar.Header{
		{Name: "var/lib/data", Typeflag: tar.TypeReg},
	}, nil)
	var dest bytes.Buffer
	_, err := FilterTar(bytes.NewReader(src), &dest, FilterConfig{RetainVar: true})
	require.NoError(t, err)
	names := readTarNames(t, dest.Bytes())
	_, ok := names["./var/lib/data"]
	assert.True(t, ok)
}

func TestFilterTarAllowNonUsr(t *testing.T) {
	src := writeTarEntries(t, []tar.Header{
		{Name: "opt/pkg", Typeflag: tar.TypeReg},
	}, nil)
	var dest bytes.Buffer
	result, err := FilterTar(bytes.NewReader(src), &dest, FilterConfig{AllowNonUsr: true})
	require.NoError(t, err)
	names := readTarNames(t, dest.Bytes())
	_, ok := names["./opt/pkg"]
	assert.True(t, ok)
	assert.Empty(t, result.Filtered)
}

func TestFilterTarRejectsDotDot(t *testing.T) {
	src := writeTarEntries(t, []tar.Header{
		{Name: "usr/../../etc/passwd", Typeflag: tar.TypeReg},
	}, nil)
	var dest bytes.Buffer
	_, err := FilterTar(bytes.NewReader(src), &dest, FilterConfig{})
	assert.Error(t, err)
}

// TestFilterTarHardlinkIntoObjectStoreRewrite implements Testable Property
// 9: a modified regular file inside the object-store prefix followed by
// two hardlinks produces a plain regular-file entry carrying the content at
// the first alias, and a hardlink entry at the second alias pointing at the
// first.
func TestFilterTarHardlinkIntoObjectStoreRewrite(t *testing.T) {
	now := time.Unix(1700000000, 0)
	objPath := ObjectStorePrefix + "objects/ab/cdef.file"
	body := []byte("object bytes")

	src := writeTarEntries(t, []tar.Header{
		{Name: objPath, Typeflag: tar.TypeReg, Mode: 0o644, ModTime: now},
		{Name: "usr/bin/a", Typeflag: tar.TypeLink, Linkname: objPath, ModTime: now},
		{Name: "usr/bin/b", Typeflag: tar.TypeLink, Linkname: objPath, ModTime: now},
	}, map[string][]byte{objPath: body})

	var dest bytes.Buffer
	_, err := FilterTar(bytes.NewReader(src), &dest, FilterConfig{})
	require.NoError(t, err)

	names := readTarNames(t, dest.Bytes())
	a, ok := names["usr/bin/a"]
	require.True(t, ok)
	assert.Equal(t, uint8(tar.TypeReg), a.Typeflag)

	b, ok := names["usr/bin/b"]
	require.True(t, ok)
	assert.Equal(t, uint8(tar.TypeLink), b.Typeflag)
	assert.Equal(t, "usr/bin/a", b.Linkname)

	tr := tar.NewReader(bytes.NewReader(dest.Bytes()))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Name == "usr/bin/a" {
			got, err := io.ReadAll(tr)
			require.NoError(t, err)
			assert.Equal(t, body, got)
		}
	}
}

func TestRemapEtcPathForms(t *testing.T) {
	assert.Equal(t, "/usr/etc/foo", RemapEtcPath("/etc/foo"))
	assert.Equal(t, "./usr/etc/foo", RemapEtcPath("./etc/foo"))
	assert.Equal(t, "usr/etc/foo", RemapEtcPath("etc/foo"))
	assert.Equal(t, "/etcc/foo", RemapEtcPath("/etcc/foo"))
	assert.Equal(t, "foo", RemapEtcPath("foo"))
}
