package digestx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
)

func TestParseValid(t *testing.T) {
	d, err := Parse("sha256:" + strings.Repeat("a", 64))
	require.NoError(t, err)
	assert.Equal(t, SHA256, d.Algorithm())

	d, err = Parse("sha512:" + strings.Repeat("b", 128))
	require.NoError(t, err)
	assert.Equal(t, SHA512, d.Algorithm())
}

func TestParseRejectsUnsupportedAlgorithm(t *testing.T) {
	_, err := Parse("sha1:" + strings.Repeat("a", 40))
	require.Error(t, err)
	assert.ErrorIs(t, err, imgerrors.ErrInvalidChecksumString)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "sha256", "sha256:abc", "sha256:" + strings.Repeat("A", 64)} {
		_, err := Parse(s)
		assert.Error(t, err, "expected parse failure for %q", s)
	}
}

func TestParseHex(t *testing.T) {
	hex := strings.Repeat("c", 64)
	d, err := ParseHex(SHA256, hex)
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+hex, d.String())

	_, err = ParseHex(SHA256, "short")
	assert.Error(t, err)
}

func TestFromBytes(t *testing.T) {
	d := FromBytes(SHA256, []byte("hello world"))
	assert.Equal(t, "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", d.String())
}

func TestVerifierCheckExpected(t *testing.T) {
	v := NewVerifier(SHA256)
	_, err := v.Write([]byte("hello world"))
	require.NoError(t, err)

	got, err := v.CheckExpected("")
	require.NoError(t, err)
	assert.Equal(t, Digest("sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"), got)

	v2 := NewVerifier(SHA256)
	_, _ = v2.Write([]byte("hello world"))
	_, err = v2.CheckExpected("sha256:" + strings.Repeat("0", 64))
	require.Error(t, err)
	assert.ErrorIs(t, err, imgerrors.ErrChecksumMismatch)
}

func TestCopyAndVerify(t *testing.T) {
	var dst bytes.Buffer
	src := bytes.NewReader([]byte("hello world"))

	d, n, err := CopyAndVerify(&dst, src, SHA256, "")
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)
	assert.Equal(t, "hello world", dst.String())
	assert.Equal(t, "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", d.String())
}
