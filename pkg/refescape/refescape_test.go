package refescape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"sha256:deadbeef",
		"docker://example.com/foo:latest",
		"quay.io/fedora/fedora-bootc:41",
		"already-safe-name",
		"_leading_underscore_",
		"",
	}
	for _, s := range cases {
		escaped := Escape(s)
		got, err := Unescape(escaped)
		require.NoError(t, err, "unescape(%q)", escaped)
		assert.Equal(t, s, got)
	}
}

func TestEscapeLeavesSafeCharsAlone(t *testing.T) {
	assert.Equal(t, "abc-123.DEF", Escape("abc-123.DEF"))
}

func TestEscapeColon(t *testing.T) {
	escaped := Escape("sha256:ab")
	assert.NotContains(t, escaped, ":")
	got, err := Unescape(escaped)
	require.NoError(t, err)
	assert.Equal(t, "sha256:ab", got)
}

func TestUnescapeRejectsMalformed(t *testing.T) {
	_, err := Unescape("_ZZ_")
	assert.Error(t, err)

	_, err = Unescape("_3A")
	assert.Error(t, err)
}

func TestLayerRefRoundTrip(t *testing.T) {
	digest := "sha256:" + "a1b2c3"
	ref := LayerRef(digest)
	assert.Regexp(t, "^LAYER_NS/", ref)

	got, err := LayerDigestFromRef(ref)
	require.NoError(t, err)
	assert.Equal(t, digest, got)
}

func TestImageRefRoundTrip(t *testing.T) {
	imageRef := "docker://quay.io/example/image:v1.2.3"
	ref := ImageRef(imageRef)
	assert.Regexp(t, "^IMAGE_NS/", ref)

	got, err := ImageReferenceFromRef(ref)
	require.NoError(t, err)
	assert.Equal(t, imageRef, got)
}

func TestUnprefixUnescapeRefWrongPrefix(t *testing.T) {
	_, err := UnprefixUnescapeRef(LayerPrefix, "IMAGE_NS/foo")
	assert.Error(t, err)
}
