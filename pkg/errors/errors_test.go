package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap("do thing", "detail", nil))

	err := Wrap("write object", "sha256:abc", ErrChecksumMismatch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Contains(t, err.Error(), "failed to write object (sha256:abc)")

	err = Wrap("write object", "", ErrChecksumMismatch)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "()")
}

func TestLayer(t *testing.T) {
	assert.Nil(t, Layer("sha256:aaa", "sha256:bbb", nil))

	err := Layer("sha256:aaa", "", ErrLayerFetch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLayerFetch)
	assert.Equal(t, "layer sha256:aaa: layer fetch failed", err.Error())

	err = Layer("sha256:aaa", "sha256:bbb", ErrChecksumMismatch)
	require.True(t, errors.Is(err, ErrChecksumMismatch))
	assert.Equal(t, "layer sha256:aaa, object sha256:bbb: checksum mismatch", err.Error())
}
