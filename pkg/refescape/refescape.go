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

// Package refescape builds and parses the reference names the object
// store keeps in its LAYER_NS and IMAGE_NS namespaces.
// A digest like "sha256:deadbeef" or an image reference like
// "docker://example.com/foo:latest" both contain characters a bbolt key
// can hold fine, but that we still escape so the prefix/body split is
// unambiguous and ref names stay shell- and filesystem-friendly for
// diagnostics. Escaping is reversible byte-for-byte.
package refescape

import (
	"fmt"
	"strings"

	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
)

const (
	// LayerPrefix namespaces per-layer cache handles.
	LayerPrefix = "LAYER_NS"
	// ImagePrefix namespaces composed-image pointers.
	ImagePrefix = "IMAGE_NS"

	escapeChar = '_'
)

// isSafe reports whether b needs no escaping.
func isSafe(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '.' || b == '-':
		return true
	default:
		return false
	}
}

// Escape replaces every byte outside [a-zA-Z0-9.-] with a reversible
// "_XX_" hex escape (two uppercase hex digits), and every literal
// escapeChar with a doubled "__", so Unescape can always tell the two
// cases apart unambiguously.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == escapeChar:
			b.WriteString("__")
		case isSafe(c):
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02X_", c)
		}
	}
	return b.String()
}

// Unescape reverses Escape. It returns ErrInvalidPath if s contains a
// malformed escape sequence.
func Unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != escapeChar {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("truncated escape at offset %d in %q: %w", i, s, imgerrors.ErrInvalidPath)
		}
		if s[i+1] == escapeChar {
			b.WriteByte(escapeChar)
			i++
			continue
		}
		if i+3 >= len(s) || s[i+3] != escapeChar {
			return "", fmt.Errorf("malformed escape at offset %d in %q: %w", i, s, imgerrors.ErrInvalidPath)
		}
		var v byte
		if _, err := fmt.Sscanf(s[i+1:i+3], "%02X", &v); err != nil {
			return "", fmt.Errorf("malformed hex escape at offset %d in %q: %w", i, s, imgerrors.ErrInvalidPath)
		}
		b.WriteByte(v)
		i += 3
	}
	return b.String(), nil
}

// PrefixEscapeForRef builds "<prefix>/<escaped-body>".
func PrefixEscapeForRef(prefix, body string) string {
	return prefix + "/" + Escape(body)
}

// UnprefixUnescapeRef splits "<prefix>/<escaped-body>" and unescapes the
// body. It returns ErrInvalidPath if ref does not start with
// "<prefix>/".
func UnprefixUnescapeRef(prefix, ref string) (string, error) {
	want := prefix + "/"
	if !strings.HasPrefix(ref, want) {
		return "", fmt.Errorf("ref %q missing prefix %q: %w", ref, want, imgerrors.ErrInvalidPath)
	}
	return Unescape(strings.TrimPrefix(ref, want))
}

// LayerRef returns the LAYER_NS reference name for a layer digest.
func LayerRef(digest string) string {
	return PrefixEscapeForRef(LayerPrefix, digest)
}

// ImageRef returns the IMAGE_NS reference name for an image reference
// string.
func ImageRef(imageRef string) string {
	return PrefixEscapeForRef(ImagePrefix, imageRef)
}

// LayerDigestFromRef recovers the original digest from a LAYER_NS ref name.
func LayerDigestFromRef(ref string) (string, error) {
	return UnprefixUnescapeRef(LayerPrefix, ref)
}

// ImageReferenceFromRef recovers the original image reference string from
// an IMAGE_NS ref name.
func ImageReferenceFromRef(ref string) (string, error) {
	return UnprefixUnescapeRef(ImagePrefix, ref)
}
