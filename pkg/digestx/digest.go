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

// Package digestx restricts github.com/opencontainers/go-digest's Digest
// type to the two algorithms the object store recognizes: sha256 and
// sha512. A Digest is always of the form "<algo>:<hex>"; equality is
// byte-equality on that canonical string.
package digestx

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"github.com/opencontainers/go-digest"

	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
)

// Digest is a validated content digest of the form "<algo>:<hex>".
type Digest = digest.Digest

// Algorithm enumerates the digest algorithms the object store accepts.
type Algorithm = digest.Algorithm

const (
	// SHA256 is the default, and the only algorithm the v1 xattrs writer
	// and tar importer exercise in practice.
	SHA256 Algorithm = digest.SHA256
	// SHA512 is accepted for completeness with the object-digest grammar;
	// pkg/filetree emits it for its per-file content digests.
	SHA512 Algorithm = digest.SHA512
)

// Parse validates s against the "<algo>:<hex>" grammar and restricts the
// algorithm to SHA256 or SHA512. It returns ErrInvalidChecksumString for
// any other shape, including a syntactically valid digest using an
// algorithm this store does not register.
func Parse(s string) (Digest, error) {
	d, err := digest.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s, imgerrors.ErrInvalidChecksumString)
	}
	if err := validateAlgorithm(d.Algorithm()); err != nil {
		return "", err
	}
	return d, nil
}

// ParseHex builds a Digest from a bare lowercase hex string and an
// algorithm, validating hex length and casing. Used by the tar importer's
// object-path grammar, which carries the algorithm and hex as separate
// path components.
func ParseHex(algo Algorithm, hex string) (Digest, error) {
	if err := validateAlgorithm(algo); err != nil {
		return "", err
	}
	d := digest.NewDigestFromHex(algo.String(), hex)
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("%s:%s: %w", algo, hex, imgerrors.ErrInvalidChecksumString)
	}
	return d, nil
}

func validateAlgorithm(algo Algorithm) error {
	switch algo {
	case digest.SHA256, digest.SHA512:
		return nil
	default:
		return fmt.Errorf("unsupported digest algorithm %q: %w", algo, imgerrors.ErrInvalidChecksumString)
	}
}

// NewHasher returns a fresh hash.Hash for algo. algo must already be one
// of SHA256 or SHA512.
func NewHasher(algo Algorithm) hash.Hash {
	switch algo {
	case digest.SHA512:
		return sha512.New()
	default:
		return sha256.New()
	}
}

// FromBytes computes the digest of b under algo.
func FromBytes(algo Algorithm, b []byte) Digest {
	h := NewHasher(algo)
	h.Write(b)
	return digest.NewDigestFromEncoded(algo, fmt.Sprintf("%x", h.Sum(nil)))
}

// Verifier wraps an io.Writer that accumulates a running hash, so
// streaming writers (write_regfile_streaming) can compute a digest
// without buffering the full payload in memory.
type Verifier struct {
	algo Algorithm
	hash hash.Hash
	n    int64
}

// NewVerifier starts a Verifier for algo.
func NewVerifier(algo Algorithm) *Verifier {
	return &Verifier{algo: algo, hash: NewHasher(algo)}
}

// Write implements io.Writer, feeding p into the running hash.
func (v *Verifier) Write(p []byte) (int, error) {
	n, err := v.hash.Write(p)
	v.n += int64(n)
	return n, err
}

// Size reports the number of bytes written so far.
func (v *Verifier) Size() int64 {
	return v.n
}

// Digest finalizes and returns the computed digest. Calling Write after
// Digest produces an incorrect result; callers must not reuse a Verifier.
func (v *Verifier) Digest() Digest {
	return digest.NewDigestFromEncoded(v.algo, fmt.Sprintf("%x", v.hash.Sum(nil)))
}

// CheckExpected compares the Verifier's computed digest against an
// expected digest, if one was provided. An empty expected digest means
// "no expectation"; any mismatch is ErrChecksumMismatch.
func (v *Verifier) CheckExpected(expected Digest) (Digest, error) {
	got := v.Digest()
	if expected != "" && expected != got {
		return "", fmt.Errorf("expected %s, computed %s: %w", expected, got, imgerrors.ErrChecksumMismatch)
	}
	return got, nil
}

// CopyAndVerify copies all of src into dst through a Verifier for algo,
// then checks the result against expected (pass "" for no expectation).
func CopyAndVerify(dst io.Writer, src io.Reader, algo Algorithm, expected Digest) (Digest, int64, error) {
	v := NewVerifier(algo)
	n, err := io.Copy(io.MultiWriter(dst, v), src)
	if err != nil {
		return "", n, fmt.Errorf("copy: %w", err)
	}
	got, err := v.CheckExpected(expected)
	if err != nil {
		return "", n, err
	}
	return got, n, nil
}
