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

// Package errors provides the sentinel error kinds shared across the object
// store, tar importer, composer, and diff applier, plus a small wrapping
// helper for building diagnostic chains.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Use errors.Is against these; wrap with Wrap or
// fmt.Errorf("...: %w", ...) to attach the failing layer/object/cause.
var (
	// ErrChecksumMismatch means a written object's computed digest disagreed
	// with its expected digest. Fatal to the current import.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrInvalidObjectPath means a tar entry path does not match the object
	// path grammar.
	ErrInvalidObjectPath = errors.New("invalid object path")
	// ErrInvalidChecksumString means a checksum is not lowercase hex of the
	// length its algorithm requires (64 digits for sha256, 128 for sha512),
	// or names an algorithm other than those two.
	ErrInvalidChecksumString = errors.New("invalid checksum string")
	// ErrDuplicateCommit means a second commit object was seen in one stream.
	ErrDuplicateCommit = errors.New("duplicate commit object")
	// ErrMissingCommit means the stream ended without a commit object in
	// commit mode.
	ErrMissingCommit = errors.New("missing commit object")
	// ErrDanglingXattrs means an xattrs preamble was not followed by its
	// matching file.
	ErrDanglingXattrs = errors.New("dangling xattrs reference")
	// ErrOversizeObject means a metadata or xattrs object exceeded its size
	// limit.
	ErrOversizeObject = errors.New("object exceeds size limit")
	// ErrUnsupportedEntry means an unsupported tar entry type or filesystem
	// entry type was encountered.
	ErrUnsupportedEntry = errors.New("unsupported entry type")
	// ErrSignatureInvalid means commit signature verification failed.
	ErrSignatureInvalid = errors.New("signature verification failed")
	// ErrNotBootable means the image configuration lacks the bootable marker.
	ErrNotBootable = errors.New("image is not bootable")
	// ErrArchMismatch means the image's declared architecture does not match
	// the host.
	ErrArchMismatch = errors.New("image architecture does not match host")
	// ErrNameConflict means a FileTree encountered a file using the reserved
	// temp prefix.
	ErrNameConflict = errors.New("name conflicts with reserved temporary prefix")
	// ErrInvalidPath means a path contains ".." or other non-normalizable
	// components during derived-layer filtering.
	ErrInvalidPath = errors.New("invalid path")
	// ErrLayerFetch wraps an underlying byte-source error for one layer.
	ErrLayerFetch = errors.New("layer fetch failed")
	// ErrRefMissing means a named reference was expected but absent.
	ErrRefMissing = errors.New("reference missing")
	// ErrIO wraps an underlying filesystem error.
	ErrIO = errors.New("i/o error")
)

// Wrap wraps an error with a descriptive action and optional detail.
// It returns a formatted error in the form "failed to <action> [(<detail>)]: <error>".
//
// Example usage:
//
//	if err := doSomething(); err != nil {
//	    return errors.Wrap("create builder", "", err)
//	}
//
//	if err := parseFile(path); err != nil {
//	    return errors.Wrap("parse config", path, err)
//	}
func Wrap(action, detail string, err error) error {
	if err == nil {
		return nil
	}

	if detail != "" {
		return fmt.Errorf("failed to %s (%s): %w", action, detail, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// Layer wraps err with the identity of the layer and, if known, the object
// digest that failed, matching the "names the failing layer, the object if
// identifiable, and the underlying cause" user-visible contract.
func Layer(layerDigest, objectDigest string, err error) error {
	if err == nil {
		return nil
	}
	if objectDigest == "" {
		return fmt.Errorf("layer %s: %w", layerDigest, err)
	}
	return fmt.Errorf("layer %s, object %s: %w", layerDigest, objectDigest, err)
}
