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

// Package store implements the content-addressed object store: file, symlink, dirtree, dirmeta, commit, and commitmeta
// objects keyed by digest, plus a LAYER_NS/IMAGE_NS reference namespace
// and a single-writer transaction protocol.
package store

// Kind identifies one of the object store's object variants.
type Kind string

// Object kinds. The metadata kinds match the tar entry path suffix of the
// same name; file and symlink content both arrive under the "file" suffix
// and are told apart by the tar entry type.
const (
	KindFile       Kind = "file"
	KindSymlink    Kind = "symlink"
	KindDirTree    Kind = "dirtree"
	KindDirMeta    Kind = "dirmeta"
	KindCommit     Kind = "commit"
	KindCommitMeta Kind = "commitmeta"
)

// IsMetadataKind reports whether k is one of the metadata-object kinds
// subject to the 10 MiB size limit.
func (k Kind) IsMetadataKind() bool {
	switch k {
	case KindDirTree, KindDirMeta, KindCommit, KindCommitMeta:
		return true
	default:
		return false
	}
}
