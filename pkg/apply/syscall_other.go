//go:build !linux

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

package apply

import (
	"fmt"
	"os"
)

// exchange falls back to a non-atomic swap through a throwaway name on
// platforms without RENAME_EXCHANGE. The object store and deployment
// flows this package serves are Linux-only in production; this keeps
// the package buildable elsewhere for tests and tooling.
func exchange(a, b string) error {
	tmp := b + ".exchange"
	if err := os.Rename(a, tmp); err != nil {
		return fmt.Errorf("rename %s: %w", a, err)
	}
	if err := os.Rename(b, a); err != nil {
		return fmt.Errorf("rename %s: %w", b, err)
	}
	if err := os.Rename(tmp, b); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func syncDir(_ string) error {
	return nil
}
