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
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// versionCutover is the ostree release at and after which the "retain var"
// rewrite regime applies instead of the legacy usr/share/factory/var remap,
// grounded on ostree-ext's container/store.rs ostree_v2024_3 check.
var versionCutover = semver.MustParse("2024.3.0")

// VersionHint selects a FilterConfig's RetainVar behavior from an
// ostree-style (year, release) version pair, matching the real
// ostree_v2024_3 comparison: newer-or-equal versions retain var/ as-is,
// older versions remap it under usr/share/factory/var.
func VersionHint(year, release int) (retainVar bool, err error) {
	if year < 0 || release < 0 {
		return false, fmt.Errorf("invalid ostree version hint (%d, %d): negative component", year, release)
	}
	v, err := semver.NewVersion(fmt.Sprintf("%d.%d.0", year, release))
	if err != nil {
		return false, fmt.Errorf("parse ostree version hint (%d, %d): %w", year, release, err)
	}
	return !v.LessThan(versionCutover), nil
}
