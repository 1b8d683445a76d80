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
	"fmt"
	"io"
	"strings"

	imgerrors "github.com/cowdogmoo/imagecore/pkg/errors"
	"github.com/cowdogmoo/imagecore/pkg/logging"
)

// ObjectStorePrefix is the on-disk path, inside a derived-layer tar, that
// names a file destined for the live object store rather than the
// filesystem proper.
const ObjectStorePrefix = "sysroot/ostree/repo/"

// excludedTopLevel names toplevel directories whose own entry is kept but
// whose children are filtered out of a derived layer.
var excludedTopLevel = map[string]bool{
	"run": true, "tmp": true, "proc": true, "sys": true, "dev": true,
}

// FilterConfig controls derived-layer path rewriting.
type FilterConfig struct {
	// AllowNonUsr keeps toplevel directories other than usr/etc/var
	// instead of filtering them (paired with a transient-root base).
	AllowNonUsr bool
	// RetainVar leaves var/... untouched instead of remapping it under
	// usr/share/factory/var.
	RetainVar bool
}

// normalizedResult is the outcome of normalizeValidatePath for one entry.
type normalizedResult struct {
	path     string
	filtered bool
	first    string
}

// normalizeValidatePath rewrites and validates one tar entry path against
// cfg, matching ostree-ext's normalize_validate_path.
func normalizeValidatePath(path string, cfg FilterConfig) (normalizedResult, error) {
	clean := strings.TrimPrefix(path, "/")
	clean = strings.TrimPrefix(clean, "./")
	parts := make([]string, 0, 8)
	for _, p := range strings.Split(clean, "/") {
		switch p {
		case "", ".":
			continue
		case "..":
			return normalizedResult{}, fmt.Errorf("path %q contains '..': %w", path, imgerrors.ErrInvalidPath)
		default:
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return normalizedResult{path: "./"}, nil
	}

	first := parts[0]
	rest := parts[1:]
	var out []string

	switch {
	case first == "usr":
		out = append(out, "usr")
	case first == "etc":
		out = append(out, "usr", "etc")
	case first == "var":
		if cfg.RetainVar {
			out = append(out, "var")
		} else {
			out = append(out, "usr", "share", "factory", "var")
		}
	case excludedTopLevel[first]:
		if len(rest) > 0 {
			return normalizedResult{filtered: true, first: first}, nil
		}
		out = append(out, first)
	case cfg.AllowNonUsr:
		out = append(out, first)
	default:
		return normalizedResult{filtered: true, first: first}, nil
	}

	out = append(out, rest...)
	return normalizedResult{path: "./" + strings.Join(out, "/")}, nil
}

// RemapEtcPath rewrites a path whose first component is "etc" (in any of
// the "/etc", "./etc", "etc" spellings) to "usr/etc/...", and returns
// every other path unchanged.
func RemapEtcPath(path string) string {
	trimmedSlash := strings.HasPrefix(path, "/")
	trimmedDot := strings.HasPrefix(path, "./")
	rest := path
	switch {
	case trimmedSlash:
		rest = strings.TrimPrefix(path, "/")
	case trimmedDot:
		rest = strings.TrimPrefix(path, "./")
	}
	if rest != "etc" && !strings.HasPrefix(rest, "etc/") {
		return path
	}
	switch {
	case trimmedSlash:
		return "/usr/" + rest
	case trimmedDot:
		return "./usr/" + rest
	default:
		return "usr/" + rest
	}
}

// FilterResult is the outcome of FilterTar: the per-toplevel counts of
// filtered entries.
type FilterResult struct {
	Filtered map[string]int
}

// FilterTar rewrites src, a plain filesystem tar (one derived OCI layer),
// into dest: it remaps etc/var paths, drops content outside usr/etc/var
// unless cfg.AllowNonUsr, and rewrites modified files destined for the
// live object store into plain hardlinked files at their first alias
//.
func FilterTar(src io.Reader, dest io.Writer, cfg FilterConfig) (*FilterResult, error) {
	tr := tar.NewReader(src)
	tw := tar.NewWriter(dest)

	result := &FilterResult{Filtered: map[string]int{}}

	// changedStoreObjects caches a modified object-store file's bytes
	// until its first hardlink alias is seen.
	changedStoreObjects := map[string]*storeObjectData{}
	// storeLinkAliases maps an object-store path to the first hardlink
	// path that has already claimed it, so further hardlinks to the same
	// object-store path link to that alias instead.
	storeLinkAliases := map[string]string{}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading derived layer tar: %w", err)
		}

		path := strings.TrimPrefix(hdr.Name, "/")
		isModified := hdr.ModTime.Unix() > 0
		isRegular := hdr.Typeflag == tar.TypeReg

		if rest, ok := strings.CutPrefix(path, ObjectStorePrefix); ok && isModified && isRegular {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("buffering modified object-store file %s: %w", path, err)
			}
			changedStoreObjects[rest] = &storeObjectData{header: *hdr, name: path, data: data}
			continue
		}

		if hdr.Typeflag == tar.TypeLink && isModified {
			target := strings.TrimPrefix(hdr.Linkname, "/")
			if rest, ok := strings.CutPrefix(target, ObjectStorePrefix); ok {
				if obj, found := changedStoreObjects[rest]; found {
					delete(changedStoreObjects, rest)
					newHdr := obj.header
					newHdr.Name = path
					newHdr.Typeflag = tar.TypeReg
					newHdr.Linkname = ""
					newHdr.Size = int64(len(obj.data))
					if err := tw.WriteHeader(&newHdr); err != nil {
						return nil, fmt.Errorf("writing canonical store-object file %s: %w", path, err)
					}
					if _, err := tw.Write(obj.data); err != nil {
						return nil, fmt.Errorf("writing canonical store-object file %s: %w", path, err)
					}
					storeLinkAliases[obj.name] = path
					continue
				}
				if alias, found := storeLinkAliases[target]; found {
					newHdr := *hdr
					newHdr.Name = path
					newHdr.Linkname = alias
					if err := tw.WriteHeader(&newHdr); err != nil {
						return nil, fmt.Errorf("relinking %s to %s: %w", path, alias, err)
					}
					continue
				}
				// Unresolved modified link into the object store with no
				// earlier alias: drop it, matching the original's
				// "unhandled modified link" trace-and-skip behavior.
				logging.WarnFilteredContent(path, "modified hardlink into object store with no resolvable alias")
				continue
			}
		}

		normalized, err := normalizeValidatePath(path, cfg)
		if err != nil {
			return nil, err
		}
		if normalized.filtered {
			result.Filtered[normalized.first]++
			logging.WarnFilteredContent(path, fmt.Sprintf("outside usr/etc/var under %q", normalized.first))
			continue
		}

		newHdr := *hdr
		newHdr.Name = normalized.path
		if hdr.Typeflag == tar.TypeLink {
			newHdr.Linkname = RemapEtcPath(hdr.Linkname)
		}
		if err := tw.WriteHeader(&newHdr); err != nil {
			return nil, fmt.Errorf("writing entry %s: %w", normalized.path, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.Copy(tw, tr); err != nil {
				return nil, fmt.Errorf("copying entry %s: %w", normalized.path, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing filtered tar: %w", err)
	}
	return result, nil
}

type storeObjectData struct {
	header tar.Header
	name   string
	data   []byte
}
