/*
Copyright © 2024-present, Jayson Grace <jayson.e.grace@gmail.com>

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

// Package config loads imagecore's layered configuration (flags > env >
// config file > defaults) via viper, following the precedence the
// teacher's config/globalconfig packages establish.
package config

import (
	"strconv"

	"github.com/Masterminds/semver/v3"
)

// DirPermReadWriteExec is the mode used when creating config/cache
// directories: owner read/write/execute, group and other read/execute.
const DirPermReadWriteExec = 0o755

// Config is the top-level application configuration.
type Config struct {
	Debug    bool           `mapstructure:"debug"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Registry RegistryConfig `mapstructure:"registry"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Apply    ApplyConfig    `mapstructure:"apply"`
}

// LogConfig stores the configuration for the logger.
type LogConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

// StoreConfig configures the on-disk object store a compose/apply/gc/import
// invocation operates against.
type StoreConfig struct {
	// Path is the object store's root directory.
	Path string `mapstructure:"path"`
	// VersionHintYear and VersionHintRelease are the (year, release)
	// version hint that UsesLegacyVarRemap compares against the 2024.3
	// cutover; a zero year there means no legacy remap. The compose
	// command does not read these fields: it takes its hint from its own
	// --version-hint-year/--version-hint-release flags.
	VersionHintYear    int `mapstructure:"version_hint_year"`
	VersionHintRelease int `mapstructure:"version_hint_release"`
	// RetainVar makes UsesLegacyVarRemap report false regardless of the
	// version hint. The compose command does not read it.
	RetainVar bool `mapstructure:"retain_var"`
}

// RegistryConfig names the default registry host used to resolve an image
// reference that omits one (e.g. "os:latest" rather than
// "docker://registry.example.com/os:latest").
type RegistryConfig struct {
	Default  string `mapstructure:"default"`
	Insecure bool   `mapstructure:"insecure"`
}

// FetchConfig mirrors compose.ImportOptions, giving every knob that struct
// exposes a config-file/env/flag home.
type FetchConfig struct {
	RequireBootable bool `mapstructure:"require_bootable"`
	DisableGC       bool `mapstructure:"disable_gc"`
	NoWriteImageRef bool `mapstructure:"no_write_image_ref"`
	AllowNonUsr     bool `mapstructure:"allow_non_usr"`
}

// ApplyConfig mirrors apply.Options.
type ApplyConfig struct {
	SkipRemovals bool `mapstructure:"skip_removals"`
	SkipSync     bool `mapstructure:"skip_sync"`
}

// varRemapCutover is the version at and after which the newer retain-var
// regime applies by default, mirroring ostree_v2024_3 in
// ostree-ext/src/container/store.rs.
var varRemapCutover = semver.MustParse("2024.3.0")

// UsesLegacyVarRemap reports whether the (year, release) hint predates the
// 2024.3 cutover and therefore should remap var into
// usr/share/factory/var.
func (s StoreConfig) UsesLegacyVarRemap() bool {
	if s.RetainVar {
		return false
	}
	if s.VersionHintYear == 0 {
		return false
	}
	hint, err := semver.NewVersion(versionHintString(s.VersionHintYear, s.VersionHintRelease))
	if err != nil {
		return false
	}
	return hint.LessThan(varRemapCutover)
}

func versionHintString(year, release int) string {
	return strconv.Itoa(year) + "." + strconv.Itoa(release) + ".0"
}
