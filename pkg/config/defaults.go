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

package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults registers imagecore's default values on v, applied below
// whatever flags, env vars, and config file set, per the
// flags > env > file > defaults precedence.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log.format", "color")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.path", defaultStorePath())
	v.SetDefault("store.retain_var", false)
	v.SetDefault("registry.default", "docker.io")
	v.SetDefault("fetch.require_bootable", false)
	v.SetDefault("fetch.disable_gc", false)
}

func defaultStorePath() string {
	dirs := GetConfigDirs()
	if len(dirs) == 0 {
		return "store"
	}
	return filepath.Join(filepath.Dir(dirs[0]), "imagecore-store")
}

// Load builds a Config from v, which the caller has already wired with
// flags, env bindings, and an optional config file.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
