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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cowdogmoo/imagecore/pkg/config"
)

func TestRunConfigInitAndGet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	oldForce := configForce
	defer func() { configForce = oldForce }()
	configForce = false

	cfg := &config.Config{}
	cfg.Log.Level = "debug"
	cfg.Log.Format = "color"
	cfg.Store.Path = filepath.Join(tmpDir, "store")
	cfg.Registry.Default = "docker.io"

	cmd := newTestCommandWithConfigValue(cfg)

	if err := runConfigInit(cmd, nil); err != nil {
		t.Fatalf("runConfigInit() error: %v", err)
	}

	configPath, err := config.ConfigFile("config.yaml")
	if err != nil {
		t.Fatalf("config.ConfigFile() error: %v", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("expected config file at %s: %v", configPath, err)
	}

	if err := runConfigGet(cmd, []string{"log.level"}); err != nil {
		t.Fatalf("runConfigGet() error: %v", err)
	}
}

func TestRunConfigInitRefusesOverwriteWithoutForce(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	oldForce := configForce
	defer func() { configForce = oldForce }()
	configForce = false

	cfg := &config.Config{}
	cmd := newTestCommandWithConfigValue(cfg)

	if err := runConfigInit(cmd, nil); err != nil {
		t.Fatalf("first runConfigInit() error: %v", err)
	}
	if err := runConfigInit(cmd, nil); err == nil {
		t.Fatal("expected error on second runConfigInit() without --force")
	}

	configForce = true
	if err := runConfigInit(cmd, nil); err != nil {
		t.Fatalf("runConfigInit() with --force unexpected error: %v", err)
	}
}
