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
	"context"
	"testing"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/imagecore/pkg/config"
)

func newTestCommandWithConfig(storePath string) *cobra.Command {
	cfg := &config.Config{}
	cfg.Store.Path = storePath
	return newTestCommandWithConfigValue(cfg)
}

func newTestCommandWithConfigValue(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	ctx := context.WithValue(context.Background(), configKey, cfg)
	cmd.SetContext(ctx)
	return cmd
}

func TestRunGC_EmptyStore(t *testing.T) {
	t.Parallel()
	storeDir := t.TempDir()
	cmd := newTestCommandWithConfig(storeDir)

	if err := runGC(cmd, nil); err != nil {
		t.Fatalf("runGC() on an empty store returned error: %v", err)
	}
}
