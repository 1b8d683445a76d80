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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cowdogmoo/imagecore/pkg/config"
)

func TestGetCommandPath(t *testing.T) {
	t.Parallel()

	t.Run("root command has no path", func(t *testing.T) {
		t.Parallel()
		root := &cobra.Command{Use: "imagecore"}
		if got := getCommandPath(root); got != "" {
			t.Errorf("getCommandPath(root) = %q, want empty", got)
		}
	})

	t.Run("single level subcommand", func(t *testing.T) {
		t.Parallel()
		root := &cobra.Command{Use: "imagecore"}
		compose := &cobra.Command{Use: "compose"}
		root.AddCommand(compose)
		if got := getCommandPath(compose); got != "compose" {
			t.Errorf("getCommandPath(compose) = %q, want %q", got, "compose")
		}
	})

	t.Run("nested subcommand", func(t *testing.T) {
		t.Parallel()
		root := &cobra.Command{Use: "imagecore"}
		cfg := &cobra.Command{Use: "config"}
		set := &cobra.Command{Use: "set"}
		root.AddCommand(cfg)
		cfg.AddCommand(set)
		if got := getCommandPath(set); got != "config.set" {
			t.Errorf("getCommandPath(set) = %q, want %q", got, "config.set")
		}
	})
}

func TestConfigFromContext(t *testing.T) {
	t.Parallel()

	t.Run("no config in context", func(t *testing.T) {
		t.Parallel()
		cmd := &cobra.Command{Use: "test"}
		cmd.SetContext(context.Background())
		if got := configFromContext(cmd); got != nil {
			t.Errorf("configFromContext() = %v, want nil", got)
		}
	})

	t.Run("valid config in context", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{}
		cfg.Log.Level = "debug"
		cmd := &cobra.Command{Use: "test"}
		ctx := context.WithValue(context.Background(), configKey, cfg)
		cmd.SetContext(ctx)
		got := configFromContext(cmd)
		if got == nil {
			t.Fatal("configFromContext() returned nil, want config")
		}
		if got.Log.Level != "debug" {
			t.Errorf("config.Log.Level = %q, want %q", got.Log.Level, "debug")
		}
	})
}

func TestBindFlagsToViper(t *testing.T) {
	t.Parallel()

	t.Run("kebab to snake conversion with namespace", func(t *testing.T) {
		t.Parallel()
		v := viper.New()
		cmd := &cobra.Command{Use: "compose"}
		cmd.Flags().String("oci-layout", ".", "oci layout directory")

		BindFlagsToViper(v, cmd, "compose")

		_ = cmd.Flags().Set("oci-layout", "/tmp/layout")
		if got := v.GetString("compose.oci_layout"); got != "/tmp/layout" {
			t.Errorf("viper key compose.oci_layout = %q, want %q", got, "/tmp/layout")
		}
	})

	t.Run("empty namespace prefix", func(t *testing.T) {
		t.Parallel()
		v := viper.New()
		cmd := &cobra.Command{Use: "root"}
		cmd.Flags().String("log-level", "", "log level")

		BindFlagsToViper(v, cmd, "")

		_ = cmd.Flags().Set("log-level", "debug")
		if got := v.GetString("log_level"); got != "debug" {
			t.Errorf("viper key log_level = %q, want %q", got, "debug")
		}
	})
}

func TestApplyViperOverrides(t *testing.T) {
	t.Parallel()

	t.Run("env overrides unset flag", func(t *testing.T) {
		t.Parallel()
		v := viper.New()
		cmd := &cobra.Command{Use: "compose"}
		root := &cobra.Command{Use: "imagecore"}
		root.AddCommand(cmd)

		cmd.Flags().String("oci-layout", "", "oci layout directory")
		v.Set("compose.oci_layout", "/var/layout")

		ApplyViperOverrides(v, cmd)

		got, _ := cmd.Flags().GetString("oci-layout")
		if got != "/var/layout" {
			t.Errorf("flag oci-layout = %q, want %q", got, "/var/layout")
		}
	})

	t.Run("explicit CLI flag not overridden", func(t *testing.T) {
		t.Parallel()
		v := viper.New()
		cmd := &cobra.Command{Use: "compose"}
		root := &cobra.Command{Use: "imagecore"}
		root.AddCommand(cmd)

		cmd.Flags().String("oci-layout", "", "oci layout directory")
		_ = cmd.Flags().Set("oci-layout", "/explicit/layout")
		v.Set("compose.oci_layout", "/from-env/layout")

		ApplyViperOverrides(v, cmd)

		got, _ := cmd.Flags().GetString("oci-layout")
		if got != "/explicit/layout" {
			t.Errorf("flag oci-layout = %q, want %q (CLI should win)", got, "/explicit/layout")
		}
	})
}

func TestRootCommandHelp(t *testing.T) {
	cmd := rootCmd
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	if err != nil {
		t.Fatalf("root --help returned error: %v", err)
	}

	if !strings.Contains(buf.String(), "imagecore") {
		t.Error("--help output does not contain 'imagecore'")
	}
}

func TestVersionSubcommand(t *testing.T) {
	cmd := rootCmd
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	if err != nil {
		t.Fatalf("version subcommand returned error: %v", err)
	}
}

func TestRootCommandUnknownFlag(t *testing.T) {
	cmd := rootCmd
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--nonexistent-flag"})

	err := cmd.Execute()
	if err == nil {
		t.Error("expected error for unknown flag, got nil")
	}
}

func TestComposeCommandRequiresOCILayout(t *testing.T) {
	cmd := rootCmd
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"compose", "example.com/image:latest"})

	err := cmd.Execute()
	if err == nil {
		t.Error("expected error when compose runs without --oci-layout, got nil")
	}
}

func TestConfigSubcommands(t *testing.T) {
	subcommands := configCmd.Commands()
	names := make(map[string]bool)
	for _, cmd := range subcommands {
		names[cmd.Name()] = true
	}

	expected := []string{"init", "show", "path", "set", "get"}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("missing config subcommand: %s", name)
		}
	}
}
