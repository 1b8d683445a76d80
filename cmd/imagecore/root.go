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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cowdogmoo/imagecore/pkg/config"
	"github.com/cowdogmoo/imagecore/pkg/logging"
	"github.com/cowdogmoo/imagecore/pkg/pathexpand"
)

// configKeyType is the context key type for storing the resolved config.
type configKeyType struct{}

var configKey = configKeyType{}

var (
	cfgFile       string
	storePathFlag string
	registryFlag  string
	version       = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "imagecore",
	Short: "imagecore - transactional, content-addressed OS image management",
	Long: `imagecore manages OS images as layered, content-addressed commits: it
imports tar streams of objects into a store, composes a base commit with
derived OCI layers into a single merge commit, and applies the resulting
filesystem diff onto a live root.

Configuration precedence (highest to lowest):
  1. CLI flags (--log-level, --store, --registry, etc.)
  2. Environment variables (IMAGECORE_LOG_LEVEL, IMAGECORE_STORE_PATH, etc.)
  3. Configuration file (~/.config/imagecore/config.yaml or ~/.imagecore/config.yaml)
  4. Built-in defaults

To initialize a config file with defaults: imagecore config init
To show current configuration: imagecore config show`,
	Version:           version,
	Args:              cobra.NoArgs,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is $HOME/.config/imagecore/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json, color)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Quiet mode - only show errors")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose mode - show debug output")
	rootCmd.PersistentFlags().StringVarP(&storePathFlag, "store", "s", "", "Object store root directory")
	rootCmd.PersistentFlags().StringVar(&registryFlag, "registry", "", "Default registry host for unqualified image references")

	registerRootCompletions(rootCmd)

	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// registerRootCompletions registers dynamic shell completion functions for
// root command flags.
func registerRootCompletions(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"debug\tShow all messages including debug",
			"info\tShow info, warn, and error messages (default)",
			"warn\tShow only warnings and errors",
			"error\tShow only errors",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	_ = cmd.RegisterFlagCompletionFunc("log-format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"color\tColorized text output (default)",
			"text\tPlain text output",
			"json\tJSON structured output",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// configFromContext retrieves the resolved config from the command context.
func configFromContext(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	return nil
}

// initConfig resolves the layered configuration (flags > env > config file
// > defaults) and initializes the global logger, per cobra's
// PersistentPreRunE hook.
func initConfig(cmd *cobra.Command, args []string) error {
	v := config.NewConfigViper()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: failed to read config file: %v\n", err)
		}
	}

	v.SetEnvPrefix("IMAGECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flagName := range map[string]string{
		"log.level":        "log-level",
		"log.format":       "log-format",
		"quiet":            "quiet",
		"verbose":          "verbose",
		"store.path":       "store",
		"registry.default": "registry",
	} {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flagName)); err != nil {
			return fmt.Errorf("bind %s flag: %w", flagName, err)
		}
	}

	BindCommandFlagsToViper(v, cmd)
	ApplyViperOverrides(v, cmd)

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if expanded, err := pathexpand.ExpandPath(cfg.Store.Path); err == nil {
		cfg.Store.Path = expanded
	}

	if err := logging.Initialize(cfg.Log.Level, cfg.Log.Format, v.GetBool("quiet"), v.GetBool("verbose")); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	ctx := context.WithValue(cmd.Context(), configKey, &cfg)
	cmd.SetContext(ctx)
	return nil
}

// Execute invokes the top-level cobra command and returns any error.
func Execute() error {
	return rootCmd.Execute()
}

// BindFlagsToViper binds all flags from a command to a Viper instance,
// namespaced under viperKey (empty for no prefix).
func BindFlagsToViper(v *viper.Viper, cmd *cobra.Command, viperKey string) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if viperKey != "" {
			key = viperKey + "." + key
		}
		if err := v.BindPFlag(key, f); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to bind flag %s to viper: %v\n", f.Name, err)
		}
	})
}

// BindCommandFlagsToViper binds flags from the current command and its
// parent persistent flags to Viper, so every knob follows the
// flags > env > file > defaults precedence.
func BindCommandFlagsToViper(v *viper.Viper, cmd *cobra.Command) {
	cmdPath := getCommandPath(cmd)
	BindFlagsToViper(v, cmd, cmdPath)

	nestedKeyMap := map[string]string{
		"registry": "registry.default",
		"store":    "store.path",
	}

	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if mappedKey, ok := nestedKeyMap[key]; ok {
			key = mappedKey
		}
		if err := v.BindPFlag(key, f); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to bind inherited flag %s to viper: %v\n", f.Name, err)
		}
	})
}

// getCommandPath returns the command path for Viper key namespacing, e.g.
// "imagecore compose" -> "compose".
func getCommandPath(cmd *cobra.Command) string {
	var parts []string
	current := cmd
	for current != nil && current.Parent() != nil {
		parts = append([]string{current.Name()}, parts...)
		current = current.Parent()
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ".")
}

// ApplyViperOverrides pushes Viper values (from env vars or config file)
// back into Cobra flags that were not explicitly set on the command line.
func ApplyViperOverrides(v *viper.Viper, cmd *cobra.Command) {
	cmdPath := getCommandPath(cmd)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if cmdPath != "" {
			key = cmdPath + "." + key
		}
		if v.IsSet(key) {
			_ = cmd.Flags().Set(f.Name, v.GetString(key))
		}
	})
}
