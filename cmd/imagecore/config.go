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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/imagecore/pkg/config"
	"github.com/cowdogmoo/imagecore/pkg/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage imagecore configuration",
	Long: `Manage imagecore's global configuration file.

The configuration file stores the object store path, default registry,
and the fetch/apply knobs that compose, import, apply, and gc read.

Configuration locations (searched in order):
1. $XDG_CONFIG_HOME/imagecore/config.yaml (typically ~/.config/imagecore/config.yaml)
2. ~/.imagecore/config.yaml (legacy, for backward compatibility)
3. ./config.yaml (current directory)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long: `Create a new configuration file with default values at:
  $XDG_CONFIG_HOME/imagecore/config.yaml

If the file already exists, it will be overwritten only with --force.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, config file, environment variables, and CLI flags.`,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file, using dot notation for nested
keys.

Examples:
  imagecore config set log.level debug
  imagecore config set store.path /var/lib/imagecore/store
  imagecore config set registry.default ghcr.io`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configForce bool

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)

	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, err := config.ConfigFile("config.yaml")
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	ctx := cmd.Context()
	if _, err := os.Stat(configPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
		logging.WarnContext(ctx, "overwriting existing config file at %s", configPath)
	}

	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("config not available in context")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	logging.InfoContext(ctx, "configuration file created at: %s", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("config not available in context")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	fmt.Println("# Current imagecore configuration")
	fmt.Println("# Sources: defaults -> config file -> environment variables -> CLI flags")
	fmt.Println()
	fmt.Print(string(data))

	v := config.NewConfigViper()
	if err := v.ReadInConfig(); err == nil {
		fmt.Printf("\n# Config file: %s\n", v.ConfigFileUsed())
	} else {
		fmt.Println("\n# No config file found (using defaults)")
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	v := config.NewConfigViper()
	if err := v.ReadInConfig(); err == nil {
		fmt.Println(v.ConfigFileUsed())
		return nil
	}

	defaultPath, err := config.ConfigFile("config.yaml")
	if err != nil {
		return fmt.Errorf("resolve default config path: %w", err)
	}
	fmt.Printf("%s (not created yet)\n", defaultPath)
	logging.InfoContext(cmd.Context(), "run 'imagecore config init' to create the config file")
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	ctx := cmd.Context()

	v := config.NewConfigViper()
	var configPath string
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) || v.ConfigFileUsed() == "" {
			logging.WarnContext(ctx, "config file doesn't exist, creating it now")
			if err := runConfigInit(cmd, nil); err != nil {
				return err
			}
			var pathErr error
			configPath, pathErr = config.ConfigFile("config.yaml")
			if pathErr != nil {
				return fmt.Errorf("resolve config path: %w", pathErr)
			}
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read newly created config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		configPath = v.ConfigFileUsed()
	}

	v.Set(key, value)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	logging.InfoContext(ctx, "set %s = %s", key, value)
	logging.InfoContext(ctx, "config file updated: %s", configPath)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("config not available in context")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	value := v.Get(key)
	if value == nil {
		return fmt.Errorf("key not found: %s", key)
	}
	fmt.Println(value)
	return nil
}
