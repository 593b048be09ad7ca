// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/tmfk-stix/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration as YAML",
	Long: `Config prints the configuration build and index would use: built-in
defaults overlaid with the config file, TMFK_STIX_* environment variables
and flags. The output is a valid tmfk-stix.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

// loadConfig resolves the configuration held by v on top of
// types.DefaultConfig. Every default is registered with v so environment
// variables can override keys the config file does not mention.
func loadConfig(v *viper.Viper) (types.Config, error) {
	defaults, err := defaultSettings()
	if err != nil {
		return types.Config{}, err
	}
	for key, value := range defaults {
		setDefaults(v, key, value)
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// defaultSettings renders types.DefaultConfig as the nested map a config
// file would decode to.
func defaultSettings() (map[string]any, error) {
	data, err := yaml.Marshal(types.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("marshaling defaults: %w", err)
	}
	var settings map[string]any
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("decoding defaults: %w", err)
	}
	return settings, nil
}

func setDefaults(v *viper.Viper, key string, value any) {
	if m, ok := value.(map[string]any); ok {
		for k, sub := range m {
			setDefaults(v, key+"."+k, sub)
		}
		return
	}
	v.SetDefault(key, value)
}

func init() {
	rootCmd.AddCommand(configCmd)
}
