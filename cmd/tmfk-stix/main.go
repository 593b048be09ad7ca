// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the tmfk-stix CLI.
// Subcommands build STIX bundles from a Threat Matrix for Kubernetes
// checkout (build), inspect the resolved configuration (config) and index
// produced bundles for lookup (index).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the tmfk-stix CLI.
var rootCmd = &cobra.Command{
	Use:   "tmfk-stix",
	Short: "Convert the Threat Matrix for Kubernetes into STIX 2.1 bundles",
	Long: `tmfk-stix reads the tactic, technique and mitigation pages of a Threat
Matrix for Kubernetes checkout, dates every object from git history, and
writes an ATT&CK-style STIX 2.1 bundle per mode.

Two modes are supported: strict tags everything with the tmfk domain, and
attack_compatible tags objects so ATT&CK tooling loads them as enterprise
content.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./tmfk-stix.yaml or ~/.config/tmfk-stix/tmfk-stix.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tmfk-stix")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "tmfk-stix"))
		}
	}

	viper.SetEnvPrefix("TMFK_STIX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
