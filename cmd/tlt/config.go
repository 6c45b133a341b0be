package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maintenance",
	Short:   "Show effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration the engine would run with: file values from
$TLT_HOME/config.yaml, TLT_* environment overrides, and defaults for
everything else. The API key is redacted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if cfg.Remote.APIKey != "" {
			cfg.Remote.APIKey = "<redacted>"
		}

		fmt.Printf("# %s/config.yaml (effective)\n", cfg.Home)
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
