package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "neocore",
	Short:         "Modular real-time host runtime",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "neocore.yaml", "path to the YAML config file")
	rootCmd.AddCommand(runCmd, pluginsCmd, versionCmd, schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "neocore: %v\n", err)
		os.Exit(1)
	}
}
