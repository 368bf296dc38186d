package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"neocore/pkg/pluginapi"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the host and plugin contract versions",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "neocore %s (plugin contract v%d, entry %s)\n", version, pluginapi.ContractVersion, pluginapi.EntrySymbol)
	},
}
