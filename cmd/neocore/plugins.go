package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"neocore/internal/plugins"
	"neocore/internal/services"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins [dir]",
	Short: "Load every plugin in a directory once and report the result",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listPlugins,
}

func listPlugins(cmd *cobra.Command, args []string) error {
	dir := ""
	if len(args) == 1 {
		dir = args[0]
	} else if cfg, err := loadConfig(cmd); err == nil && cfg.PluginDir != "" {
		dir = cfg.PluginDir
	}
	if dir == "" {
		defaultDir, err := plugins.DefaultDir()
		if err != nil {
			return err
		}
		dir = defaultDir
	}

	host := services.NewHostContext(services.HostOptions{})
	loader := plugins.NewLoader(plugins.Options{})
	report, err := loader.LoadDir(dir, plugins.NewHostAPI(plugins.HostAPIOptions{Host: host}))
	if err != nil {
		return err
	}
	defer loader.Shutdown()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d candidates\n", report.Dir, len(report.Candidates))
	for _, info := range report.Loaded {
		fmt.Fprintf(out, "  loaded  %s %s (%s)\n", info.ID, info.Version, info.Name)
	}
	for _, skipped := range report.Skipped {
		fmt.Fprintf(out, "  skipped %s: %v\n", skipped.Path, skipped)
	}
	for _, id := range host.Services().IDs() {
		fmt.Fprintf(out, "  service %s\n", id)
	}
	return nil
}
