package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"neocore/internal/app"
)

var runFlags struct {
	pluginDir   string
	noPlugins   bool
	consoleAddr string
	maxFrames   uint64
	logLevel    string
	watch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine until quit or a signal",
	RunE:  runEngine,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.pluginDir, "plugin-dir", "", "plugin directory (default: plugins next to the executable)")
	f.BoolVar(&runFlags.noPlugins, "no-plugins", false, "skip plugin loading")
	f.StringVar(&runFlags.consoleAddr, "console-addr", "", "websocket console listen address")
	f.Uint64Var(&runFlags.maxFrames, "max-frames", 0, "stop after this many frames")
	f.StringVar(&runFlags.logLevel, "log-level", "", "minimum logging severity")
	f.BoolVar(&runFlags.watch, "watch", true, "reload the logging level when the config file changes")
}

// loadConfig applies flags over the file and environment.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	cfg, err := app.LoadConfig(configPath, nil)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("plugin-dir") {
		cfg.PluginDir = runFlags.pluginDir
	}
	if flags.Changed("no-plugins") {
		cfg.DisablePlugins = runFlags.noPlugins
	}
	if flags.Changed("console-addr") {
		cfg.ConsoleAddr = runFlags.consoleAddr
	}
	if flags.Changed("max-frames") {
		cfg.MaxFrames = runFlags.maxFrames
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = runFlags.logLevel
	}
	return cfg, cfg.Validate()
}

func runEngine(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	opts := app.Options{Signals: signals}
	if runFlags.watch {
		if _, err := os.Stat(configPath); err == nil {
			opts.ConfigPath = configPath
		}
	}

	a, err := app.New(cfg, opts)
	if err != nil {
		return err
	}
	runErr := a.Run(cmd.Context())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
