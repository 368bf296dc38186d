package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"neocore/internal/telemetry"
	"neocore/logging"
	loggingSinks "neocore/logging/sinks"
)

// newRouter builds the event router for cfg. The returned closer releases
// files opened for sinks and must run after the router is closed.
func newRouter(cfg Config, clock logging.Clock, stdout io.Writer, fields map[string]any, logger telemetry.Logger) (*logging.Router, func() error, error) {
	routerCfg := cfg.RouterConfig()
	routerCfg.Fields = fields

	var (
		named   []logging.NamedSink
		closers []io.Closer
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}

	for _, name := range routerCfg.EnabledSinks {
		switch name {
		case "console":
			named = append(named, logging.NamedSink{Name: name, Sink: loggingSinks.NewConsoleSink(stdout, routerCfg.Console)})
		case "json":
			if err := os.MkdirAll(filepath.Dir(routerCfg.JSON.FilePath), 0o755); err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("create json log dir: %w", err)
			}
			file, err := os.OpenFile(routerCfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("open json log: %w", err)
			}
			closers = append(closers, file)
			named = append(named, logging.NamedSink{Name: name, Sink: loggingSinks.NewJSON(file, routerCfg.JSON.FlushInterval)})
		case "zap":
			sink, err := loggingSinks.NewZapFromConfig(routerCfg.Zap)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("build zap sink: %w", err)
			}
			named = append(named, logging.NamedSink{Name: name, Sink: sink})
		default:
			logger.Printf("ignoring unknown logging sink %q", name)
		}
	}

	router, err := logging.NewRouter(clock, routerCfg, named)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	return router, closeAll, nil
}
