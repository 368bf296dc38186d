// Package app wires the engine, the plugin host, the console and the logging
// router into a runnable host process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"neocore/internal/console"
	"neocore/internal/engine"
	telemetrymod "neocore/internal/modules/telemetry"
	"neocore/internal/net/ws"
	"neocore/internal/plugins"
	"neocore/internal/services"
	"neocore/internal/telemetry"
	"neocore/logging"
	"neocore/logging/lifecycle"
)

const shutdownTimeout = 5 * time.Second

// Options carries collaborators that tests replace. Zero values select the
// production defaults.
type Options struct {
	// ConfigPath enables hot reload of the logging level when set.
	ConfigPath string
	Stdout     io.Writer
	Logger     telemetry.Logger
	Clock      logging.Clock
	Opener     plugins.Opener
	// Signals are dispatched to modules as external events.
	Signals <-chan os.Signal
	// Environ replaces the process environment on config reload.
	Environ map[string]string
}

// App is one host process.
type App struct {
	cfg        Config
	opts       Options
	instanceID string
	logger     telemetry.Logger

	router       *logging.Router
	closeLogs    func() error
	metrics      *logging.Metrics
	host         *services.HostContext
	engine       *engine.Engine[Command]
	loader       *plugins.Loader
	pluginReport plugins.LoadReport
	console      *console.Console
	queue        *console.Queue
	stats        *telemetrymod.Module[Command]

	listener net.Listener
	server   *http.Server
}

// New builds and starts every component. A failure tears down what was
// already built.
func New(cfg Config, opts Options) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.New(os.Stderr, "[neocore] ", log.LstdFlags))
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	clock := opts.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}

	a := &App{
		cfg:        cfg,
		opts:       opts,
		instanceID: uuid.NewString(),
		logger:     logger,
		metrics:    &logging.Metrics{},
	}

	a.router, a.closeLogs, err = newRouter(cfg, clock, stdout, map[string]any{"instance": a.instanceID}, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if a.engine != nil {
				a.engine.Shutdown()
			}
			a.closeRouter()
		}
	}()

	a.host = services.NewHostContext(services.HostOptions{
		Clock: clock,
		OnSinkPanic: func(topic string, recovered any) {
			logger.Printf("event sink panicked on %q: %v", topic, recovered)
		},
	})
	a.engine = engine.New(engine.Options[Command]{
		FixedDT:         cfg.FixedDT(),
		MaxCatchupSteps: cfg.MaxCatchupSteps,
		FrameBudget:     time.Duration(cfg.FrameBudgetMillis) * time.Millisecond,
		TimerBudget:     cfg.TimerBudget,
		Clock:           clock,
		Publisher:       a.router,
		Logger:          logger,
		Metrics:         telemetry.WrapMetrics(a.metrics),
		Host:            a.host,
		BusCapacity:     cfg.BusCapacity,
		ModuleSettings:  cfg.Modules,
	})

	a.console = console.New(console.Options{Registry: a.host.Services(), Publisher: a.router})
	a.queue = console.NewQueue(0)
	if err := a.registerBuiltins(); err != nil {
		return nil, err
	}
	if err := a.host.Services().Register(a.hostService()); err != nil {
		return nil, fmt.Errorf("register %s: %w", HostServiceID, err)
	}

	a.stats = telemetrymod.New[Command](telemetrymod.Settings{MaxCatchupSteps: cfg.MaxCatchupSteps})
	modules := []engine.Module[Command]{
		&operatorModule{router: a.router},
		console.NewModule[Command](a.console, a.queue, cfg.ConsolePerFrame),
		a.stats,
	}
	for _, m := range modules {
		if err := a.engine.Register(m); err != nil {
			return nil, fmt.Errorf("register module %s: %w", m.ID(), err)
		}
	}

	if !cfg.DisablePlugins {
		if err := a.loadPlugins(); err != nil {
			return nil, err
		}
	}

	if err := a.engine.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	if cfg.ConsoleAddr != "" {
		ln, err := net.Listen("tcp", cfg.ConsoleAddr)
		if err != nil {
			return nil, fmt.Errorf("listen console %s: %w", cfg.ConsoleAddr, err)
		}
		a.listener = ln
		handler := ws.NewHandler(a.queue, ws.HandlerConfig{Logger: logger})
		a.server = &http.Server{Handler: ws.NewMux(handler), ReadHeaderTimeout: 5 * time.Second}
	}

	lifecycle.EngineStarted(context.Background(), a.router, lifecycle.EngineStartedPayload{
		Modules:  len(a.engine.ModuleIDs()),
		Plugins:  len(a.pluginReport.Loaded),
		Instance: a.instanceID,
	})
	return a, nil
}

func (a *App) loadPlugins() error {
	dir := a.cfg.PluginDir
	if dir == "" {
		defaultDir, err := plugins.DefaultDir()
		if err != nil {
			return err
		}
		dir = defaultDir
	}
	a.loader = plugins.NewLoader(plugins.Options{
		Opener:    a.opts.Opener,
		Publisher: a.router,
		Logger:    a.logger,
		Frame:     a.engine.FrameIndex,
	})
	hostAPI := plugins.NewHostAPI(plugins.HostAPIOptions{
		Host:      a.host,
		Publisher: a.router,
		Logger:    a.logger,
	})
	report, err := a.loader.LoadDir(dir, hostAPI)
	if err != nil {
		return err
	}
	a.pluginReport = report
	a.logger.Printf("plugins: %d loaded, %d skipped from %s", len(report.Loaded), len(report.Skipped), dir)
	return a.engine.SetPlugins(a.loader)
}

func (a *App) registerBuiltins() error {
	builtins := []struct {
		name, help string
		run        console.BuiltinFunc
	}{
		{"loglevel", "Set the logging level: loglevel <debug|info|warn|error>", a.logLevelBuiltin},
		{"emit", "Emit a host event: emit <topic> <payload>", a.emitBuiltin},
	}
	for _, b := range builtins {
		if err := a.console.RegisterBuiltin(b.name, b.help, b.run); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) logLevelBuiltin(args []string, _ string) (string, error) {
	if len(args) < 2 {
		return a.router.MinimumSeverity().String(), nil
	}
	if _, ok := logging.ParseSeverity(args[1]); !ok {
		return "", fmt.Errorf("%w: loglevel <debug|info|warn|error>", console.ErrUsage)
	}
	a.engine.Bus().Send(Command{Kind: CommandLogLevel, Arg: args[1], Source: "console"})
	return "log level change queued", nil
}

func (a *App) emitBuiltin(args []string, raw string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("%w: emit <topic> <payload>", console.ErrUsage)
	}
	_, rest, _ := strings.Cut(strings.TrimSpace(raw), " ")
	a.engine.Bus().Send(Command{Kind: CommandEmit, Arg: strings.TrimSpace(rest), Source: "console"})
	return "event queued", nil
}

// Run drives the platform loop until exit, quit, ctx cancellation or the
// frame limit, then shuts the engine down. Close must still be called.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.loop(gctx)
	})
	if a.server != nil {
		a.logger.Printf("console listening on %s", a.listener.Addr())
		g.Go(func() error {
			if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("console server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return a.server.Shutdown(shutdownCtx)
		})
	}
	if a.opts.ConfigPath != "" {
		watcher := NewConfigWatcher(a.opts.ConfigPath, 0, a.logger, a.onConfigChange)
		watcher.environ = a.opts.Environ
		g.Go(func() error { return watcher.Run(gctx) })
	}

	runErr := g.Wait()
	return errors.Join(runErr, a.engine.Shutdown())
}

func (a *App) loop(ctx context.Context) error {
	var tick <-chan time.Time
	if period := a.cfg.FramePeriod(); period > 0 {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-a.opts.Signals:
			if err := a.engine.DispatchExternalEvent(sig); err != nil {
				return err
			}
		default:
		}

		if _, err := a.engine.Step(); err != nil {
			if errors.Is(err, engine.ErrExitRequested) {
				return nil
			}
			return err
		}
		if limit := a.cfg.MaxFrames; limit > 0 && a.engine.FrameIndex() >= limit {
			return nil
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
	}
}

func (a *App) onConfigChange(cfg Config) {
	if !a.engine.Bus().TrySend(Command{Kind: CommandLogLevel, Arg: cfg.Logging.Level, Source: "config"}) {
		a.logger.Printf("config reload dropped: command bus full")
	}
}

// Close releases the listener, the logging router and its files. It is
// safe to call after a failed or skipped Run.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		if err := a.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if err := a.router.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close logging router: %w", err))
	}
	if a.closeLogs != nil {
		errs = append(errs, a.closeLogs())
	}
	return errors.Join(errs...)
}

func (a *App) closeRouter() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.router.Close(ctx)
	if a.closeLogs != nil {
		a.closeLogs()
	}
}

func (a *App) Config() Config                   { return a.cfg }
func (a *App) InstanceID() string               { return a.instanceID }
func (a *App) Engine() *engine.Engine[Command]  { return a.engine }
func (a *App) Console() *console.Console        { return a.console }
func (a *App) Queue() *console.Queue            { return a.queue }
func (a *App) Router() *logging.Router          { return a.router }
func (a *App) Metrics() *logging.Metrics        { return a.metrics }
func (a *App) PluginReport() plugins.LoadReport { return a.pluginReport }

// ConsoleAddr reports the bound websocket address, or "" when disabled.
func (a *App) ConsoleAddr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}
