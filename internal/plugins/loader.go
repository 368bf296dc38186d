// Package plugins discovers Go plugins in a directory, resolves their entry
// symbol and drives them through the same phases as in-process modules.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"neocore/internal/telemetry"
	"neocore/logging"
	pluginlog "neocore/logging/plugins"
	"neocore/pkg/pluginapi"
)

var libraryExtensions = map[string]struct{}{
	".so":    {},
	".dylib": {},
	".dll":   {},
}

// LoadedPlugin is a plugin that passed Init. The library handle stays
// referenced until Shutdown.
type LoadedPlugin struct {
	Path    string
	Library Library
	Root    pluginapi.RootV1
	Module  pluginapi.Module
	Info    pluginapi.Info
	State   State
}

// Status is a read-only view of a loaded plugin.
type Status struct {
	Path  string         `json:"path"`
	Info  pluginapi.Info `json:"info"`
	State string         `json:"state"`
}

// LoadReport summarises one directory scan.
type LoadReport struct {
	Dir        string
	Candidates []string
	Loaded     []pluginapi.Info
	Skipped    []*LoadError
}

// Options configures a Loader. Zero values select defaults.
type Options struct {
	Opener    Opener
	Publisher logging.Publisher
	Logger    telemetry.Logger
	// Frame reports the current frame index for phase failure events.
	Frame func() uint64
}

// Loader owns loaded plugins in load order.
type Loader struct {
	ctx       context.Context
	opener    Opener
	publisher logging.Publisher
	logger    telemetry.Logger
	frame     func() uint64

	plugins []*LoadedPlugin
	ids     map[string]struct{}
	started bool
}

// NewLoader constructs an empty loader.
func NewLoader(opts Options) *Loader {
	opener := opts.Opener
	if opener == nil {
		opener = GoPluginOpener{}
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(nil)
	}
	frame := opts.Frame
	if frame == nil {
		frame = func() uint64 { return 0 }
	}
	return &Loader{
		ctx:       context.Background(),
		opener:    opener,
		publisher: publisher,
		logger:    logger,
		frame:     frame,
		ids:       make(map[string]struct{}),
	}
}

// DefaultDir is the plugins directory next to the running executable.
func DefaultDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("plugins: locate executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "plugins"), nil
}

// Candidates lists dynamic libraries in dir, sorted. Extensions match
// case-insensitively.
func Candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("plugins: read dir %q: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := libraryExtensions[ext]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadDir scans dir once, creating it if missing. Rejected candidates are
// logged and reported; only directory failures return an error.
func (l *Loader) LoadDir(dir string, host pluginapi.HostAPIV1) (LoadReport, error) {
	report := LoadReport{Dir: dir}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return report, fmt.Errorf("plugins: create dir %q: %w", dir, err)
	}
	paths, err := Candidates(dir)
	if err != nil {
		return report, err
	}
	report.Candidates = paths
	pluginlog.Scan(l.ctx, l.publisher, pluginlog.ScanPayload{Dir: dir, Candidates: len(paths)})

	for _, path := range paths {
		loaded, loadErr := l.load(path, host)
		if loadErr != nil {
			report.Skipped = append(report.Skipped, loadErr)
			l.logger.Printf("[plugins] skip %v", loadErr)
			pluginlog.Skipped(l.ctx, l.publisher, loadErr.PluginID, pluginlog.SkippedPayload{
				Path:   path,
				Reason: string(loadErr.Stage),
				Error:  loadErr.Err.Error(),
			})
			continue
		}
		l.plugins = append(l.plugins, loaded)
		l.ids[loaded.Info.ID] = struct{}{}
		report.Loaded = append(report.Loaded, loaded.Info)
		pluginlog.Loaded(l.ctx, l.publisher, loaded.Info.ID, pluginlog.LoadedPayload{
			Path:    path,
			Name:    loaded.Info.Name,
			Version: loaded.Info.Version,
		})
	}

	pluginlog.Summary(l.ctx, l.publisher, pluginlog.SummaryPayload{
		Dir:     dir,
		Loaded:  len(report.Loaded),
		Skipped: len(report.Skipped),
	})
	return report, nil
}

func (l *Loader) load(path string, host pluginapi.HostAPIV1) (*LoadedPlugin, *LoadError) {
	lib, err := l.opener.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Stage: StageOpen, Err: err}
	}
	root, err := lookupRoot(lib)
	if err != nil {
		return nil, &LoadError{Path: path, Stage: StageSymbol, Err: err}
	}
	module, err := create(root)
	if err != nil {
		return nil, &LoadError{Path: path, Stage: StageCreate, Err: err}
	}
	info := module.Info()
	if info.ID == "" {
		return nil, &LoadError{Path: path, Stage: StageCreate, Err: errors.New("plugin reported an empty id")}
	}
	if _, exists := l.ids[info.ID]; exists {
		return nil, &LoadError{Path: path, PluginID: info.ID, Stage: StageDuplicate, Err: fmt.Errorf("plugin id %q already loaded", info.ID)}
	}
	if err := guard(func() error { return module.Init(host) }); err != nil {
		return nil, &LoadError{Path: path, PluginID: info.ID, Stage: StageInit, Err: err}
	}
	return &LoadedPlugin{
		Path:    path,
		Library: lib,
		Root:    root,
		Module:  module,
		Info:    info,
		State:   StateInitialized,
	}, nil
}

func lookupRoot(lib Library) (pluginapi.RootV1, error) {
	var errs []error
	for _, name := range []string{pluginapi.EntrySymbol, pluginapi.LegacyEntrySymbol} {
		sym, err := lib.Lookup(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		root, err := resolveRoot(sym)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		return root, nil
	}
	return pluginapi.RootV1{}, fmt.Errorf("%w: %s or %s: %v", ErrMissingEntry, pluginapi.EntrySymbol, pluginapi.LegacyEntrySymbol, errors.Join(errs...))
}

func create(root pluginapi.RootV1) (module pluginapi.Module, err error) {
	err = guard(func() error {
		module = root.Create()
		if module == nil {
			return errors.New("Create returned nil")
		}
		return nil
	})
	return module, err
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// StartAll starts plugins in load order. It is idempotent.
func (l *Loader) StartAll() error {
	if l.started {
		return nil
	}
	for _, p := range l.plugins {
		if err := l.phase(p, "start", p.Module.Start); err != nil {
			return err
		}
		p.State = StateStarted
	}
	l.started = true
	return nil
}

func (l *Loader) FixedUpdateAll(dt float64) error {
	return l.each("fixed_update", func(m pluginapi.Module) error { return m.FixedUpdate(dt) })
}

func (l *Loader) UpdateAll(dt float64) error {
	return l.each("update", func(m pluginapi.Module) error { return m.Update(dt) })
}

func (l *Loader) RenderAll(dt float64) error {
	return l.each("render", func(m pluginapi.Module) error { return m.Render(dt) })
}

func (l *Loader) each(phase string, fn func(pluginapi.Module) error) error {
	for _, p := range l.plugins {
		if err := l.phase(p, phase, func() error { return fn(p.Module) }); err != nil {
			return err
		}
		if p.State == StateStarted {
			p.State = StateRunning
		}
	}
	return nil
}

func (l *Loader) phase(p *LoadedPlugin, phase string, fn func() error) error {
	err := guard(fn)
	if err == nil {
		return nil
	}
	pluginlog.PhaseFailed(l.ctx, l.publisher, l.frame(), p.Info.ID, pluginlog.PhaseFailedPayload{
		Phase: phase,
		Error: err.Error(),
	})
	return &PhaseError{PluginID: p.Info.ID, Phase: phase, Err: err}
}

// Shutdown stops every plugin in reverse load order, even when one panics,
// and releases the loader's references.
func (l *Loader) Shutdown() error {
	var errs []error
	for i := len(l.plugins) - 1; i >= 0; i-- {
		p := l.plugins[i]
		err := guard(func() error {
			p.Module.Shutdown()
			return nil
		})
		p.State = StateShutDown
		if err != nil {
			l.logger.Printf("[plugins] shutdown %s: %v", p.Info.ID, err)
			errs = append(errs, &PhaseError{PluginID: p.Info.ID, Phase: "shutdown", Err: err})
		}
	}
	l.plugins = nil
	l.ids = make(map[string]struct{})
	l.started = false
	return errors.Join(errs...)
}

// Len reports how many plugins are loaded.
func (l *Loader) Len() int { return len(l.plugins) }

// Statuses lists loaded plugins in load order.
func (l *Loader) Statuses() []Status {
	out := make([]Status, len(l.plugins))
	for i, p := range l.plugins {
		out[i] = Status{Path: p.Path, Info: p.Info, State: p.State.String()}
	}
	return out
}
