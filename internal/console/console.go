// Package console implements the host command console: builtin commands,
// commands discovered from service descriptions, and the engine.command
// service that exposes the console to plugins and remote clients.
package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"neocore/internal/services"
	"neocore/logging"
)

const (
	DefaultHistorySize = 256
	DefaultOutputSize  = 2048
	maxAliasDepth      = 8
)

var (
	ErrUnknownCommand = errors.New("console: unknown command")
	ErrUsage          = errors.New("console: usage")
	ErrAliasDepth     = errors.New("console: alias expansion too deep")
	ErrBuiltinExists  = errors.New("console: builtin already registered")
)

// ExecResponse is the result of one command line.
type ExecResponse struct {
	OK     bool   `json:"ok"`
	Output string `json:"output"`
	Error  string `json:"error"`
}

// BuiltinFunc runs a builtin. args[0] is the command name; raw is the
// trimmed line.
type BuiltinFunc func(args []string, raw string) (string, error)

type builtin struct {
	help string
	run  BuiltinFunc
}

// Options configures a Console.
type Options struct {
	Registry    *services.Registry
	Publisher   logging.Publisher
	HistorySize int
	OutputSize  int
}

// Console is safe for concurrent use, though commands normally run on the
// engine goroutine via Module.
type Console struct {
	ctx       context.Context
	registry  *services.Registry
	publisher logging.Publisher
	builtins  map[string]builtin

	exitRequested atomic.Bool

	logMu   sync.Mutex
	history *ring[string]
	output  *ring[string]

	dynMu     sync.Mutex
	dynamic   map[string]dynamicCommand
	cachedGen uint64
}

// New constructs a console with the standard builtins.
func New(opts Options) *Console {
	registry := opts.Registry
	if registry == nil {
		registry = services.NewRegistry()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	outputSize := opts.OutputSize
	if outputSize <= 0 {
		outputSize = DefaultOutputSize
	}
	c := &Console{
		ctx:       context.Background(),
		registry:  registry,
		publisher: publisher,
		builtins:  make(map[string]builtin),
		history:   newRing[string](historySize),
		output:    newRing[string](outputSize),
		dynamic:   make(map[string]dynamicCommand),
	}
	c.registerStandardBuiltins()
	return c
}

func (c *Console) registerStandardBuiltins() {
	c.builtins["help"] = builtin{help: "List available commands", run: c.help}
	c.builtins["services"] = builtin{help: "List registered service ids", run: func([]string, string) (string, error) {
		return strings.Join(c.registry.IDs(), "\n"), nil
	}}
	c.builtins["describe"] = builtin{help: "Print a service description: describe <service_id>", run: func(args []string, _ string) (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("%w: describe <service_id>", ErrUsage)
		}
		desc, ok := c.registry.Describe(args[1])
		if !ok {
			return "", fmt.Errorf("service not found: %s", args[1])
		}
		return desc, nil
	}}
	c.builtins["call"] = builtin{help: "Call a service: call <service_id> <method> <payload>", run: func(args []string, raw string) (string, error) {
		if len(args) < 3 {
			return "", fmt.Errorf("%w: call <service_id> <method> <payload>", ErrUsage)
		}
		out, err := c.registry.Call(args[1], args[2], []byte(tail(raw, 3)))
		if err != nil {
			return "", err
		}
		return string(out), nil
	}}
	c.builtins["refresh"] = builtin{help: "Force refresh of service commands", run: func([]string, string) (string, error) {
		c.Refresh()
		return "refreshed", nil
	}}
	c.builtins["quit"] = builtin{help: "Request engine exit", run: func([]string, string) (string, error) {
		c.exitRequested.Store(true)
		return "exit requested", nil
	}}
}

// RegisterBuiltin adds a host-provided builtin. Builtins shadow service
// commands of the same name. Register builtins before the console is shared.
func (c *Console) RegisterBuiltin(name, help string, run BuiltinFunc) error {
	name = strings.TrimSpace(name)
	if name == "" || run == nil {
		return fmt.Errorf("%w: invalid builtin", ErrUsage)
	}
	if _, exists := c.builtins[name]; exists {
		return fmt.Errorf("%w: %s", ErrBuiltinExists, name)
	}
	c.builtins[name] = builtin{help: help, run: run}
	return nil
}

// Exec runs one command line.
func (c *Console) Exec(line string) ExecResponse {
	return c.exec(line, 0)
}

func (c *Console) exec(line string, depth int) ExecResponse {
	c.RefreshIfNeeded()
	raw := strings.TrimSpace(line)
	if raw == "" {
		return ExecResponse{OK: true}
	}
	if depth == 0 {
		c.pushHistory(raw)
	}
	args := strings.Fields(raw)

	var (
		out string
		err error
	)
	if b, ok := c.builtins[args[0]]; ok {
		out, err = b.run(args, raw)
	} else {
		out, err = c.execDynamic(args[0], raw, depth)
	}
	if depth > 0 {
		if err != nil {
			return ExecResponse{Error: err.Error()}
		}
		return ExecResponse{OK: true, Output: out}
	}
	if err != nil {
		c.pushOutput("ERR: " + err.Error())
		c.publishCommand(raw, err)
		return ExecResponse{Error: err.Error()}
	}
	if out != "" {
		for _, l := range strings.Split(out, "\n") {
			c.pushOutput(l)
		}
	}
	c.publishCommand(raw, nil)
	return ExecResponse{OK: true, Output: out}
}

func (c *Console) execDynamic(name, raw string, depth int) (string, error) {
	c.dynMu.Lock()
	cmd, ok := c.dynamic[name]
	c.dynMu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s (try: help)", ErrUnknownCommand, name)
	}
	switch cmd.doc.Kind {
	case services.KindAlias:
		if depth >= maxAliasDepth {
			return "", fmt.Errorf("%w: %s", ErrAliasDepth, name)
		}
		expanded := cmd.doc.Expand
		if rest := tail(raw, 1); rest != "" {
			expanded += " " + rest
		}
		resp := c.exec(expanded, depth+1)
		if !resp.OK {
			return "", errors.New(resp.Error)
		}
		return resp.Output, nil
	default:
		var payload []byte
		if cmd.doc.Payload != services.PayloadEmpty {
			payload = []byte(tail(raw, 1))
		}
		out, err := c.registry.Call(cmd.doc.ServiceID, cmd.doc.Method, payload)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

func (c *Console) help([]string, string) (string, error) {
	c.RefreshIfNeeded()
	lines := []string{"=== builtin ==="}
	names := make([]string, 0, len(c.builtins))
	for name := range c.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s - %s", name, c.builtins[name].help))
	}
	if dyn := c.dynamicLines(); len(dyn) > 0 {
		lines = append(lines, "=== services ===")
		lines = append(lines, dyn...)
	}
	return strings.Join(lines, "\n"), nil
}

// Commands lists every builtin and discovered command, sorted.
func (c *Console) Commands() []string {
	return c.Complete("")
}

// Complete lists commands starting with prefix, sorted.
func (c *Console) Complete(prefix string) []string {
	c.RefreshIfNeeded()
	prefix = strings.TrimSpace(prefix)
	seen := make(map[string]struct{})
	for name := range c.builtins {
		if strings.HasPrefix(name, prefix) {
			seen[name] = struct{}{}
		}
	}
	c.dynMu.Lock()
	for name := range c.dynamic {
		if strings.HasPrefix(name, prefix) {
			seen[name] = struct{}{}
		}
	}
	c.dynMu.Unlock()
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TakeExitRequested reports and clears a pending quit.
func (c *Console) TakeExitRequested() bool {
	return c.exitRequested.Swap(false)
}

// History lists recent non-empty lines, oldest first.
func (c *Console) History() []string {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	return c.history.snapshot()
}

// DrainOutput returns and clears buffered output lines.
func (c *Console) DrainOutput() []string {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	return c.output.drain()
}

func (c *Console) pushHistory(line string) {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	c.history.push(line)
}

func (c *Console) pushOutput(line string) {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	c.output.push(line)
}

func (c *Console) publishCommand(line string, err error) {
	event := logging.Event{
		Type:     EventCommand,
		Source:   logging.SourceRef{ID: "console", Kind: logging.SourceKindConsole},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryConsole,
		Message:  line,
	}
	if err != nil {
		event.Severity = logging.SeverityWarn
		event.Payload = map[string]string{"error": err.Error()}
	}
	c.publisher.Publish(c.ctx, event)
}

// EventCommand is published for every executed line.
const EventCommand logging.EventType = "console.command"

// tail returns raw with its first n whitespace-separated fields removed.
func tail(raw string, n int) string {
	rest := strings.TrimLeft(raw, " \t")
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimLeft(rest[idx:], " \t")
	}
	return rest
}
