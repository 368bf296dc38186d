package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"neocore/internal/plugins"
	"neocore/internal/services"
	"neocore/internal/telemetry"
	"neocore/logging"
	"neocore/pkg/pluginapi"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// syncBuffer guards console sink output written from router workers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetFPS = 0
	cfg.DisablePlugins = true
	return cfg
}

func newTestApp(t *testing.T, cfg Config, opts Options) *App {
	t.Helper()
	if opts.Stdout == nil {
		opts.Stdout = &syncBuffer{}
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.LoggerFunc(t.Logf)
	}
	a, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return a
}

func runAsync(a *App) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return")
	}
}

func TestRunStopsAtFrameLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFrames = 5
	a := newTestApp(t, cfg, Options{})
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := a.Engine().FrameIndex(); got != 5 {
		t.Fatalf("expected 5 frames, got %d", got)
	}
	if order := strings.Join(a.Engine().ModuleIDs(), ","); order != "operator,console,telemetry" {
		t.Fatalf("unexpected module order %q", order)
	}
	if _, ok := a.host.Services().Lookup("engine.command"); ok {
		t.Fatalf("expected command service removed at shutdown")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	cfg.TargetFPS = 200
	a := newTestApp(t, cfg, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	waitRun(t, done)
}

func TestQuitThroughQueue(t *testing.T) {
	cfg := testConfig()
	cfg.TargetFPS = 500
	a := newTestApp(t, cfg, Options{})
	done := runAsync(a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := a.Queue().Submit(ctx, "quit")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.OK {
		t.Fatalf("unexpected response %+v", resp)
	}
	waitRun(t, done)
	if !a.Engine().ExitRequested() {
		t.Fatalf("expected exit flag")
	}
}

func TestSignalRequestsExit(t *testing.T) {
	signals := make(chan os.Signal, 1)
	cfg := testConfig()
	cfg.TargetFPS = 500
	a := newTestApp(t, cfg, Options{Signals: signals})
	done := runAsync(a)
	signals <- os.Interrupt
	waitRun(t, done)
	if !a.Engine().ExitRequested() {
		t.Fatalf("expected signal to request exit")
	}
}

func TestLogLevelBuiltinAppliesThroughBus(t *testing.T) {
	a := newTestApp(t, testConfig(), Options{})
	if got := a.Router().MinimumSeverity(); got != logging.SeverityInfo {
		t.Fatalf("expected info, got %s", got)
	}
	resp := a.Console().Exec("loglevel debug")
	if !resp.OK {
		t.Fatalf("unexpected response %+v", resp)
	}
	if a.Engine().Bus().Len() != 1 {
		t.Fatalf("expected one queued command, got %d", a.Engine().Bus().Len())
	}
	if _, err := a.Engine().Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := a.Router().MinimumSeverity(); got != logging.SeverityDebug {
		t.Fatalf("expected debug after step, got %s", got)
	}
	if owner := a.Engine().Bus().Owner(); owner != operatorModuleID {
		t.Fatalf("expected operator to own the bus, got %q", owner)
	}
	if resp := a.Console().Exec("loglevel loud"); resp.OK {
		t.Fatalf("expected usage error, got %+v", resp)
	}
	if resp := a.Console().Exec("loglevel"); resp.Output != "debug" {
		t.Fatalf("expected current level, got %+v", resp)
	}
	if err := a.Engine().Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestEmitBuiltinReachesSubscribers(t *testing.T) {
	a := newTestApp(t, testConfig(), Options{})
	var got []string
	err := a.host.Events().Subscribe(pluginapi.EventSinkFunc(func(topic string, payload []byte) {
		got = append(got, topic+"="+string(payload))
	}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if resp := a.Console().Exec("emit demo.ping  hello there"); !resp.OK {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, err := a.Engine().Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(got) != 1 || got[0] != "demo.ping=hello there" {
		t.Fatalf("unexpected deliveries %v", got)
	}
	if err := a.Engine().Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestHostServiceCommandsAreDiscovered(t *testing.T) {
	a := newTestApp(t, testConfig(), Options{})
	if _, err := a.Engine().Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	resp := a.Console().Exec("stats")
	if !resp.OK {
		t.Fatalf("unexpected response %+v", resp)
	}
	var decoded struct {
		Instance string `json:"instance"`
		Frame    uint64 `json:"frame"`
	}
	if err := json.Unmarshal([]byte(resp.Output), &decoded); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if decoded.Instance != a.InstanceID() || decoded.Frame != 1 {
		t.Fatalf("unexpected stats %+v", decoded)
	}
	if resp := a.Console().Exec("plugins"); resp.Output != "plugins disabled" {
		t.Fatalf("unexpected plugins output %+v", resp)
	}
	if resp := a.Console().Exec("call " + HostServiceID + " plugins"); resp.Output != "plugins disabled" {
		t.Fatalf("unexpected direct call output %+v", resp)
	}
	help := a.Console().Exec("help").Output
	for _, want := range []string{"stats - Show frame", "plugins - List loaded plugins (" + HostServiceID + ")"} {
		if !strings.Contains(help, want) {
			t.Fatalf("expected help to contain %q, got:\n%s", want, help)
		}
	}
	if err := a.Engine().Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

type fakeLibrary struct {
	root func() pluginapi.RootV1
}

func (l fakeLibrary) Lookup(symbol string) (any, error) {
	if symbol != pluginapi.EntrySymbol {
		return nil, fmt.Errorf("symbol %s not found", symbol)
	}
	return l.root, nil
}

type greeterPlugin struct {
	pluginapi.Base
	updates int
}

func (p *greeterPlugin) Info() pluginapi.Info {
	return pluginapi.Info{ID: "greeter", Name: "Greeter", Version: "1.0.0"}
}

func (p *greeterPlugin) Init(host pluginapi.HostAPIV1) error {
	table := services.NewMethodTable("greeter.svc", 1).
		Handle(services.MethodDoc{Name: "greet", Payload: "utf8 name", Returns: "utf8"}, func(payload []byte) ([]byte, error) {
			return []byte("hello " + string(payload)), nil
		}).
		Command(services.CommandDoc{Name: "greet", Help: "say hello", Method: "greet"})
	return host.RegisterService(table)
}

func (p *greeterPlugin) Update(float64) error {
	p.updates++
	return nil
}

func TestPluginsLoadedAndCommandsDiscovered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "greeter.so"), "")
	writeFile(t, filepath.Join(dir, "notes.txt"), "")

	plugin := &greeterPlugin{}
	opener := plugins.OpenerFunc(func(path string) (plugins.Library, error) {
		return fakeLibrary{root: func() pluginapi.RootV1 {
			return pluginapi.RootV1{Create: func() pluginapi.Module { return plugin }}
		}}, nil
	})

	cfg := testConfig()
	cfg.DisablePlugins = false
	cfg.PluginDir = dir
	cfg.MaxFrames = 3
	a := newTestApp(t, cfg, Options{Opener: opener})

	report := a.PluginReport()
	if len(report.Loaded) != 1 || report.Loaded[0].ID != "greeter" {
		t.Fatalf("unexpected report %+v", report)
	}
	if resp := a.Console().Exec("greet bob"); resp.Output != "hello bob" {
		t.Fatalf("unexpected greet response %+v", resp)
	}
	if resp := a.Console().Exec("plugins"); !strings.HasPrefix(resp.Output, "greeter 1.0.0 (started)") {
		t.Fatalf("unexpected plugins output %q", resp.Output)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if plugin.updates != 3 {
		t.Fatalf("expected 3 plugin updates, got %d", plugin.updates)
	}
}

func TestRemoteConsole(t *testing.T) {
	cfg := testConfig()
	cfg.TargetFPS = 500
	cfg.ConsoleAddr = "127.0.0.1:0"
	a := newTestApp(t, cfg, Options{})
	if a.ConsoleAddr() == "" {
		t.Fatalf("expected bound console address")
	}
	done := runAsync(a)

	u := url.URL{Scheme: "ws", Host: a.ConsoleAddr(), Path: "/console"}
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	send := func(line string) map[string]any {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var reply map[string]any
		if err := json.Unmarshal(payload, &reply); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return reply
	}

	if reply := send("services"); reply["ok"] != true || reply["output"] != "engine.command" {
		t.Fatalf("unexpected services reply %v", reply)
	}
	if reply := send("quit"); reply["ok"] != true {
		t.Fatalf("unexpected quit reply %v", reply)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitRun(t, done)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.FixedHz = 0
	if _, err := New(cfg, Options{Stdout: &syncBuffer{}}); err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestNewCleansUpWhenPluginDirUnusable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	writeFile(t, file, "")
	cfg := testConfig()
	cfg.DisablePlugins = false
	cfg.PluginDir = filepath.Join(file, "plugins")
	_, err := New(cfg, Options{Stdout: &syncBuffer{}, Logger: telemetry.LoggerFunc(t.Logf)})
	if err == nil {
		t.Fatalf("expected plugin dir error")
	}
}

func TestJSONSinkWritesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.ndjson")
	cfg := testConfig()
	cfg.MaxFrames = 1
	cfg.Logging.Sinks = []string{"json"}
	cfg.Logging.JSONPath = path
	a, err := New(cfg, Options{Logger: telemetry.LoggerFunc(t.Logf)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "lifecycle.engine_started") || !strings.Contains(string(data), a.InstanceID()) {
		t.Fatalf("expected engine start event with instance id, got %s", data)
	}
}
