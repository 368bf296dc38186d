package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"neocore/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("expected defaults (-want +got):\n%s", diff)
	}
	if cfg.FixedDT() != time.Second/60 {
		t.Fatalf("expected 60hz fixed step, got %v", cfg.FixedDT())
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neocore.yaml")
	writeFile(t, path, `
fixed_hz: 30
max_catchup_steps: 4
plugin_dir: /opt/plugins
logging:
  level: warn
  sinks: [console, zap]
modules:
  telemetry:
    period_ms: 250
`)
	cfg, err := LoadConfig(path, map[string]string{
		"NEOCORE_MAX_CATCHUP_STEPS": "6",
		"NEOCORE_LOG_LEVEL":         "debug",
		"NEOCORE_CONSOLE_ADDR":      "127.0.0.1:7070",
		"UNRELATED":                 "x",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FixedHz != 30 {
		t.Fatalf("expected file fixed_hz 30, got %d", cfg.FixedHz)
	}
	if cfg.MaxCatchupSteps != 6 {
		t.Fatalf("expected env to override max_catchup_steps, got %d", cfg.MaxCatchupSteps)
	}
	if cfg.Logging.Level != "debug" || cfg.Severity() != logging.SeverityDebug {
		t.Fatalf("expected env log level debug, got %q", cfg.Logging.Level)
	}
	if cfg.ConsoleAddr != "127.0.0.1:7070" {
		t.Fatalf("expected console addr from env, got %q", cfg.ConsoleAddr)
	}
	if diff := cmp.Diff([]string{"console", "zap"}, cfg.Logging.Sinks); diff != "" {
		t.Fatalf("unexpected sinks (-want +got):\n%s", diff)
	}
	node, ok := cfg.Modules["telemetry"]
	if !ok {
		t.Fatalf("expected telemetry module settings")
	}
	var settings struct {
		PeriodMillis int `yaml:"period_ms"`
	}
	if err := node.Decode(&settings); err != nil || settings.PeriodMillis != 250 {
		t.Fatalf("expected period_ms 250, got %d (%v)", settings.PeriodMillis, err)
	}
}

func TestLoadConfigEnvSinkList(t *testing.T) {
	cfg, err := LoadConfig("", map[string]string{
		"NEOCORE_LOG_SINKS":     "console,json",
		"NEOCORE_LOG_JSON_PATH": "/tmp/neocore.ndjson",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"console", "json"}, cfg.Logging.Sinks); diff != "" {
		t.Fatalf("unexpected sinks (-want +got):\n%s", diff)
	}
	routerCfg := cfg.RouterConfig()
	if !routerCfg.HasSink("json") || routerCfg.JSON.FilePath != "/tmp/neocore.ndjson" {
		t.Fatalf("unexpected router config %+v", routerCfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedHz = 0
	cfg.Logging.Level = "loud"
	cfg.Logging.Sinks = []string{"json", "carrier-pigeon"}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"fixed_hz", "loud", "json_path", "carrier-pigeon"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %q, got %v", want, err)
		}
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neocore.yaml")
	writeFile(t, path, "fixed_hz: [nope\n")
	if _, err := LoadConfig(path, map[string]string{}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFramePeriod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetFPS = 0
	if cfg.FramePeriod() != 0 {
		t.Fatalf("expected unpaced loop")
	}
	cfg.TargetFPS = 50
	if cfg.FramePeriod() != 20*time.Millisecond {
		t.Fatalf("expected 20ms period, got %v", cfg.FramePeriod())
	}
}
