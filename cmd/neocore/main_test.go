package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "NeocorePluginRootV1") {
		t.Fatalf("expected entry symbol in %q", out)
	}
}

func TestSchemaWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "describe.schema.json")
	if _, err := execute(t, "schema", "describe", "--out", path); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected schema file: %v", err)
	}
}

func TestPluginsReportsEmptyDir(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "plugins", dir)
	if err != nil {
		t.Fatalf("plugins: %v", err)
	}
	if !strings.Contains(out, "0 candidates") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunHonoursFrameLimitFlag(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "neocore.yaml")
	if err := os.WriteFile(cfg, []byte("target_fps: 0\nlogging:\n  level: error\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := execute(t, "run", "--config", cfg, "--no-plugins", "--max-frames", "3", "--watch=false"); err != nil {
		t.Fatalf("run: %v", err)
	}
}
