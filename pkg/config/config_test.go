// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jllopis/allot/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Solver.Timeout != 30*time.Second {
		t.Errorf("expected default solver timeout 30s, got %s", cfg.Solver.Timeout)
	}
	if cfg.Reference.DefaultCapacity != 4 {
		t.Errorf("expected default capacity 4, got %d", cfg.Reference.DefaultCapacity)
	}
	if cfg.Session.Backend != "memory" {
		t.Errorf("expected memory sessions, got %s", cfg.Session.Backend)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("expected telemetry exporter none, got %s", cfg.Telemetry.Exporter)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Errorf("expected CORS to allow any origin by default, got %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ALLOT_SOLVER_TIMEOUT", "5s")
	t.Setenv("ALLOT_SOLVER_NODE_LIMIT", "250")
	t.Setenv("ALLOT_REFERENCE_DEFAULT_CAPACITY", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Solver.Timeout != 5*time.Second {
		t.Errorf("expected timeout from env, got %s", cfg.Solver.Timeout)
	}
	if cfg.Solver.NodeLimit != 250 {
		t.Errorf("expected node limit from env, got %d", cfg.Solver.NodeLimit)
	}
	if cfg.Reference.DefaultCapacity != 2 {
		t.Errorf("expected capacity from env, got %d", cfg.Reference.DefaultCapacity)
	}
}

func TestLoadIsolatedBetweenCalls(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "solver:\n  node_limit: 99\n")

	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Solver.NodeLimit != 0 {
		t.Errorf("expected earlier file not to leak into a later load, got %d", cfg.Solver.NodeLimit)
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := writeFile(t, tmpDir, "config.yaml", `
reference:
  path: "exercises.csv"
log:
  level: "info"
`)
	writeFile(t, tmpDir, "config.dev.yaml", `
reference:
  path: "dev.yaml"
log:
  level: "debug"
`)

	tests := []struct {
		name          string
		profile       string
		wantReference string
		wantLogLevel  string
	}{
		{"no profile - base only", "", "exercises.csv", "info"},
		{"dev profile", "dev", "dev.yaml", "debug"},
		{"nonexistent profile - falls back to base", "staging", "exercises.csv", "info"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.Reference.Path != tc.wantReference {
				t.Errorf("reference path: got %s, want %s", cfg.Reference.Path, tc.wantReference)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
		})
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
server:
  http_addr: ":9000"
solver:
  timeout: "10s"
`)
	t.Setenv("ALLOT_SERVER_HTTP_ADDR", ":9100")

	cfg, err := LoadWithCLI([]string{
		"serve",
		"--config", path,
		"--set", "server.http_addr=:9200",
		"--set", "solver.node_limit=1000",
		"--set=reference.watch=true",
		"--set", `server.cors_origins=["https://a.example","https://b.example"]`,
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}

	if cfg.Server.HTTPAddr != ":9200" {
		t.Errorf("expected cli override to win, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Solver.Timeout != 10*time.Second {
		t.Errorf("expected file timeout, got %s", cfg.Solver.Timeout)
	}
	if cfg.Solver.NodeLimit != 1000 {
		t.Errorf("expected node limit override, got %d", cfg.Solver.NodeLimit)
	}
	if !cfg.Reference.Watch {
		t.Errorf("expected reference.watch=true")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected cors origins: %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadWithCLIProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := writeFile(t, tmpDir, "config.yaml", "log:\n  format: text\n")
	writeFile(t, tmpDir, "config.dev.yaml", "log:\n  format: json\n")

	tests := []struct {
		name string
		args []string
	}{
		{"profile flag", []string{"--config", basePath, "--profile", "dev"}},
		{"env flag alias", []string{"--config", basePath, "--env", "dev"}},
		{"profile with equals", []string{"--config=" + basePath, "--profile=dev"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithCLI(tc.args)
			if err != nil {
				t.Fatalf("LoadWithCLI failed: %v", err)
			}
			if cfg.Log.Format != "json" {
				t.Errorf("log format: got %s, want json", cfg.Log.Format)
			}
		})
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	if _, _, err := parseCLIOverrides([]string{"--config"}); err == nil {
		t.Fatalf("expected error for missing --config value")
	}
	if _, _, err := parseCLIOverrides([]string{"--set"}); err == nil {
		t.Fatalf("expected error for missing --set value")
	}
	if _, _, err := parseCLIOverrides([]string{"--set", "invalid"}); err == nil {
		t.Fatalf("expected error for invalid --set value")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		set  string
	}{
		{"unknown exporter", "telemetry.exporter=jaeger"},
		{"unknown format", "reference.format=xlsx"},
		{"negative node limit", "solver.node_limit=-1"},
		{"zero capacity", "reference.default_capacity=0"},
		{"sqlite without dsn", "session.backend=sqlite"},
		{"bad log level", "log.level=loud"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadWithCLI([]string{"--set", tc.set})
			if !errors.Is(err, errors.CodeInvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for a missing file, got %v", err)
	}
}
