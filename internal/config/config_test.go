package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
version: 1
tools:
  workspace:
    root: /tmp/workspace
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.Addr != "localhost:6379" {
		t.Errorf("expected default cache addr, got %q", cfg.Cache.Addr)
	}
	if cfg.Hub.BatchMaxMessages != 10 {
		t.Errorf("expected default hub batch size 10, got %d", cfg.Hub.BatchMaxMessages)
	}
	if cfg.Workflow.MaxConcurrentTasks != 16 {
		t.Errorf("expected default max concurrent tasks 16, got %d", cfg.Workflow.MaxConcurrentTasks)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("expected default llm provider anthropic, got %q", cfg.LLM.DefaultProvider)
	}
}

func TestLoad_MissingWorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `version: 1`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing workspace root")
	}
	if _, ok := err.(*ConfigValidationError); !ok {
		t.Fatalf("expected *ConfigValidationError, got %T: %v", err, err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
version: 1
tools:
  workspace:
    root: /tmp/workspace
`)

	t.Setenv("NEXUS_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://example/nexus")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected env-overridden port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://example/nexus" {
		t.Errorf("expected env-overridden database url, got %q", cfg.Database.URL)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
version: 1
tools:
  workspace:
    root: /tmp/workspace
not_a_real_field: true
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected strict decode to reject unknown top-level field")
	}
}

func TestLoad_ResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "tools.yaml", `
tools:
  workspace:
    root: /tmp/workspace
`)
	path := writeConfigFile(t, dir, "config.yaml", `
version: 1
$include: tools.yaml
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tools.Workspace.Root != "/tmp/workspace" {
		t.Errorf("expected included workspace root, got %q", cfg.Tools.Workspace.Root)
	}
}

func TestLoad_DefaultProviderMustExist(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
version: 1
tools:
  workspace:
    root: /tmp/workspace
llm:
  default_provider: anthropic
  providers:
    openai:
      kind: openai
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error when default_provider has no matching entry")
	}
}
