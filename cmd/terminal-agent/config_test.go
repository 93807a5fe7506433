package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.CommandTimeoutSecs != 30 {
		t.Errorf("timeout = %d", cfg.CommandTimeoutSecs)
	}
	if !cfg.Streaming {
		t.Error("streaming should default on")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "model = \"gpt-5.2\"\nmax_tool_rounds = 12\nstreaming = false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "gpt-5.2" {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.MaxToolRounds != 12 {
		t.Errorf("rounds = %d", cfg.MaxToolRounds)
	}
	if cfg.Streaming {
		t.Error("streaming should be off")
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("model = \"from-file\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TERMINAL_AGENT_MODEL", "from-env")
	t.Setenv("TERMINAL_AGENT_AUTO_APPROVE", "true")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "from-env" {
		t.Errorf("model = %q", cfg.Model)
	}
	if !cfg.AutoApprove {
		t.Error("auto_approve env override ignored")
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("model = [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Error("expected parse error")
	}
}
