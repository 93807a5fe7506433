package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Config is the persisted config file schema. Environment variables override
// file values.
type Config struct {
	Model              string `toml:"model" env:"TERMINAL_AGENT_MODEL"`
	Provider           string `toml:"provider" env:"TERMINAL_AGENT_PROVIDER"`
	MaxToolRounds      int    `toml:"max_tool_rounds" env:"TERMINAL_AGENT_MAX_TOOL_ROUNDS"`
	CommandTimeoutSecs int    `toml:"command_timeout_secs" env:"TERMINAL_AGENT_COMMAND_TIMEOUT_SECS"`
	Streaming          bool   `toml:"streaming" env:"TERMINAL_AGENT_STREAMING"`
	AutoApprove        bool   `toml:"auto_approve" env:"TERMINAL_AGENT_AUTO_APPROVE"`
	LogPath            string `toml:"log_path" env:"TERMINAL_AGENT_LOG_PATH"`

	Source string `toml:"-" env:"-"`
}

func defaultConfig() Config {
	return Config{
		Model:              "claude-sonnet-4-5",
		CommandTimeoutSecs: 30,
		Streaming:          true,
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".terminal-agent", "config.toml")
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".terminal-agent", "agent.log")
}

// loadConfig reads the TOML config file, then applies environment variable
// overrides. A missing file is not an error; defaults apply.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = defaultConfigPath()
	}
	cfg.Source = path

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// fall through to env overrides
		default:
			return cfg, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
