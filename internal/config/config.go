package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	for i := range cfg.Upstreams {
		if cfg.Upstreams[i].Role == "" {
			cfg.Upstreams[i].Role = DefaultUpstreamRole
		}
	}
	if cfg.Memo != nil && cfg.Memo.Enabled {
		if cfg.Memo.TTL == 0 {
			cfg.Memo.TTL = DefaultMemoTTL
		}
		if cfg.Memo.Size == 0 {
			cfg.Memo.Size = DefaultMemoSize
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if len(cfg.Upstreams) == 0 {
		return errors.New("at least one upstream is required")
	}

	names := make(map[string]bool)
	for i, u := range cfg.Upstreams {
		if u.Name == "" {
			return fmt.Errorf("upstream[%d]: name is required", i)
		}
		if names[u.Name] {
			return fmt.Errorf("upstream[%d]: duplicate upstream name '%s'", i, u.Name)
		}
		names[u.Name] = true

		if u.RPCURL == "" && u.WSURL == "" {
			return fmt.Errorf("upstream '%s': at least one of rpcUrl or wsUrl is required", u.Name)
		}
		if u.PreferWS && u.WSURL == "" {
			return fmt.Errorf("upstream '%s': preferWs requires wsUrl", u.Name)
		}
		if u.Role != RoleMain && u.Role != RoleFallback {
			return fmt.Errorf("upstream '%s': role must be 'main' or 'fallback'", u.Name)
		}
	}

	if cfg.Memo != nil && cfg.Memo.Enabled {
		if cfg.Memo.TTL <= 0 {
			return fmt.Errorf("memo.ttl must be positive when memo is enabled")
		}
		if cfg.Memo.Size <= 0 {
			return fmt.Errorf("memo.size must be positive when memo is enabled")
		}
	}

	seen := make(map[string]bool)
	for i, bm := range cfg.BatchMethods {
		parts := strings.Split(bm, ".")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("batchMethods[%d]: %q is not of the form model.method", i, bm)
		}
		if seen[bm] {
			return fmt.Errorf("batchMethods[%d]: duplicate entry %q", i, bm)
		}
		seen[bm] = true
	}

	return nil
}
