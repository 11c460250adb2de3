package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file or a directory containing
// config.yaml. Environment variable references of the form ${VAR} are
// expanded before parsing. If a .checksums manifest sits next to the config
// file its BLAKE3 hash is verified first.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := expandEnvVars(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", absPath, err)
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// expandEnvVars substitutes ${VAR} references. Unset variables expand to the
// empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "orchd"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "INFO"
	}
	if cfg.Service.DispatchInterval <= 0 {
		cfg.Service.DispatchInterval = 1 * time.Second
	}
	if cfg.Service.MaxDispatchInterval <= 0 {
		cfg.Service.MaxDispatchInterval = 30 * time.Second
	}
	if cfg.Service.SweepInterval <= 0 {
		cfg.Service.SweepInterval = 5 * time.Second
	}
	if cfg.Service.AgentTTL <= 0 {
		cfg.Service.AgentTTL = 30 * time.Second
	}
	if cfg.Service.ClaimBatch <= 0 {
		cfg.Service.ClaimBatch = 50
	}
	if cfg.Service.StaleClaimAfter <= 0 {
		cfg.Service.StaleClaimAfter = 1 * time.Minute
	}
	if cfg.Service.TimeoutHandlerRef == "" {
		cfg.Service.TimeoutHandlerRef = "onTimeout"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./data/orchd.db"
	}
}

func validate(cfg *Config) error {
	if cfg.Service.MaxDispatchInterval < cfg.Service.DispatchInterval {
		return fmt.Errorf("service.max_dispatch_interval (%s) is below service.dispatch_interval (%s)",
			cfg.Service.MaxDispatchInterval, cfg.Service.DispatchInterval)
	}
	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api.enabled is true")
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth requires api_key or at least one token")
		}
		for i, t := range cfg.API.Auth.Tokens {
			if t.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d]: token is empty", i)
			}
		}
	}
	for name, wf := range cfg.Workflows {
		if wf.Timeout < 0 {
			return fmt.Errorf("workflows.%s: timeout must not be negative", name)
		}
	}
	return nil
}
