package config

import "time"

// Config is the complete orchestrator configuration.
type Config struct {
	Service   ServiceConfig           `yaml:"service"`
	Store     StoreConfig             `yaml:"store"`
	API       APIConfig               `yaml:"api,omitempty"`
	Projects  map[string]ProjectConf  `yaml:"projects,omitempty"`
	Workflows map[string]WorkflowConf `yaml:"workflows,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`

	// LogFormat selects "json" (default) or "text" handler output.
	LogFormat string `yaml:"log_format,omitempty"`

	// DispatchInterval is the dispatcher's base poll cadence. When a full
	// scan claims nothing the interval backs off up to MaxDispatchInterval.
	DispatchInterval    time.Duration `yaml:"dispatch_interval"`
	MaxDispatchInterval time.Duration `yaml:"max_dispatch_interval"`

	// SweepInterval is the timeout sweeper cadence.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// AgentTTL evicts agents that stopped heartbeating.
	AgentTTL time.Duration `yaml:"agent_ttl"`

	// ClaimBatch caps how many schedulable instances one dispatch pass scans.
	ClaimBatch int `yaml:"claim_batch"`

	// StaleClaimAfter requeues STARTING instances whose agent never
	// acknowledged, e.g. because it was evicted with the assignment pending.
	StaleClaimAfter time.Duration `yaml:"stale_claim_after"`

	// TimeoutHandlerRef is the workflow spawned for parents whose workflow
	// does not configure its own on_timeout handler.
	TimeoutHandlerRef string `yaml:"timeout_handler_ref"`
}

// StoreConfig defines where process records are persisted.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Name   string   `yaml:"name,omitempty"`
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// ProjectConf is one project's configuration layer: shared variables plus
// named profiles selectable at submission time.
type ProjectConf struct {
	Org       string                    `yaml:"org,omitempty"`
	Variables map[string]any            `yaml:"variables,omitempty"`
	Profiles  map[string]map[string]any `yaml:"profiles,omitempty"`
}

// WorkflowConf carries per-workflow submission defaults. The workflow's
// internal steps are opaque to the orchestrator.
type WorkflowConf struct {
	Defaults map[string]any `yaml:"defaults,omitempty"`
	OutVars  []string       `yaml:"out_vars,omitempty"`

	// Timeout, when set, becomes the instance deadline unless the submission
	// supplies its own.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// OnTimeout names the workflow spawned as the timeout handler child.
	OnTimeout string `yaml:"on_timeout,omitempty"`

	// Requirements are default capability tags merged under any
	// submission-supplied tags.
	Requirements map[string]string `yaml:"requirements,omitempty"`
}
