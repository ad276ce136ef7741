// internal/types/config.go
package types

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the single configuration record for the coordinator daemon
type Config struct {
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database_path"`
	HTTPAddr     string `yaml:"http_addr"`

	NATS      NATSConfig      `yaml:"nats"`
	Locks     LocksConfig     `yaml:"locks"`
	Context   ContextConfig   `yaml:"context"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Resource  ResourceConfig  `yaml:"resource"`
	Events    EventsConfig    `yaml:"events"`
}

// EventsConfig controls interaction log retention
type EventsConfig struct {
	RetentionDays        int `yaml:"retention_days"`
	CleanupIntervalHours int `yaml:"cleanup_interval_hours"`
}

// NATSConfig controls the messaging transport
type NATSConfig struct {
	Embedded  bool   `yaml:"embedded"`
	Port      int    `yaml:"port"`
	URL       string `yaml:"url"`
	JetStream bool   `yaml:"jetstream"`
}

// LocksConfig controls the per-project lock manager
type LocksConfig struct {
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`
	SweepIntervalSeconds  int `yaml:"sweep_interval_seconds"`
}

// ContextConfig controls the context assembler
type ContextConfig struct {
	MaxChunkTokens    int  `yaml:"max_chunk_tokens"`
	DefaultBudget     int  `yaml:"default_budget"`
	CacheSize         int  `yaml:"cache_size"`
	EmbeddingsEnabled bool `yaml:"embeddings_enabled"`
}

// ApprovalsConfig controls the approval engine
type ApprovalsConfig struct {
	// FleetFallback allows searching the whole agent set when the
	// requester's reporting chain lacks a sufficient approver.
	FleetFallback             *bool `yaml:"fleet_fallback"`
	EscalationIntervalSeconds int   `yaml:"escalation_interval_seconds"`
	BudgetReviewHours         int   `yaml:"budget_review_hours"`
}

// ResourceConfig controls the resource-state scheduler
type ResourceConfig struct {
	DrainIntervalSeconds   int `yaml:"drain_interval_seconds"`
	StateSweepSeconds      int `yaml:"state_sweep_seconds"`
	MetricsSnapshotSeconds int `yaml:"metrics_snapshot_seconds"`
	ContextSwitchSeconds   int `yaml:"context_switch_seconds"`
	DailyScalingLimit      int `yaml:"daily_scaling_limit"`
}

// DefaultConfig returns a config with all defaults applied
func DefaultConfig() *Config {
	fallback := true
	return &Config{
		DataDir:      "data",
		DatabasePath: filepath.Join("data", "agentcoord.db"),
		HTTPAddr:     ":8080",
		NATS: NATSConfig{
			Embedded: true,
			Port:     4222,
		},
		Locks: LocksConfig{
			DefaultTimeoutSeconds: 1800,
			SweepIntervalSeconds:  60,
		},
		Context: ContextConfig{
			MaxChunkTokens:    512,
			DefaultBudget:     8000,
			CacheSize:         1000,
			EmbeddingsEnabled: false,
		},
		Approvals: ApprovalsConfig{
			FleetFallback:             &fallback,
			EscalationIntervalSeconds: 3600,
			BudgetReviewHours:         24,
		},
		Resource: ResourceConfig{
			DrainIntervalSeconds:   5,
			StateSweepSeconds:      10,
			MetricsSnapshotSeconds: 3600,
			ContextSwitchSeconds:   5,
			DailyScalingLimit:      50,
		},
		Events: EventsConfig{
			RetentionDays:        30,
			CleanupIntervalHours: 24,
		},
	}
}

// LoadConfig reads a YAML config file and applies defaults for unset fields.
// A missing file returns the default config.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero values that unmarshalling may have cleared
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "agentcoord.db")
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = def.HTTPAddr
	}
	if c.NATS.Port == 0 {
		c.NATS.Port = def.NATS.Port
	}
	if c.Locks.DefaultTimeoutSeconds == 0 {
		c.Locks.DefaultTimeoutSeconds = def.Locks.DefaultTimeoutSeconds
	}
	if c.Locks.SweepIntervalSeconds == 0 {
		c.Locks.SweepIntervalSeconds = def.Locks.SweepIntervalSeconds
	}
	if c.Context.MaxChunkTokens == 0 {
		c.Context.MaxChunkTokens = def.Context.MaxChunkTokens
	}
	if c.Context.DefaultBudget == 0 {
		c.Context.DefaultBudget = def.Context.DefaultBudget
	}
	if c.Context.CacheSize == 0 {
		c.Context.CacheSize = def.Context.CacheSize
	}
	if c.Approvals.FleetFallback == nil {
		c.Approvals.FleetFallback = def.Approvals.FleetFallback
	}
	if c.Approvals.EscalationIntervalSeconds == 0 {
		c.Approvals.EscalationIntervalSeconds = def.Approvals.EscalationIntervalSeconds
	}
	if c.Approvals.BudgetReviewHours == 0 {
		c.Approvals.BudgetReviewHours = def.Approvals.BudgetReviewHours
	}
	if c.Resource.DrainIntervalSeconds == 0 {
		c.Resource.DrainIntervalSeconds = def.Resource.DrainIntervalSeconds
	}
	if c.Resource.StateSweepSeconds == 0 {
		c.Resource.StateSweepSeconds = def.Resource.StateSweepSeconds
	}
	if c.Resource.MetricsSnapshotSeconds == 0 {
		c.Resource.MetricsSnapshotSeconds = def.Resource.MetricsSnapshotSeconds
	}
	if c.Resource.ContextSwitchSeconds == 0 {
		c.Resource.ContextSwitchSeconds = def.Resource.ContextSwitchSeconds
	}
	if c.Resource.DailyScalingLimit == 0 {
		c.Resource.DailyScalingLimit = def.Resource.DailyScalingLimit
	}
	if c.Events.RetentionDays == 0 {
		c.Events.RetentionDays = def.Events.RetentionDays
	}
	if c.Events.CleanupIntervalHours == 0 {
		c.Events.CleanupIntervalHours = def.Events.CleanupIntervalHours
	}
}

// FleetFallbackEnabled reports whether whole-fleet approver search is on
func (c *Config) FleetFallbackEnabled() bool {
	return c.Approvals.FleetFallback == nil || *c.Approvals.FleetFallback
}
