// Package config holds the tunable knobs enumerated in spec.md §6, loaded
// from a JSON5 file with environment-variable overrides, matching the
// teacher's layered config.Load pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Config is the root configuration for the driftwatch core.
type Config struct {
	Tick        TickConfig        `json:"tick"`
	Memory      MemoryConfig      `json:"memory"`
	Browser     BrowserConfig     `json:"browser"`
	ActionQueue ActionQueueConfig `json:"actionQueue"`
	Agent       AgentConfig       `json:"agent"`
	Knowledge   KnowledgeConfig   `json:"knowledge"`
	Storage     StorageConfig     `json:"storage"`
}

// TickConfig configures the Scheduler's tick cadence.
type TickConfig struct {
	Interval            time.Duration `json:"-"`
	IntervalSeconds     int           `json:"intervalSeconds"`    // default 60
	MaintenanceInterval time.Duration `json:"-"`
	MaintenanceSeconds  int           `json:"maintenanceSeconds"` // default 300
	BatchFlushTicks     int           `json:"batchFlushTicks"`    // default 30
	MaintenanceCron     string        `json:"maintenanceCron"`    // optional cron expr gating Maintenance; empty runs every MaintenanceSeconds
}

// MemoryConfig configures ContextStore/SummaryStore retention.
type MemoryConfig struct {
	ContextTTL        time.Duration `json:"-"`
	ContextTTLSeconds int           `json:"contextTTLSeconds"` // default 3600
	AnalysisInterval  int           `json:"analysisInterval"`  // default 5 user messages
	SummaryMaxPerUser int           `json:"summaryMaxPerUser"` // default 10
}

// BrowserConfig configures the autonomous browser's pacing.
type BrowserConfig struct {
	MaxPagesPerHour     int           `json:"maxPagesPerHour"` // default 20
	HubCooldown         time.Duration `json:"-"`
	HubCooldownSeconds  int           `json:"hubCooldownSeconds"` // default 7200
	LinkStale           time.Duration `json:"-"`
	LinkStaleMs         int64         `json:"linkStaleMs"`         // default 86_400_000
	DiscoveryChance     float64       `json:"discoveryChance"`     // default 0.05
	MaxCandidatesPerHub int           `json:"maxCandidatesPerHub"` // default 5
	MinContentChars     int           `json:"minContentChars"`     // default 300
}

// ActionQueueConfig configures rate limiting, retries and proactive cooldown.
type ActionQueueConfig struct {
	RateLimitDelay           time.Duration `json:"-"`
	RateLimitDelayMs         int           `json:"rateLimitDelayMs"` // default 2000
	MaxRetries               int           `json:"maxRetries"`      // default 3
	RetryBaseDelay           time.Duration `json:"-"`
	RetryBaseSeconds         int           `json:"retryBaseSeconds"` // default 30 (linear backoff: retryCount * base)
	ProactiveCooldown        time.Duration `json:"-"`
	ProactiveCooldownSeconds int           `json:"proactiveCooldownSeconds"` // default 900
	WorkerTick               time.Duration `json:"-"`
	WorkerTickSeconds        int           `json:"workerTickSeconds"` // default 1
}

// AgentConfig configures the tool-calling loop and response formatting.
type AgentConfig struct {
	MaxToolRounds  int `json:"maxToolRounds"`  // default 6, spec range 5-10
	MobileWordCap  int `json:"mobileWordCap"`  // default 50
	SummaryContext int `json:"summaryContext"` // top-N summaries injected, default 3
}

// KnowledgeConfig configures KnowledgeBase search and retention.
type KnowledgeConfig struct {
	MaxAgeDays          int     `json:"maxAgeDays"`          // default 90
	SimilarityThreshold float64 `json:"similarityThreshold"` // default 0.6
	FreshnessBoostHours int     `json:"freshnessBoostHours"` // default 24
	RecentWindowDays    int     `json:"recentWindowDays"`    // default 7
}

// StorageConfig configures where durable state is written.
type StorageConfig struct {
	DataDir    string `json:"dataDir"`    // default "data"
	SQLitePath string `json:"sqlitePath"` // default "data/driftwatch.db"
}

// Default returns a Config with the defaults enumerated in spec.md §6.
func Default() *Config {
	return &Config{
		Tick: TickConfig{
			IntervalSeconds:    60,
			MaintenanceSeconds: 300,
			BatchFlushTicks:    30,
		},
		Memory: MemoryConfig{
			ContextTTLSeconds: 3600,
			AnalysisInterval:  5,
			SummaryMaxPerUser: 10,
		},
		Browser: BrowserConfig{
			MaxPagesPerHour:     20,
			HubCooldownSeconds:  7200,
			LinkStaleMs:         86_400_000,
			DiscoveryChance:     0.05,
			MaxCandidatesPerHub: 5,
			MinContentChars:     300,
		},
		ActionQueue: ActionQueueConfig{
			RateLimitDelayMs:         2000,
			MaxRetries:               3,
			RetryBaseSeconds:         30,
			ProactiveCooldownSeconds: 900,
			WorkerTickSeconds:        1,
		},
		Agent: AgentConfig{
			MaxToolRounds:  6,
			MobileWordCap:  50,
			SummaryContext: 3,
		},
		Knowledge: KnowledgeConfig{
			MaxAgeDays:          90,
			SimilarityThreshold: 0.6,
			FreshnessBoostHours: 24,
			RecentWindowDays:    7,
		},
		Storage: StorageConfig{
			DataDir:    "data",
			SQLitePath: "data/driftwatch.db",
		},
	}
}

// Load reads config from a JSON5 file (tolerant of comments/trailing
// commas, matching the teacher's config loader), then overlays
// DRIFTWATCH_* environment variables and resolves duration fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolveDurations()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envInt("DRIFTWATCH_TICK_INTERVAL_SECONDS", &c.Tick.IntervalSeconds)
	envInt("DRIFTWATCH_MAX_PAGES_PER_HOUR", &c.Browser.MaxPagesPerHour)
	envInt("DRIFTWATCH_MAX_RETRIES", &c.ActionQueue.MaxRetries)
	envInt("DRIFTWATCH_PROACTIVE_COOLDOWN_SECONDS", &c.ActionQueue.ProactiveCooldownSeconds)
	if v := os.Getenv("DRIFTWATCH_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
}

// resolveDurations converts the JSON-friendly int fields into time.Duration,
// so the rest of the codebase only ever deals in durations.
func (c *Config) resolveDurations() {
	c.Tick.Interval = time.Duration(c.Tick.IntervalSeconds) * time.Second
	c.Tick.MaintenanceInterval = time.Duration(c.Tick.MaintenanceSeconds) * time.Second
	c.Memory.ContextTTL = time.Duration(c.Memory.ContextTTLSeconds) * time.Second
	c.Browser.HubCooldown = time.Duration(c.Browser.HubCooldownSeconds) * time.Second
	c.Browser.LinkStale = time.Duration(c.Browser.LinkStaleMs) * time.Millisecond
	c.ActionQueue.RateLimitDelay = time.Duration(c.ActionQueue.RateLimitDelayMs) * time.Millisecond
	c.ActionQueue.RetryBaseDelay = time.Duration(c.ActionQueue.RetryBaseSeconds) * time.Second
	c.ActionQueue.ProactiveCooldown = time.Duration(c.ActionQueue.ProactiveCooldownSeconds) * time.Second
	c.ActionQueue.WorkerTick = time.Duration(c.ActionQueue.WorkerTickSeconds) * time.Second
}
