// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for parley.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/billing"
	"github.com/parleyhq/parley/internal/category"
	"github.com/parleyhq/parley/internal/compliance"
	"github.com/parleyhq/parley/internal/conversation"
	"github.com/parleyhq/parley/internal/orchestrator"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/session"
)

// Config is the top-level configuration structure. The typed sections
// tune the engine; Modules carries raw per-module YAML that each module
// decodes itself during Configure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Log controls process-wide logging.
	Log LogConfig `yaml:"log"`

	// DataDir is the root directory for persistent state. Empty means
	// the process working directory.
	DataDir string `yaml:"data_dir"`

	// Engine tunes the message pipeline.
	Engine orchestrator.Config `yaml:"engine"`

	// Sessions tunes the in-memory session store and its sweeper.
	Sessions SessionsConfig `yaml:"sessions"`

	// Conversations tunes durable conversation lifecycle.
	Conversations conversation.ManagerConfig `yaml:"conversations"`

	// Billing tunes the usage meter. Rates are keyed by model name.
	Billing billing.Config `yaml:"billing"`

	// Backend selects the default client and thread-mode behavior.
	Backend BackendConfig `yaml:"backend"`

	// RateLimit bounds inbound request rates. Zero values disable the
	// corresponding limit.
	RateLimit security.RateLimitConfig `yaml:"ratelimit"`

	// Compliance configures classification terms and the output filter.
	Compliance ComplianceConfig `yaml:"compliance"`

	// Verify configures age-verification checks.
	Verify VerifyConfig `yaml:"verify"`

	// Categories replaces the built-in category set when non-empty.
	Categories []category.Profile `yaml:"categories"`

	// Audit configures the audit event pipeline.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry configures OTLP trace export.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Cron overrides the built-in maintenance job schedules.
	Cron CronConfig `yaml:"cron"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "backend.openai").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is debug, info, warn, or error. Empty means info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Empty means text.
	Format string `yaml:"format"`
}

// SessionsConfig wraps the session store tuning plus the sweep cadence.
type SessionsConfig struct {
	session.Config `yaml:",inline"`

	// SweepInterval is how often expired sessions are evicted.
	// Zero means the sweeper default.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// BackendConfig selects and tunes backend dispatch.
type BackendConfig struct {
	// Default names the client used when a category does not pin one.
	// Empty means the first registered client.
	Default string `yaml:"default"`

	// Threads enables thread mode for clients that support it.
	Threads bool `yaml:"threads"`

	// PollInterval and PollCeiling bound thread-run polling.
	PollInterval time.Duration `yaml:"poll_interval"`
	PollCeiling  time.Duration `yaml:"poll_ceiling"`
}

// ComplianceConfig holds classification terms and output filtering.
type ComplianceConfig struct {
	// Terms feed the restricted-content classifier, keyed by label.
	Terms map[string][]string `yaml:"terms"`

	// Filter configures outbound pattern redaction.
	Filter compliance.FilterConfig `yaml:"filter"`
}

// VerifyConfig configures age-verification checks.
type VerifyConfig struct {
	// VerifiedRoles lists platform roles that count as verified.
	VerifiedRoles []string `yaml:"verified_roles"`

	// AllowAll short-circuits verification. Intended for development.
	AllowAll bool `yaml:"allow_all"`
}

// AuditConfig configures audit event delivery.
type AuditConfig struct {
	// QueueSize bounds the dispatcher inbox. Zero means the default.
	QueueSize int `yaml:"queue_size"`

	// JSONLPath appends events to a JSON-lines file. Relative paths
	// resolve under DataDir. Empty disables the file sink.
	JSONLPath string `yaml:"jsonl_path"`

	// Webhook posts events to an HTTP endpoint when URL is set.
	Webhook AuditWebhookConfig `yaml:"webhook"`
}

// AuditWebhookConfig configures the HTTP audit sink.
type AuditWebhookConfig struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig configures OTLP/HTTP trace export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is host:port of the OTLP/HTTP collector.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS toward the collector.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the head-sampling ratio in [0,1]. Zero means 1.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// CronConfig overrides maintenance job schedules. Expressions use the
// standard 5-field cron syntax; empty fields keep the job's default.
type CronConfig struct {
	UsageRollup         string `yaml:"usage_rollup"`
	ConversationArchive string `yaml:"conversation_archive"`
	RateLimitCleanup    string `yaml:"ratelimit_cleanup"`

	// ArchiveAfter overrides how long a conversation may idle before
	// the archive job ends it. Zero keeps the conversations idle_timeout.
	ArchiveAfter time.Duration `yaml:"archive_after"`
}
