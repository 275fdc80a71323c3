package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/parleyhq/parley/internal/category"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/orchestrator"
	"github.com/robfig/cron/v3"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, checks that all referenced module IDs
// exist in the registry, and validates the typed engine sections.
// Modules absent from cfg.Modules are simply not loaded; a compiled-in
// module needs no config entry unless the deployment uses it.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateLog(cfg.Log)...)
	errs = append(errs, validateEngine(cfg.Engine)...)
	errs = append(errs, validateSessions(cfg.Sessions)...)
	errs = append(errs, validateCategories(cfg.Categories)...)
	errs = append(errs, validateCompliance(cfg.Compliance)...)
	errs = append(errs, validateAudit(cfg.Audit)...)
	errs = append(errs, validateTelemetry(cfg.Telemetry)...)
	errs = append(errs, validateCron(cfg.Cron)...)

	return errors.Join(errs...)
}

func validateLog(lc LogConfig) []error {
	var errs []error
	switch lc.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", lc.Level))
	}
	switch lc.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json", lc.Format))
	}
	return errs
}

func validateEngine(ec orchestrator.Config) []error {
	var errs []error
	switch ec.EscalationPolicy {
	case "", orchestrator.EscalationBlock, orchestrator.EscalationAnnotate:
	default:
		errs = append(errs, fmt.Errorf("config: engine.escalation_policy %q is not %q or %q",
			ec.EscalationPolicy, orchestrator.EscalationBlock, orchestrator.EscalationAnnotate))
	}
	if ec.ReserveTokens < 0 {
		errs = append(errs, errors.New("config: engine.reserve_tokens must not be negative"))
	}
	if ec.PageLimit < 0 {
		errs = append(errs, errors.New("config: engine.page_limit must not be negative"))
	}
	return errs
}

func validateSessions(sc SessionsConfig) []error {
	var errs []error
	if sc.Timeout < 0 {
		errs = append(errs, errors.New("config: sessions.timeout must not be negative"))
	}
	if sc.MaxTurns > 0 && sc.TrailingWindow > sc.MaxTurns {
		errs = append(errs, fmt.Errorf("config: sessions.trailing_window %d exceeds max_turns %d",
			sc.TrailingWindow, sc.MaxTurns))
	}
	return errs
}

func validateCategories(cats []category.Profile) []error {
	var errs []error
	seen := make(map[string]bool, len(cats))
	for i, c := range cats {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("config: categories[%d]: name is required", i))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("config: duplicate category %q", c.Name))
		}
		seen[c.Name] = true
	}
	return errs
}

func validateCompliance(cc ComplianceConfig) []error {
	var errs []error
	for i, p := range cc.Filter.Patterns {
		if p.Pattern == "" {
			errs = append(errs, fmt.Errorf("config: compliance.filter.patterns[%d]: pattern is required", i))
			continue
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("config: compliance.filter.patterns[%d]: %w", i, err))
		}
	}
	return errs
}

func validateAudit(ac AuditConfig) []error {
	var errs []error
	if ac.QueueSize < 0 {
		errs = append(errs, errors.New("config: audit.queue_size must not be negative"))
	}
	if ac.Webhook.URL != "" {
		u, err := url.Parse(ac.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("config: audit.webhook.url %q is not a valid http(s) URL", ac.Webhook.URL))
		}
	}
	return errs
}

func validateTelemetry(tc TelemetryConfig) []error {
	var errs []error
	if tc.Enabled && tc.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is enabled"))
	}
	if tc.SampleRatio < 0 || tc.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio %v is outside [0,1]", tc.SampleRatio))
	}
	return errs
}

// cronParser accepts the standard 5-field syntax used by the scheduler.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func validateCron(cc CronConfig) []error {
	var errs []error
	for name, expr := range map[string]string{
		"cron.usage_rollup":         cc.UsageRollup,
		"cron.conversation_archive": cc.ConversationArchive,
		"cron.ratelimit_cleanup":    cc.RateLimitCleanup,
	} {
		if expr == "" {
			continue
		}
		if _, err := cronParser.Parse(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: %s %q: %w", name, expr, err))
		}
	}
	return errs
}
