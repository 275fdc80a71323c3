package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parleyhq/parley/internal/audit"
	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/billing"
	"github.com/parleyhq/parley/internal/category"
	"github.com/parleyhq/parley/internal/compliance"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/conversation"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/cron"
	"github.com/parleyhq/parley/internal/knowledge"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/orchestrator"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/session"
	"github.com/parleyhq/parley/internal/telemetry"
	"github.com/parleyhq/parley/internal/verify"
)

// engineModule wraps the components assembled by wireEngine that carry
// their own lifecycle — the session sweeper, the audit dispatcher, the
// cron scheduler, and the trace provider — so they start and stop with
// the rest of the app.
type engineModule struct {
	sweeper    *session.Sweeper
	dispatcher *audit.Dispatcher
	scheduler  *cron.Scheduler
	traces     *telemetry.Provider
	auditFile  *os.File

	runCtx context.Context
	cancel context.CancelFunc
}

func (m *engineModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "engine.core"}
}

func (m *engineModule) Start() error {
	if err := m.sweeper.Start(m.runCtx); err != nil {
		return err
	}
	if m.dispatcher != nil {
		if err := m.dispatcher.Start(m.runCtx); err != nil {
			return err
		}
	}
	return m.scheduler.Start()
}

func (m *engineModule) Stop(ctx context.Context) error {
	_ = m.scheduler.Stop(ctx)
	if m.dispatcher != nil {
		_ = m.dispatcher.Stop()
	}
	_ = m.sweeper.Stop(ctx)
	if m.traces != nil {
		_ = m.traces.Shutdown(ctx)
	}
	if m.auditFile != nil {
		_ = m.auditFile.Close()
	}
	m.cancel()
	return nil
}

// wireEngine assembles the conversation engine between LoadModules and
// Start: it discovers backend clients and persistence implementations
// among the loaded modules, builds the pipeline components, registers
// the services the gateway and relay resolve lazily, and appends the
// lifecycle wrapper to the app. Must be called after LoadModules and
// before Start.
func wireEngine(
	app *core.App,
	appCtx *core.AppContext,
	ids []string,
	cfg *config.Config,
	version string,
	logger *slog.Logger,
) error {
	// Discover capabilities among the loaded modules. A module may
	// provide several: the sqlite repository is also the default ledger
	// and knowledge source.
	registry := backend.NewRegistry()
	var (
		repo         conversation.Repository
		ledger       billing.Ledger
		knowledgeSrc knowledge.Source
	)

	for _, id := range ids {
		mod, ok := app.Module(id)
		if !ok {
			continue
		}
		if c, ok := mod.(backend.Client); ok {
			if err := registry.Register(c); err != nil {
				return fmt.Errorf("wiring backend %s: %w", id, err)
			}
			logger.Info("engine: registered backend", "module", id, "name", c.Name())
		}
		if r, ok := mod.(conversation.Repository); ok {
			repo = r
			logger.Info("engine: discovered repository", "module", id)
		}
		if l, ok := mod.(billing.Ledger); ok {
			ledger = l
			logger.Info("engine: discovered ledger", "module", id)
		}
		if k, ok := mod.(knowledge.Source); ok {
			knowledgeSrc = k
			logger.Info("engine: discovered knowledge source", "module", id)
		}
	}

	// A dedicated ledger or knowledge module registered as a service
	// (e.g. ledger.redis, knowledge.mcp) wins over a repository that
	// happens to implement the same interface.
	if svc, ok := appCtx.Service("ledger"); ok {
		if l, ok := svc.(billing.Ledger); ok {
			ledger = l
		}
	}
	if svc, ok := appCtx.Service("knowledge"); ok {
		if k, ok := svc.(knowledge.Source); ok {
			knowledgeSrc = k
		}
	}

	if registry.Len() == 0 {
		return fmt.Errorf("engine: no backend modules configured")
	}
	if cfg.Backend.Default != "" {
		if err := registry.SetDefault(cfg.Backend.Default); err != nil {
			return fmt.Errorf("engine: default backend: %w", err)
		}
	}

	if repo == nil {
		logger.Warn("engine: no repository module, conversations are in-memory only")
		repo = conversation.NewMemoryRepository()
	}
	if ledger == nil {
		logger.Warn("engine: no ledger module, credit balances are in-memory only")
		ledger = billing.NewMemoryLedger()
	}

	// Session layer.
	store := session.NewStore(cfg.Sessions.Config)
	lanes := session.NewLaneLock()
	sweeper, err := session.NewSweeper(session.SweeperConfig{
		Interval: cfg.Sessions.SweepInterval,
		Logger:   logger,
	}, store, lanes)
	if err != nil {
		return fmt.Errorf("engine: sweeper: %w", err)
	}

	// Durable conversation layer.
	manager, err := conversation.NewManager(repo, cfg.Conversations)
	if err != nil {
		return fmt.Errorf("engine: conversation manager: %w", err)
	}

	// Categories: the built-ins stay; configured profiles add to or
	// replace them by name.
	categories := category.NewRegistry()
	for _, p := range cfg.Categories {
		if err := categories.Register(p); err != nil {
			return fmt.Errorf("engine: category %q: %w", p.Name, err)
		}
	}

	// Compliance.
	classifier := compliance.NewClassifier()
	for label, terms := range cfg.Compliance.Terms {
		classifier.AddTerms(terms...)
		logger.Debug("engine: loaded classifier terms", "label", label, "count", len(terms))
	}
	filter, err := compliance.NewFilter(cfg.Compliance.Filter)
	if err != nil {
		return fmt.Errorf("engine: output filter: %w", err)
	}

	// Billing.
	billingCfg := cfg.Billing
	billingCfg.Logger = logger
	meter, err := billing.NewMeter(billingCfg, ledger)
	if err != nil {
		return fmt.Errorf("engine: meter: %w", err)
	}

	// Age verification: explicit roles first, then the persisted flag.
	// AllowAll appends a terminal pass-through for development setups.
	var checkers []verify.Checker
	if len(cfg.Verify.VerifiedRoles) > 0 {
		checkers = append(checkers, verify.RoleChecker{VerifiedRoles: cfg.Verify.VerifiedRoles})
	}
	if vs, ok := repo.(verify.VerificationStore); ok {
		checkers = append(checkers, verify.StoreChecker{Store: vs})
	}
	if cfg.Verify.AllowAll {
		checkers = append(checkers, verify.StaticChecker{Result: verify.Result{Eligible: true}})
	}
	if len(checkers) == 0 {
		checkers = append(checkers, verify.StaticChecker{})
	}
	verifier, err := verify.NewChain(logger, checkers...)
	if err != nil {
		return fmt.Errorf("engine: verifier: %w", err)
	}

	selector := backend.NewSelector(registry, backend.SelectorConfig{
		ThreadsEnabled: cfg.Backend.Threads,
		PollInterval:   cfg.Backend.PollInterval,
		PollCeiling:    cfg.Backend.PollCeiling,
	}, logger)

	limiter := security.NewRateLimiter(cfg.RateLimit)

	// Audit pipeline. No configured sink means no dispatcher; the engine
	// treats a nil dispatcher as a no-op.
	dispatcher, auditFile, err := buildAudit(cfg.Audit, appCtx.DataDir, logger)
	if err != nil {
		return err
	}

	// Metrics and traces.
	prom := metrics.New()
	prom.TrackSessions(func() float64 { return float64(store.Len()) })
	if dispatcher != nil {
		prom.TrackAuditDropped(func() float64 { return float64(dispatcher.Dropped()) })
	}

	runCtx, cancel := context.WithCancel(context.Background())
	traces, err := telemetry.Start(runCtx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		ServiceName:    "parley",
		ServiceVersion: version,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("engine: telemetry: %w", err)
	}

	engineCfg := cfg.Engine
	engineCfg.Logger = logger
	engine, err := orchestrator.New(engineCfg, orchestrator.Deps{
		Sessions:      store,
		Lanes:         lanes,
		Conversations: manager,
		Repo:          repo,
		Categories:    categories,
		Classifier:    classifier,
		Backends:      selector,
		Registry:      registry,
		Meter:         meter,
		Verifier:      verifier,
		Filter:        filter,
		Knowledge:     knowledgeSrc,
		RateLimit:     limiter,
		Audit:         dispatcher,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("engine: %w", err)
	}

	// Maintenance jobs. The archive and rollup jobs only run when the
	// repository can serve them; the in-memory fallback cannot.
	scheduler := cron.NewScheduler(logger)
	if archiver, ok := repo.(cron.ConversationArchiver); ok {
		idleAfter := cfg.Cron.ArchiveAfter
		if idleAfter <= 0 {
			idleAfter = cfg.Conversations.IdleTimeout
		}
		if err := scheduler.RegisterJob(&cron.ArchiveJob{
			Repo:         archiver,
			IdleAfter:    idleAfter,
			Logger:       logger,
			ScheduleExpr: cfg.Cron.ConversationArchive,
		}); err != nil {
			cancel()
			return fmt.Errorf("engine: archive job: %w", err)
		}
	}
	if roller, ok := repo.(cron.UsageRoller); ok {
		if err := scheduler.RegisterJob(&cron.RollupJob{
			Repo:         roller,
			Logger:       logger,
			ScheduleExpr: cfg.Cron.UsageRollup,
		}); err != nil {
			cancel()
			return fmt.Errorf("engine: rollup job: %w", err)
		}
	}
	if err := scheduler.RegisterJob(&cron.CleanupJob{
		Target:       limiter,
		JobName:      "ratelimit_cleanup",
		Logger:       logger,
		ScheduleExpr: cfg.Cron.RateLimitCleanup,
	}); err != nil {
		cancel()
		return fmt.Errorf("engine: cleanup job: %w", err)
	}

	// Services the gateway and relay resolve at Start.
	appCtx.RegisterService("engine", engine)
	appCtx.RegisterService("sessions", store)
	appCtx.RegisterService("backends", registry)
	appCtx.RegisterService("conversations", manager)
	appCtx.RegisterService("ratelimit", limiter)
	appCtx.RegisterService("metrics", prom)
	appCtx.RegisterService("tracer", traces.Tracer("parley"))
	if dispatcher != nil {
		appCtx.RegisterService("audit.dropped", dispatcher.Dropped)
	}

	app.AppendModule("engine.core", &engineModule{
		sweeper:    sweeper,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		traces:     traces,
		auditFile:  auditFile,
		runCtx:     runCtx,
		cancel:     cancel,
	})

	logger.Info("engine: wired",
		"backends", registry.Len(),
		"audit", dispatcher != nil,
	)
	return nil
}

// buildAudit constructs the audit dispatcher from the configured sinks.
// Returns a nil dispatcher when no sink is configured. The returned file
// handle, if any, must stay open for the dispatcher's lifetime.
func buildAudit(cfg config.AuditConfig, dataDir string, logger *slog.Logger) (*audit.Dispatcher, *os.File, error) {
	var (
		sinks []audit.Sink
		file  *os.File
	)

	if cfg.JSONLPath != "" {
		path := cfg.JSONLPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("engine: audit dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("engine: audit file: %w", err)
		}
		sink, err := audit.NewJSONLSink(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		sinks = append(sinks, sink)
		file = f
	}

	if cfg.Webhook.URL != "" {
		sink, err := audit.NewWebhookSink(audit.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Secret:  cfg.Webhook.Secret,
			Timeout: cfg.Webhook.Timeout,
		})
		if err != nil {
			if file != nil {
				_ = file.Close()
			}
			return nil, nil, fmt.Errorf("engine: webhook sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if len(sinks) == 0 {
		return nil, nil, nil
	}

	dispatcher, err := audit.NewDispatcher(audit.DispatcherConfig{
		QueueSize: cfg.QueueSize,
		Logger:    logger,
	}, sinks...)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, nil, err
	}
	return dispatcher, file, nil
}
