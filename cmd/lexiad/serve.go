package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweetpotato0/lexia/assistant"
	"github.com/sweetpotato0/lexia/audit"
	auditstore "github.com/sweetpotato0/lexia/audit/store"
	"github.com/sweetpotato0/lexia/casectx"
	casectxstore "github.com/sweetpotato0/lexia/casectx/store"
	"github.com/sweetpotato0/lexia/config"
	"github.com/sweetpotato0/lexia/contestacion"
	contestacionstore "github.com/sweetpotato0/lexia/contestacion/store"
	"github.com/sweetpotato0/lexia/contrib/provider/claude"
	"github.com/sweetpotato0/lexia/contrib/provider/gemini"
	"github.com/sweetpotato0/lexia/contrib/provider/openai"
	"github.com/sweetpotato0/lexia/counter"
	"github.com/sweetpotato0/lexia/credits"
	"github.com/sweetpotato0/lexia/decision"
	"github.com/sweetpotato0/lexia/draft"
	draftstore "github.com/sweetpotato0/lexia/draft/store"
	"github.com/sweetpotato0/lexia/httpapi"
	"github.com/sweetpotato0/lexia/intent"
	"github.com/sweetpotato0/lexia/orchestrator"
	"github.com/sweetpotato0/lexia/pkg/logging"
	"github.com/sweetpotato0/lexia/pkg/telemetry"
	"github.com/sweetpotato0/lexia/provider"
	"github.com/sweetpotato0/lexia/ratelimit"
	"github.com/sweetpotato0/lexia/tokenizer"
)

func runServe(cmd *cobra.Command, _ []string) error {
	logger := logging.WithComponent("lexiad")

	cfg := config.FromEnv()
	if err := cfg.LoadProviderFile(providerFile); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "lexia",
		Environment: os.Getenv("LEXIA_ENV"),
	})
	if err != nil {
		return err
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}

	counters := buildCounters(cfg, logger)
	usage, caseStore, sessionStore, draftStore := buildStores(cfg, logger)

	gate := credits.NewGate(counters, usage,
		credits.WithLimit(cfg.CreditLimit),
		credits.WithFailOpen(cfg.CreditFailOpen),
	)
	limiter := ratelimit.NewLimiter(counters, cfg.RateLimitMax, cfg.RateLimitWindow)

	orchOpts := []orchestrator.Option{
		orchestrator.WithProviders(providers...),
		orchestrator.WithMaxAttempts(cfg.MaxAttempts),
		orchestrator.WithAttemptTimeout(cfg.AttemptTimeout),
		orchestrator.WithRecorder(gate),
	}
	if tok, err := tokenizer.New("gpt-4o"); err == nil {
		orchOpts = append(orchOpts, orchestrator.WithTokenCounter(tok))
	} else {
		logger.Warn("tiktoken encoding unavailable, using approximate counts", "error", err)
	}
	orch := orchestrator.New(orchOpts...)

	builder := decision.NewBuilder(decisionOptions(cfg, logger)...)
	asst := assistant.New(
		assistant.WithOrchestrator(orch),
		assistant.WithGate(gate),
		assistant.WithLimiter(limiter),
		assistant.WithCaseStore(caseStore),
		assistant.WithBuilder(builder),
	)

	var analystOpts []contestacion.AnalystOption
	if o, ok := cfg.Providers.Models[string(intent.IntentDrafting)]; ok && o.Model != "" {
		analystOpts = append(analystOpts, contestacion.WithAnalystModel(o.Model))
	}
	sessions := contestacion.NewService(
		sessionStore,
		contestacion.NewAnalyst(providers[0], nil, analystOpts...),
		contestacion.WithLimiter(limiter),
	)
	drafts := draft.NewGenerator(orch, draft.WithStore(draftStore), draft.WithBuilder(builder))

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewServer(asst, sessions, drafts,
			httpapi.WithCaseStore(caseStore)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return shutdownTelemetry(shutdownCtx)
	})

	return g.Wait()
}

// decisionOptions turns the provider-file model overrides into decision
// builder options, merged over the built-in per-intent defaults.
func decisionOptions(cfg *config.Config, logger *slog.Logger) []decision.Option {
	opts := make([]decision.Option, 0, len(cfg.Providers.Models))
	for name, override := range cfg.Providers.Models {
		it := intent.Intent(name)
		choice, ok := decision.DefaultChoice(it)
		if !ok {
			logger.Warn("model override for unknown intent ignored", "intent", name)
			continue
		}
		if override.Model != "" {
			choice.Model = override.Model
		}
		if override.Temperature > 0 {
			choice.Temperature = override.Temperature
		}
		if override.MaxTokens > 0 {
			choice.MaxTokens = override.MaxTokens
		}
		opts = append(opts, decision.WithModel(it, choice))
	}
	return opts
}

// buildProviders instantiates every provider with credentials, ordered by
// the configured priority.
func buildProviders(ctx context.Context, cfg *config.Config) ([]provider.Provider, error) {
	available := map[string]provider.Provider{}

	if cfg.Providers.AnthropicKey != "" {
		available["claude"] = claude.New(&claude.Config{APIKey: cfg.Providers.AnthropicKey})
	}
	if cfg.Providers.OpenAIKey != "" {
		available["openai"] = openai.New(&openai.Config{APIKey: cfg.Providers.OpenAIKey})
	}
	if cfg.Providers.GeminiKey != "" {
		p, err := gemini.New(ctx, &gemini.Config{APIKey: cfg.Providers.GeminiKey})
		if err != nil {
			return nil, err
		}
		available["gemini"] = p
	}

	providers := make([]provider.Provider, 0, len(available))
	for _, name := range cfg.Providers.Priority {
		if p, ok := available[name]; ok {
			providers = append(providers, p)
		}
	}
	if len(providers) == 0 {
		return nil, errors.New("no provider credentials configured")
	}
	return providers, nil
}

// buildCounters picks Redis when configured; the in-memory store is only
// correct for a single process.
func buildCounters(cfg *config.Config, logger *slog.Logger) counter.Store {
	if cfg.RedisAddr != "" {
		return counter.NewRedisStore(&counter.RedisConfig{Addr: cfg.RedisAddr})
	}
	logger.Warn("no redis configured, rate and credit counters are process-local")
	return counter.NewInMemoryStore()
}

// buildStores wires the persistent stores, falling back to in-memory
// implementations when a DSN is absent.
func buildStores(cfg *config.Config, logger *slog.Logger) (audit.Store, casectx.Store, contestacion.Store, draft.Store) {
	var usage audit.Store = audit.NewInMemoryStore()
	var caseStore casectx.Store
	var draftStore draft.Store = draftstore.NewInMemoryStore()

	if cfg.PostgresDSN != "" {
		if s, err := auditstore.NewPostgresStore(cfg.PostgresDSN); err == nil {
			usage = s
		} else {
			logger.Warn("usage store unavailable, using memory", "error", err)
		}
		if s, err := casectxstore.NewPostgresStore(cfg.PostgresDSN); err == nil {
			caseStore = s
		} else {
			logger.Warn("case store unavailable, enrichment disabled", "error", err)
		}
		if s, err := draftstore.NewPostgresStore(cfg.PostgresDSN); err == nil {
			draftStore = s
		} else {
			logger.Warn("draft store unavailable, using memory", "error", err)
		}
	}

	var sessionStore contestacion.Store = contestacionstore.NewInMemoryStore()
	if cfg.MongoURI != "" {
		if s, err := contestacionstore.NewMongoStore(&contestacionstore.MongoConfig{URI: cfg.MongoURI, Database: "lexia", Collection: "contestacion_sessions"}); err == nil {
			sessionStore = s
		} else {
			logger.Warn("session store unavailable, using memory", "error", err)
		}
	}

	return usage, caseStore, sessionStore, draftStore
}
