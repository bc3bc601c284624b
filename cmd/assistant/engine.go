package main

import (
	"fmt"

	"github.com/capitalize-ai/ordering-assistant/internal/cache"
	"github.com/capitalize-ai/ordering-assistant/internal/config"
	"github.com/capitalize-ai/ordering-assistant/internal/intent"
	"github.com/capitalize-ai/ordering-assistant/internal/inventory"
	"github.com/capitalize-ai/ordering-assistant/internal/llm"
	"github.com/capitalize-ai/ordering-assistant/internal/reconcile"
	"github.com/capitalize-ai/ordering-assistant/internal/resolver"
	"github.com/capitalize-ai/ordering-assistant/internal/service"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
	"github.com/capitalize-ai/ordering-assistant/internal/store"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

// engine is the assembled session engine shared by serve and console.
type engine struct {
	assistant  *service.Assistant
	catalog    *inventory.Catalog
	reconciler *reconcile.Reconciler
	cleanup    *session.CleanupService
}

// buildEngine wires the engine around a backing store. st is wrapped with
// the store timeout; queue holds deltas for the reconciler.
func buildEngine(cfg *config.Config, st store.Store, queue reconcile.Queue, interp intent.Interpreter, events service.EventPublisher, log *logger.Logger) (*engine, error) {
	policy, err := cache.ParsePolicy(cfg.InventoryPolicy)
	if err != nil {
		return nil, err
	}

	synonyms := resolver.DefaultSynonyms()
	if cfg.SynonymsFile != "" {
		synonyms, err = resolver.LoadSynonyms(cfg.SynonymsFile)
		if err != nil {
			return nil, fmt.Errorf("load synonyms: %w", err)
		}
	}

	guarded := store.NewGuarded(st, cfg.StoreTimeout, log)
	catalog := inventory.NewCatalog(cfg.ShopID, guarded, cache.Options{
		TTL:    cfg.InventoryTTL,
		Policy: policy,
	}, log)

	reconciler := reconcile.New(queue, guarded, catalog, reconcile.Options{
		Workers:     cfg.ReconcileWorkers,
		MaxAttempts: cfg.ReconcileAttempts,
	}, log)

	registry := session.NewRegistry()
	locks := session.NewLockManager(cfg.LockWait)
	finalizer := service.NewFinalizer(cfg.ShopID, guarded, reconciler, events, nil, log)

	assistant := service.NewAssistant(service.Config{
		ShopID:          cfg.ShopID,
		ShopName:        cfg.ShopName,
		HistorySize:     cfg.HistorySize,
		OrderHistoryTTL: cfg.OrderHistoryTTL,
	}, service.Deps{
		Store:       guarded,
		Catalog:     catalog,
		Resolver:    resolver.New(synonyms),
		Interpreter: interp,
		Registry:    registry,
		Locks:       locks,
		Finalizer:   finalizer,
		Events:      events,
	}, log)

	cleanup := session.NewCleanupService(registry, locks, cfg.SessionIdle, cfg.CleanupInterval, assistant.OnIdleEvict, log)

	return &engine{
		assistant:  assistant,
		catalog:    catalog,
		reconciler: reconciler,
		cleanup:    cleanup,
	}, nil
}

// newInterpreter returns a language-model interpreter when a key is
// configured, and the rule interpreter otherwise.
func newInterpreter(cfg *config.Config, log *logger.Logger) (intent.Interpreter, error) {
	if cfg.APIKey() == "" {
		log.Warn("no language model key configured, using rule interpreter")
		return intent.RuleInterpreter{}, nil
	}
	client, err := llm.NewClient(llm.Config{
		Provider: llm.Provider(cfg.LLMProvider),
		APIKey:   cfg.APIKey(),
		BaseURL:  cfg.LLMBaseURL,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		return nil, err
	}
	modelName := cfg.LLMModel
	if modelName == "" {
		modelName = client.DefaultModel()
	}
	return intent.NewLLMInterpreter(client, modelName, log), nil
}

func newLogger(cfg *config.Config, level string, console bool) (*logger.Logger, error) {
	if level == "" {
		level = cfg.LogLevel
	}
	opts := logger.Options{Level: level, Format: logger.Format(cfg.LogFormat)}
	switch {
	case console:
		opts.Format = logger.FormatText
		opts.Output = "stderr"
	case cfg.Development() && cfg.LogFormat == "":
		opts.Format = logger.FormatPretty
	}
	return logger.New(opts)
}
