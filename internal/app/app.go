package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/eodhd"
	"github.com/ihaichao/stock-pulse/internal/handlers"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/services/events"
	"github.com/ihaichao/stock-pulse/internal/services/llm"
	"github.com/ihaichao/stock-pulse/internal/services/portfolio"
	"github.com/ihaichao/stock-pulse/internal/services/querycache"
	"github.com/ihaichao/stock-pulse/internal/services/reconciler"
	"github.com/ihaichao/stock-pulse/internal/services/scheduler"
	"github.com/ihaichao/stock-pulse/internal/services/summary"
	"github.com/ihaichao/stock-pulse/internal/services/timeline"
	"github.com/ihaichao/stock-pulse/internal/sources"
	badgerstore "github.com/ihaichao/stock-pulse/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Domain services
	ReconcilerService *reconciler.Service
	SummaryService    interfaces.SummaryService
	TimelineService   *timeline.Service
	PortfolioService  *portfolio.Service
	QueryCache        *querycache.Cache

	// LLM service (summary generation)
	LLMService interfaces.LLMService

	// Source adapters keyed by source name
	Adapters []interfaces.SourceAdapter

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	EventHandler     *handlers.EventHandler
	PortfolioHandler *handlers.PortfolioHandler
	SchedulerHandler *handlers.SchedulerHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Int("adapters", len(app.Adapters)).
		Str("llm_provider", llmProviderName(app.LLMService)).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the storage layer (Badger)
func (a *App) initStorage() error {
	manager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = manager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order.
func (a *App) initServices() error {
	ctx := context.Background()

	// Event bus first so everything downstream can publish
	a.EventService = events.NewService(a.Logger)

	// Query cache invalidates itself off the bus
	a.QueryCache = querycache.NewCache(a.Logger)
	if err := a.QueryCache.Bind(a.EventService); err != nil {
		return fmt.Errorf("failed to bind query cache to event bus: %w", err)
	}

	// Source adapters
	if err := a.initAdapters(ctx); err != nil {
		return fmt.Errorf("failed to initialize source adapters: %w", err)
	}

	// Reconciler merges fetched records into canonical events
	a.ReconcilerService = reconciler.NewService(
		a.StorageManager.EventStorage(),
		a.EventService,
		a.Logger,
	)

	// LLM provider for AI summaries (nil when provider is "none")
	llmService, err := llm.NewLLMService(a.Config, a.StorageManager, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	a.LLMService = llmService

	a.SummaryService = summary.NewService(
		a.StorageManager.EventStorage(),
		a.LLMService,
		a.Logger,
	)

	a.TimelineService = timeline.NewService(
		a.StorageManager.EventStorage(),
		a.StorageManager.SubscriptionStorage(),
		a.QueryCache,
		a.SummaryService,
		a.Config.Cache,
		a.Logger,
	)

	a.PortfolioService = portfolio.NewService(
		a.StorageManager.SubscriptionStorage(),
		a.StorageManager.TaskStorage(),
		[]string{sources.SourceEodhd, sources.SourceEdgar},
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(
		&a.Config.Scheduler,
		&a.Config.Retention,
		a.Adapters,
		a.StorageManager,
		a.ReconcilerService,
		a.SummaryService,
		a.EventService,
		a.Logger,
	)

	return nil
}

// initAdapters wires the upstream source adapters. API keys resolve with
// environment priority, then the KV store, then the config file.
func (a *App) initAdapters(ctx context.Context) error {
	kv := a.StorageManager.KeyValueStorage()

	// EODHD earnings calendar
	eodhdKey, err := common.ResolveAPIKey(ctx, kv, "eodhd_api_key", a.Config.Sources.Eodhd.APIKey)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("EODHD API key not configured, earnings adapter disabled")
	} else {
		opts := []eodhd.ClientOption{eodhd.WithLogger(a.Logger)}
		if a.Config.Sources.Eodhd.BaseURL != "" {
			opts = append(opts, eodhd.WithBaseURL(a.Config.Sources.Eodhd.BaseURL))
		}
		if a.Config.Sources.Eodhd.RateLimit > 0 {
			opts = append(opts, eodhd.WithRateLimit(a.Config.Sources.Eodhd.RateLimit))
		}
		client := eodhd.NewClient(eodhdKey, opts...)
		a.Adapters = append(a.Adapters, sources.NewEarningsAdapter(client, a.Logger))
	}

	// Finnhub economic calendar
	finnhubKey, err := common.ResolveAPIKey(ctx, kv, "finnhub_api_key", a.Config.Sources.Finnhub.APIKey)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Finnhub API key not configured, macro adapter disabled")
	} else {
		roster, err := sources.LoadMacroRoster(a.Config.Sources.Roster)
		if err != nil {
			return fmt.Errorf("failed to load macro roster: %w", err)
		}

		var opts []sources.MacroOption
		if a.Config.Sources.Finnhub.BaseURL != "" {
			opts = append(opts, sources.WithMacroBaseURL(a.Config.Sources.Finnhub.BaseURL))
		}
		if a.Config.Sources.Finnhub.RateLimit > 0 {
			opts = append(opts, sources.WithMacroRateLimit(a.Config.Sources.Finnhub.RateLimit))
		}
		a.Adapters = append(a.Adapters, sources.NewMacroAdapter(finnhubKey, roster, a.Logger, opts...))
	}

	// SEC EDGAR filings
	if a.Config.Sources.Edgar.UserAgent != "" {
		var opts []sources.EdgarOption
		if a.Config.Sources.Edgar.BaseURL != "" {
			opts = append(opts, sources.WithEdgarBaseURL(a.Config.Sources.Edgar.BaseURL))
		}
		if a.Config.Sources.Edgar.RateLimit > 0 {
			opts = append(opts, sources.WithEdgarRateLimit(a.Config.Sources.Edgar.RateLimit))
		}
		a.Adapters = append(a.Adapters, sources.NewEdgarAdapter(a.Config.Sources.Edgar.UserAgent, a.Logger, opts...))
	} else {
		a.Logger.Warn().Msg("EDGAR user agent not configured, filings adapter disabled")
	}

	for _, adapter := range a.Adapters {
		a.Logger.Debug().Str("source", adapter.Name()).Msg("Source adapter initialized")
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.EventHandler = handlers.NewEventHandler(a.TimelineService, a.Logger)
	a.PortfolioHandler = handlers.NewPortfolioHandler(a.PortfolioService, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(
		a.SchedulerService,
		a.StorageManager.TaskStorage(),
		a.Logger,
	)
}

// Close shuts down all application components in reverse dependency order
func (a *App) Close() {
	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close LLM service")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close event bus")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close storage")
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
}

func llmProviderName(service interfaces.LLMService) string {
	if service == nil {
		return "none"
	}
	return service.ProviderName()
}
