package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"social-trading-agent/config"
	"social-trading-agent/internal/agent"
	"social-trading-agent/internal/api"
	"social-trading-agent/internal/crisis"
	"social-trading-agent/internal/database"
	"social-trading-agent/internal/dex"
	"social-trading-agent/internal/engine"
	"social-trading-agent/internal/events"
	"social-trading-agent/internal/gather"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/notification"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/research"
	"social-trading-agent/internal/state"
)

func main() {
	rt, err := config.LoadRuntime()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      rt.Logging.Level,
		Output:     rt.Logging.Output,
		JSONFormat: rt.Logging.JSONFormat,
		Component:  "main",
	})
	logger.SetHook(api.LogHook())

	bus := events.NewBus()

	notifier := notification.NewManager(bus, logger)
	notifier.AddSink(notification.NewLogSink(logger))
	if rt.Secrets.AlertWebhookURL != "" {
		notifier.AddSink(notification.NewWebhookSink(rt.Secrets.AlertWebhookURL))
		logger.Info("alert_webhook_enabled")
	}

	// State store: Redis snapshot, file fallback.
	var store state.Store
	if rt.Store.RedisEnabled {
		rs, err := state.NewRedisStore(rt.Store)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		store = rs
		logger.Info("state_store_ready", "backend", "redis", "address", rt.Store.RedisAddress)
	} else {
		store = state.NewFileStore(rt.Store.FilePath)
		logger.Info("state_store_ready", "backend", "file", "path", rt.Store.FilePath)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, repaired, err := state.LoadOrInit(ctx, store)
	if err != nil {
		log.Fatalf("failed to load state: %v", err)
	}
	if len(repaired) > 0 {
		logger.Warn("config_keys_repaired", "keys", repaired)
	}

	// Optional Postgres audit mirror.
	if rt.Store.PostgresDSN != "" {
		audit, err := database.NewAudit(ctx, rt.Store.PostgresDSN, logger)
		if err != nil {
			log.Fatalf("failed to connect audit database: %v", err)
		}
		defer audit.Close()
		if err := audit.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to prepare audit schema: %v", err)
		}
		audit.Attach(bus)
		logger.Info("audit_mirror_ready")
	}

	// Providers.
	brokerage := providers.NewAlpacaClient(
		os.Getenv("BROKERAGE_TRADE_URL"),
		os.Getenv("BROKERAGE_DATA_URL"),
		rt.Secrets.BrokerageKey,
		rt.Secrets.BrokerageSecret,
	)
	var twitter providers.TwitterFeed
	if rt.Secrets.TwitterKey != "" {
		twitter = providers.NewTwitterClient("", rt.Secrets.TwitterKey)
	}

	llm := research.NewClient(research.ClientConfig{
		Provider: research.Provider(st.Config.LLMProvider),
		APIKey:   llmKeyFor(st.Config.LLMProvider, rt.Secrets),
	})
	researcher := research.NewResearcher(llm, logger)

	// Gatherers.
	tickers := gather.NewTickerCache(brokerage, logger)
	gatherers := gather.NewRunner(logger,
		gather.NewStocktwitsGatherer(providers.NewStocktwitsClient(""), logger),
		gather.NewForumGatherer(providers.NewForumClient(""), tickers, logger),
		gather.NewCryptoGatherer(brokerage, logger),
	)

	// Engines.
	options := engine.NewOptionsEngine(brokerage, brokerage, brokerage, logger)
	stocks := engine.NewStockEngine(brokerage, brokerage, options, researcher, twitter, bus, logger)
	crypto := engine.NewCryptoEngine(stocks, brokerage, researcher, bus, logger)
	dexEngine := dex.NewEngine(
		dex.NewScanner(providers.NewDexScreenerClient(""), logger),
		dex.NewChartGate(providers.NewGeckoChartClient("", ""), logger),
		dex.NewSolPriceCache(),
		bus, logger,
	)
	crisisMon := crisis.NewMonitor(providers.NewMacroClient(""), bus, logger)

	a := agent.New(agent.Deps{
		State:      st,
		Store:      store,
		Brokerage:  brokerage,
		Data:       brokerage,
		Twitter:    twitter,
		Gatherers:  gatherers,
		Researcher: researcher,
		Crisis:     crisisMon,
		Stocks:     stocks,
		Options:    options,
		Crypto:     crypto,
		Dex:        dexEngine,
		Bus:        bus,
		Log:        logger,
	})
	a.Start(ctx)

	server := api.NewServer(a, llm, brokerage, crisisMon, rt, bus, logger)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	logger.Info("agent_started",
		"enabled", st.Enabled,
		"port", rt.Server.Port,
		"dex_enabled", st.Config.DexEnabled)

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server_failed", "error", err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err.Error())
	}
	a.Stop()
	logger.Info("agent_stopped")
}

func llmKeyFor(provider string, secrets config.Secrets) string {
	switch research.Provider(provider) {
	case research.ProviderOpenAI:
		return secrets.OpenAIKey
	case research.ProviderDeepSeek:
		return secrets.DeepSeekKey
	default:
		return secrets.AnthropicKey
	}
}
