package config

import "time"

// AgentConfig holds every tunable of the trading agent. The whole struct is
// persisted inside the agent state snapshot and patched via the control plane
// with a shallow JSON merge, so every field carries a stable json key.
type AgentConfig struct {
	// Scheduling intervals
	TickIntervalMs        int64 `json:"tick_interval_ms"`
	DataPollIntervalMs    int64 `json:"data_poll_interval_ms"`
	ResearchIntervalMs    int64 `json:"research_interval_ms"`
	AnalystIntervalMs     int64 `json:"analyst_interval_ms"`
	CrisisCheckIntervalMs int64 `json:"crisis_check_interval_ms"`
	DexScanIntervalMs     int64 `json:"dex_scan_interval_ms"`

	// Stock risk
	StocksEnabled        bool     `json:"stocks_enabled"`
	MaxPositionValue     float64  `json:"max_position_value"`
	MaxPositions         int      `json:"max_positions"`
	PositionSizePctCash  float64  `json:"position_size_pct_of_cash"`
	TakeProfitPct        float64  `json:"take_profit_pct"`
	StopLossPct          float64  `json:"stop_loss_pct"`
	MinSentimentScore    float64  `json:"min_sentiment_score"`
	MinAnalystConfidence float64  `json:"min_analyst_confidence"`
	LLMMinHoldMinutes    int      `json:"llm_min_hold_minutes"`
	AllowedExchanges     []string `json:"allowed_exchanges"`
	TickerBlacklist      []string `json:"ticker_blacklist"`

	// Stale-position policy
	StaleEnabled          bool    `json:"stale_position_enabled"`
	StaleMinHoldHours     float64 `json:"stale_min_hold_hours"`
	StaleMidHoldDays      float64 `json:"stale_mid_hold_days"`
	StaleMaxHoldDays      float64 `json:"stale_max_hold_days"`
	StaleMinGainPct       float64 `json:"stale_min_gain_pct"`
	StaleSocialVolDecay   float64 `json:"stale_social_volume_decay"`
	StaleNoMentionHours   float64 `json:"stale_no_mention_hours"`
	PositionResearchSecs  int     `json:"position_research_secs"`

	// LLM provider
	LLMProvider        string  `json:"llm_provider"` // "anthropic", "openai", "deepseek"
	LLMCheapModel      string  `json:"llm_cheap_model"`
	LLMSmartModel      string  `json:"llm_smart_model"`
	LLMMaxTokens       int     `json:"llm_max_tokens"`
	LLMTemperature     float64 `json:"llm_temperature"`
	LLMDailyBudgetUSD  float64 `json:"llm_daily_budget_usd"`
	TwitterEnabled     bool    `json:"twitter_enabled"`
	TwitterDailyReads  int     `json:"twitter_daily_reads"`

	// Options
	OptionsEnabled        bool    `json:"options_enabled"`
	OptionsMinDTE         int     `json:"options_min_dte"`
	OptionsMaxDTE         int     `json:"options_max_dte"`
	OptionsMinDelta       float64 `json:"options_min_delta"`
	OptionsMaxDelta       float64 `json:"options_max_delta"`
	OptionsMinConfidence  float64 `json:"options_min_confidence"`
	OptionsMaxPctPerTrade float64 `json:"options_max_pct_per_trade"`
	OptionsTakeProfitPct  float64 `json:"options_take_profit_pct"`
	OptionsStopLossPct    float64 `json:"options_stop_loss_pct"`

	// Crypto
	CryptoEnabled           bool     `json:"crypto_enabled"`
	CryptoSymbols           []string `json:"crypto_symbols"`
	CryptoMomentumThreshold float64  `json:"crypto_momentum_threshold"`
	CryptoTakeProfitPct     float64  `json:"crypto_take_profit_pct"`
	CryptoStopLossPct       float64  `json:"crypto_stop_loss_pct"`
	CryptoMaxPositionValue  float64  `json:"crypto_max_position_value"`

	// DEX global
	DexEnabled              bool    `json:"dex_enabled"`
	DexStartingBalanceSol   float64 `json:"dex_starting_balance_sol"`
	DexMaxPositions         int     `json:"dex_max_positions"`
	DexPositionSizePct      float64 `json:"dex_position_size_pct"`
	DexMaxPositionSol       float64 `json:"dex_max_position_sol"`
	DexStopLossPct          float64 `json:"dex_stop_loss_pct"`
	DexSlippageModel        string  `json:"dex_slippage_model"` // none|conservative|realistic
	DexGasFeeSol            float64 `json:"dex_gas_fee_sol"`
	DexMinMomentumScore     float64 `json:"dex_min_momentum_score"`
	DexMaxDrawdownPct       float64 `json:"dex_max_drawdown_pct"`
	DexMaxSinglePositionPct float64 `json:"dex_max_single_position_pct"`

	// DEX trailing stops
	DexTrailingActivationPct        float64 `json:"dex_trailing_stop_activation_pct"`
	DexTrailingDistancePct          float64 `json:"dex_trailing_stop_distance_pct"`
	DexLotteryTrailingActivationPct float64 `json:"dex_lottery_trailing_activation"`
	DexHighRiskTrailingDistancePct  float64 `json:"dex_high_risk_trailing_distance_pct"`

	// DEX circuit breaker / cooldowns
	DexCircuitBreakerLosses      int     `json:"dex_circuit_breaker_losses"`
	DexCircuitBreakerWindowHours float64 `json:"dex_circuit_breaker_window_hours"`
	DexCircuitBreakerPauseHours  float64 `json:"dex_circuit_breaker_pause_hours"`
	DexBreakerMinCooldownMinutes float64 `json:"dex_breaker_min_cooldown_minutes"`
	DexStopLossCooldownHours     float64 `json:"dex_stop_loss_cooldown_hours"`
	DexReentryRecoveryPct        float64 `json:"dex_reentry_recovery_pct"`
	DexReentryMinMomentum        float64 `json:"dex_reentry_min_momentum"`

	// DEX chart gate
	DexChartAnalysisEnabled bool    `json:"dex_chart_analysis_enabled"`
	DexChartMinEntryScore   float64 `json:"dex_chart_min_entry_score"`

	// DEX tier: microspray (30m-2h)
	DexMicrosprayEnabled      bool    `json:"dex_microspray_enabled"`
	DexMicrosprayPositionSol  float64 `json:"dex_microspray_position_sol"`
	DexMicrosprayMaxPositions int     `json:"dex_microspray_max_positions"`
	DexMicrosprayStopLossPct  float64 `json:"dex_microspray_stop_loss_pct"`
	DexMicrosprayMinLiquidity float64 `json:"dex_microspray_min_liquidity"`
	DexMicrosprayMinVolume    float64 `json:"dex_microspray_min_volume"`

	// DEX tier: breakout (2h-6h)
	DexBreakoutEnabled      bool    `json:"dex_breakout_enabled"`
	DexBreakoutPositionSol  float64 `json:"dex_breakout_position_sol"`
	DexBreakoutMaxPositions int     `json:"dex_breakout_max_positions"`
	DexBreakoutStopLossPct  float64 `json:"dex_breakout_stop_loss_pct"`
	DexBreakoutMinLiquidity float64 `json:"dex_breakout_min_liquidity"`
	DexBreakoutMinVolume    float64 `json:"dex_breakout_min_volume"`
	DexBreakoutMin5mPump    float64 `json:"dex_breakout_min_5m_pump"`

	// DEX tier: lottery (1h-6h)
	DexLotteryEnabled      bool    `json:"dex_lottery_enabled"`
	DexLotteryPositionSol  float64 `json:"dex_lottery_position_sol"`
	DexLotteryMaxPositions int     `json:"dex_lottery_max_positions"`
	DexLotteryStopLossPct  float64 `json:"dex_lottery_stop_loss_pct"`
	DexLotteryMinLiquidity float64 `json:"dex_lottery_min_liquidity"`
	DexLotteryMinVolume    float64 `json:"dex_lottery_min_volume"`
	DexLotteryMin1hChange  float64 `json:"dex_lottery_min_1h_change"`

	// DEX tier: early (6h-3d)
	DexEarlyEnabled         bool    `json:"dex_early_enabled"`
	DexEarlyPositionSizePct float64 `json:"dex_early_position_size_pct"`
	DexEarlyMaxPositions    int     `json:"dex_early_max_positions"`
	DexEarlyStopLossPct     float64 `json:"dex_early_stop_loss_pct"`
	DexEarlyMinLiquidity    float64 `json:"dex_early_min_liquidity"`
	DexEarlyMinVolume       float64 `json:"dex_early_min_volume"`
	DexEarlyMinLegitimacy   float64 `json:"dex_early_min_legitimacy"`

	// DEX tier: established (3d-14d)
	DexEstablishedEnabled      bool    `json:"dex_established_enabled"`
	DexEstablishedMaxPositions int     `json:"dex_established_max_positions"`
	DexEstablishedStopLossPct  float64 `json:"dex_established_stop_loss_pct"`
	DexEstablishedMinLiquidity float64 `json:"dex_established_min_liquidity"`
	DexEstablishedMinVolume    float64 `json:"dex_established_min_volume"`

	// Legacy DEX keys, kept as fallbacks for tier-specific values that are
	// absent in stored snapshots. Resolved once by Migrate.
	DexMinAgeDays    float64 `json:"dex_min_age_days"`
	DexMaxAgeDays    float64 `json:"dex_max_age_days"`
	DexMinLiquidity  float64 `json:"dex_min_liquidity"`
	DexMinVolume24h  float64 `json:"dex_min_volume_24h"`

	// Crisis mode
	CrisisModeEnabled          bool    `json:"crisis_mode_enabled"`
	CrisisLevel1SizeReduction  float64 `json:"crisis_level1_size_reduction"`
	CrisisLevel1StopLossPct    float64 `json:"crisis_level1_stop_loss_pct"`
	CrisisLevel2MinProfitHold  float64 `json:"crisis_level2_min_profit_to_hold"`
	VIXElevated                float64 `json:"vix_elevated"`
	VIXHigh                    float64 `json:"vix_high"`
	VIXCritical                float64 `json:"vix_critical"`
	HYSpreadWarning            float64 `json:"hy_spread_warning"`
	HYSpreadCritical           float64 `json:"hy_spread_critical"`
	BTCWeeklyDropPct           float64 `json:"btc_weekly_drop_pct"`
	StablecoinDepegThreshold   float64 `json:"stablecoin_depeg_threshold"`
	GoldSilverRatioLow         float64 `json:"gold_silver_ratio_low"`
	StocksAbove200MAWarning    float64 `json:"stocks_above_200ma_warning"`
	StocksAbove200MACritical   float64 `json:"stocks_above_200ma_critical"`
	YieldCurveInversionWarning float64 `json:"yield_curve_inversion_warning"`
	YieldCurveInversionCrit    float64 `json:"yield_curve_inversion_critical"`
	TEDSpreadWarning           float64 `json:"ted_spread_warning"`
	TEDSpreadCritical          float64 `json:"ted_spread_critical"`
	DXYElevated                float64 `json:"dxy_elevated"`
	DXYCritical                float64 `json:"dxy_critical"`
	USDJPYWarning              float64 `json:"usdjpy_warning"`
	USDJPYCritical             float64 `json:"usdjpy_critical"`
	KREWeeklyWarning           float64 `json:"kre_weekly_warning"`
	KREWeeklyCritical          float64 `json:"kre_weekly_critical"`
	SilverWeeklyWarning        float64 `json:"silver_weekly_warning"`
	SilverWeeklyCritical       float64 `json:"silver_weekly_critical"`
	FedBalanceWeeklyWarning    float64 `json:"fed_balance_weekly_warning"`
	FedBalanceWeeklyCritical   float64 `json:"fed_balance_weekly_critical"`

	// Gatherer source weights
	SourceWeightStocktwits float64  `json:"source_weight_stocktwits"`
	SourceWeightForum      float64  `json:"source_weight_forum"`
	SourceWeightCrypto     float64  `json:"source_weight_crypto"`
	ForumSubgroups         []string `json:"forum_subgroups"`
}

// TickInterval returns the scheduler tick period.
func (c *AgentConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// DataPollInterval returns the gatherer cadence.
func (c *AgentConfig) DataPollInterval() time.Duration {
	return time.Duration(c.DataPollIntervalMs) * time.Millisecond
}

// AnalystInterval returns the batch analyst cadence.
func (c *AgentConfig) AnalystInterval() time.Duration {
	return time.Duration(c.AnalystIntervalMs) * time.Millisecond
}

// CrisisCheckInterval returns the crisis monitor cadence.
func (c *AgentConfig) CrisisCheckInterval() time.Duration {
	return time.Duration(c.CrisisCheckIntervalMs) * time.Millisecond
}

// DefaultConfig returns the config written on first boot. Every key the
// migration step knows about has its default here.
func DefaultConfig() *AgentConfig {
	return &AgentConfig{
		TickIntervalMs:        30_000,
		DataPollIntervalMs:    300_000,
		ResearchIntervalMs:    120_000,
		AnalystIntervalMs:     900_000,
		CrisisCheckIntervalMs: 900_000,
		DexScanIntervalMs:     30_000,

		StocksEnabled:        true,
		MaxPositionValue:     1000,
		MaxPositions:         5,
		PositionSizePctCash:  20,
		TakeProfitPct:        10,
		StopLossPct:          5,
		MinSentimentScore:    0.3,
		MinAnalystConfidence: 0.7,
		LLMMinHoldMinutes:    30,
		AllowedExchanges:     []string{"NYSE", "NASDAQ", "ARCA", "AMEX", "BATS"},
		TickerBlacklist:      []string{},

		StaleEnabled:         true,
		StaleMinHoldHours:    24,
		StaleMidHoldDays:     3,
		StaleMaxHoldDays:     7,
		StaleMinGainPct:      2,
		StaleSocialVolDecay:  0.3,
		StaleNoMentionHours:  12,
		PositionResearchSecs: 300,

		LLMProvider:       "anthropic",
		LLMCheapModel:     "claude-3-5-haiku-20241022",
		LLMSmartModel:     "claude-sonnet-4-20250514",
		LLMMaxTokens:      1024,
		LLMTemperature:    0.3,
		LLMDailyBudgetUSD: 5,
		TwitterEnabled:    false,
		TwitterDailyReads: 50,

		OptionsEnabled:        false,
		OptionsMinDTE:         14,
		OptionsMaxDTE:         45,
		OptionsMinDelta:       0.30,
		OptionsMaxDelta:       0.60,
		OptionsMinConfidence:  0.85,
		OptionsMaxPctPerTrade: 2,
		OptionsTakeProfitPct:  50,
		OptionsStopLossPct:    40,

		CryptoEnabled:           false,
		CryptoSymbols:           []string{"BTC/USD", "ETH/USD", "SOL/USD", "DOGE/USD"},
		CryptoMomentumThreshold: 2.5,
		CryptoTakeProfitPct:     8,
		CryptoStopLossPct:       5,
		CryptoMaxPositionValue:  500,

		DexEnabled:              false,
		DexStartingBalanceSol:   10,
		DexMaxPositions:         8,
		DexPositionSizePct:      10,
		DexMaxPositionSol:       1.0,
		DexStopLossPct:          25,
		DexSlippageModel:        "realistic",
		DexGasFeeSol:            0.00025,
		DexMinMomentumScore:     60,
		DexMaxDrawdownPct:       30,
		DexMaxSinglePositionPct: 25,

		DexTrailingActivationPct:        30,
		DexTrailingDistancePct:          15,
		DexLotteryTrailingActivationPct: 50,
		DexHighRiskTrailingDistancePct:  20,

		DexCircuitBreakerLosses:      3,
		DexCircuitBreakerWindowHours: 1,
		DexCircuitBreakerPauseHours:  2,
		DexBreakerMinCooldownMinutes: 15,
		DexStopLossCooldownHours:     4,
		DexReentryRecoveryPct:        15,
		DexReentryMinMomentum:        80,

		DexChartAnalysisEnabled: true,
		DexChartMinEntryScore:   30,

		DexMicrosprayEnabled:      false,
		DexMicrosprayPositionSol:  0.01,
		DexMicrosprayMaxPositions: 3,
		DexMicrosprayStopLossPct:  35,
		DexMicrosprayMinLiquidity: 5_000,
		DexMicrosprayMinVolume:    2_000,

		DexBreakoutEnabled:      false,
		DexBreakoutPositionSol:  0.02,
		DexBreakoutMaxPositions: 2,
		DexBreakoutStopLossPct:  30,
		DexBreakoutMinLiquidity: 10_000,
		DexBreakoutMinVolume:    10_000,
		DexBreakoutMin5mPump:    10,

		DexLotteryEnabled:      false,
		DexLotteryPositionSol:  0.02,
		DexLotteryMaxPositions: 2,
		DexLotteryStopLossPct:  30,
		DexLotteryMinLiquidity: 15_000,
		DexLotteryMinVolume:    10_000,
		DexLotteryMin1hChange:  5,

		DexEarlyEnabled:         true,
		DexEarlyPositionSizePct: 50,
		DexEarlyMaxPositions:    4,
		DexEarlyStopLossPct:     25,
		DexEarlyMinLiquidity:    25_000,
		DexEarlyMinVolume:       20_000,
		DexEarlyMinLegitimacy:   40,

		DexEstablishedEnabled:      true,
		DexEstablishedMaxPositions: 4,
		DexEstablishedStopLossPct:  25,
		DexEstablishedMinLiquidity: 50_000,
		DexEstablishedMinVolume:    30_000,

		DexMinAgeDays:   0,
		DexMaxAgeDays:   14,
		DexMinLiquidity: 25_000,
		DexMinVolume24h: 20_000,

		CrisisModeEnabled:          true,
		CrisisLevel1SizeReduction:  50,
		CrisisLevel1StopLossPct:    4,
		CrisisLevel2MinProfitHold:  2,
		VIXElevated:                25,
		VIXHigh:                    35,
		VIXCritical:                45,
		HYSpreadWarning:            450,
		HYSpreadCritical:           600,
		BTCWeeklyDropPct:           -20,
		StablecoinDepegThreshold:   0.985,
		GoldSilverRatioLow:         70,
		StocksAbove200MAWarning:    40,
		StocksAbove200MACritical:   25,
		YieldCurveInversionWarning: 0,
		YieldCurveInversionCrit:    -0.5,
		TEDSpreadWarning:           0.5,
		TEDSpreadCritical:          1.0,
		DXYElevated:                105,
		DXYCritical:                110,
		USDJPYWarning:              140,
		USDJPYCritical:             130,
		KREWeeklyWarning:           -7,
		KREWeeklyCritical:          -15,
		SilverWeeklyWarning:        8,
		SilverWeeklyCritical:       15,
		FedBalanceWeeklyWarning:    1.5,
		FedBalanceWeeklyCritical:   3,

		SourceWeightStocktwits: 1.0,
		SourceWeightForum:      1.2,
		SourceWeightCrypto:     1.0,
		ForumSubgroups:         []string{"wallstreetbets", "stocks", "options"},
	}
}
