package state

import "time"

// Verdict is the per-symbol LLM research outcome.
type Verdict string

const (
	VerdictBuy  Verdict = "BUY"
	VerdictSkip Verdict = "SKIP"
	VerdictWait Verdict = "WAIT"
)

// Valid reports whether the verdict is one of the known values. Malformed LLM
// output must never coerce into a tradeable verdict.
func (v Verdict) Valid() bool {
	return v == VerdictBuy || v == VerdictSkip || v == VerdictWait
}

// EntryQuality grades how clean the entry looks to the research model.
type EntryQuality string

const (
	QualityExcellent EntryQuality = "excellent"
	QualityGood      EntryQuality = "good"
	QualityFair      EntryQuality = "fair"
	QualityPoor      EntryQuality = "poor"
)

// Tier is the DEX age-band category.
type Tier string

const (
	TierMicrospray  Tier = "microspray"
	TierBreakout    Tier = "breakout"
	TierLottery     Tier = "lottery"
	TierEarly       Tier = "early"
	TierEstablished Tier = "established"
)

// TierPriority orders tiers most-conservative-first. When a token qualifies
// for several tiers the highest priority wins.
func TierPriority(t Tier) int {
	switch t {
	case TierEstablished:
		return 5
	case TierEarly:
		return 4
	case TierLottery:
		return 3
	case TierBreakout:
		return 2
	case TierMicrospray:
		return 1
	default:
		return 0
	}
}

// ExitReason tags a completed DEX trade.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "take_profit"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitLostMomentum ExitReason = "lost_momentum"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitManual       ExitReason = "manual"
)

// Signal is one scored observation of interest from one source.
type Signal struct {
	Symbol            string    `json:"symbol"`
	Source            string    `json:"source"`
	Sentiment         float64   `json:"sentiment"`          // raw, in [-1,+1]
	WeightedSentiment float64   `json:"weighted_sentiment"` // after source/freshness/flair multipliers
	Volume            int       `json:"volume"`
	Timestamp         time.Time `json:"timestamp"`
	Upvotes           int       `json:"upvotes,omitempty"`
	MomentumPct       float64   `json:"momentum_pct,omitempty"`
	IsCrypto          bool      `json:"is_crypto,omitempty"`
	Price             float64   `json:"price,omitempty"`
	Reason            string    `json:"reason,omitempty"`
}

// LegitimacySignals are the boolean components of a DEX token's legitimacy
// score.
type LegitimacySignals struct {
	HasWebsite  bool `json:"hasWebsite"`
	HasTwitter  bool `json:"hasTwitter"`
	HasTelegram bool `json:"hasTelegram"`
	BoostCount  int  `json:"boostCount"`
	SellsExist  bool `json:"sellsExist"`
}

// DexMomentumSignal is a scanner candidate on the Solana DEX side.
type DexMomentumSignal struct {
	TokenAddress      string            `json:"token_address"`
	PairAddress       string            `json:"pair_address"`
	Symbol            string            `json:"symbol"`
	PriceUsd          float64           `json:"price_usd"`
	PriceChange5m     float64           `json:"price_change_5m"`
	PriceChange1h     float64           `json:"price_change_1h"`
	PriceChange6h     float64           `json:"price_change_6h"`
	PriceChange24h    float64           `json:"price_change_24h"`
	Volume5m          float64           `json:"volume_5m"`
	Volume1h          float64           `json:"volume_1h"`
	Volume6h          float64           `json:"volume_6h"`
	Volume24h         float64           `json:"volume_24h"`
	LiquidityUsd      float64           `json:"liquidity_usd"`
	MarketCap         float64           `json:"market_cap"`
	AgeHours          float64           `json:"age_hours"`
	AgeDays           float64           `json:"age_days"`
	BuyRatio1h        float64           `json:"buy_ratio_1h"`
	BuyRatio24h       float64           `json:"buy_ratio_24h"`
	TxnCount24h       int               `json:"txn_count_24h"`
	Sells24h          int               `json:"sells_24h"`
	MomentumScore     float64           `json:"momentum_score"`
	LegitimacyScore   float64           `json:"legitimacy_score"`
	LegitimacySignals LegitimacySignals `json:"legitimacy_signals"`
	Tier              Tier              `json:"tier"`
}

// Position mirrors a brokerage position.
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	Side          string  `json:"side"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
	CurrentPrice  float64 `json:"current_price"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	AssetClass    string  `json:"asset_class"` // us_equity, us_option, crypto
}

// PositionEntry is the agent-side record of why and when a symbol was bought.
type PositionEntry struct {
	Symbol            string    `json:"symbol"`
	EntryTime         time.Time `json:"entry_time"`
	EntryPrice        float64   `json:"entry_price"`
	EntrySentiment    float64   `json:"entry_sentiment"`
	EntrySocialVolume int       `json:"entry_social_volume"`
	EntrySources      []string  `json:"entry_sources"`
	Reason            string    `json:"reason"`
	PeakPrice         float64   `json:"peak_price"`
	PeakSentiment     float64   `json:"peak_sentiment"`
}

// DexPosition is an open paper position keyed by token address.
type DexPosition struct {
	TokenAddress  string    `json:"token_address"`
	Symbol        string    `json:"symbol"`
	EntryPrice    float64   `json:"entry_price"` // post-slippage
	EntrySol      float64   `json:"entry_sol"`
	EntryTime     time.Time `json:"entry_time"`
	TokenAmount   float64   `json:"token_amount"`
	PeakPrice     float64   `json:"peak_price"`
	EntryMomentum float64   `json:"entry_momentum"`
	EntryLiquidity float64  `json:"entry_liquidity"`
	Tier          Tier      `json:"tier"`
	MissedScans   int       `json:"missed_scans"`
}

// DexTradeRecord is an immutable ledger entry for a completed paper trade.
type DexTradeRecord struct {
	ID           string     `json:"id"`
	TokenAddress string     `json:"token_address"`
	Symbol       string     `json:"symbol"`
	Tier         Tier       `json:"tier"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    float64    `json:"exit_price"`
	EntrySol     float64    `json:"entry_sol"`
	EntryTime    time.Time  `json:"entry_time"`
	ExitTime     time.Time  `json:"exit_time"`
	PnLPct       float64    `json:"pnl_pct"`
	PnLSol       float64    `json:"pnl_sol"`
	ExitReason   ExitReason `json:"exit_reason"`
}

// StopLossCooldown gates re-entry into a token after a stop or trailing exit.
type StopLossCooldown struct {
	ExitPrice      float64   `json:"exit_price"`
	ExitTime       time.Time `json:"exit_time"`
	FallbackExpiry time.Time `json:"fallback_expiry"`
}

// PortfolioSnapshot is one point of the DEX book's value history.
type PortfolioSnapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	TotalValueSol    float64   `json:"total_value_sol"`
	PaperBalanceSol  float64   `json:"paper_balance_sol"`
	PositionValueSol float64   `json:"position_value_sol"`
	RealizedPnLSol   float64   `json:"realized_pnl_sol"`
}

// DexBook is the whole DEX paper-trading sub-state.
type DexBook struct {
	Signals          []DexMomentumSignal          `json:"signals"`
	Positions        map[string]*DexPosition      `json:"positions"`
	TradeHistory     []DexTradeRecord             `json:"trade_history"`
	RealizedPnLSol   float64                      `json:"realized_pnl_sol"`
	PaperBalanceSol  float64                      `json:"paper_balance_sol"`
	PeakBalanceSol   float64                      `json:"peak_balance_sol"`
	PortfolioHistory []PortfolioSnapshot          `json:"portfolio_history"`
	PeakValueSol     float64                      `json:"peak_value_sol"`
	DrawdownPaused   bool                         `json:"drawdown_paused"`
	RecentStopLosses []time.Time                  `json:"recent_stop_losses"`
	CircuitBreakerUntil time.Time                 `json:"circuit_breaker_until"`
	CircuitBreakerSince time.Time                 `json:"circuit_breaker_since"`
	StopLossCooldowns map[string]StopLossCooldown `json:"stop_loss_cooldowns"`
	CurrentLossStreak int                         `json:"current_loss_streak"`
	MaxLossStreak     int                         `json:"max_loss_streak"`
	CurrentWinStreak  int                         `json:"current_win_streak"`
	MaxWinStreak      int                         `json:"max_win_streak"`
	LastScanTime      time.Time                   `json:"last_scan_time"`
}

// CrisisState tracks the macro stress governor.
type CrisisState struct {
	Level             int                 `json:"level"` // 0-3
	Indicators        map[string]*float64 `json:"indicators"`
	Triggered         []string            `json:"triggered"`
	PausedUntil       time.Time           `json:"paused_until"`
	LastLevelChange   time.Time           `json:"last_level_change"`
	ClosedDuringCrisis []string           `json:"closed_during_crisis"`
	ManualOverride    bool                `json:"manual_override"`
}

// CostTracker accumulates LLM spend. All counters are monotonically
// nondecreasing.
type CostTracker struct {
	TotalUSD     float64 `json:"total_usd"`
	APICalls     int     `json:"api_calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	// TodayUSD is the spend since the last midnight rollover; the daily
	// budget gate reads this, not the lifetime total.
	TodayUSD float64 `json:"today_usd"`
}

// SignalResearch is a cached per-symbol LLM verdict.
type SignalResearch struct {
	Verdict      Verdict      `json:"verdict"`
	Confidence   float64      `json:"confidence"`
	EntryQuality EntryQuality `json:"entry_quality"`
	Reasoning    string       `json:"reasoning"`
	RedFlags     []string     `json:"red_flags"`
	Catalysts    []string     `json:"catalysts"`
	Timestamp    time.Time    `json:"timestamp"`
}

// StalenessAnalysis is the cached result of the stale-position scoring.
type StalenessAnalysis struct {
	Score     float64   `json:"score"`
	IsStale   bool      `json:"is_stale"`
	Reasons   []string  `json:"reasons"`
	Timestamp time.Time `json:"timestamp"`
}

// TwitterConfirmation records whether breaking headlines confirm a thesis.
type TwitterConfirmation struct {
	Confirms  bool      `json:"confirms"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// AnalystRecommendation is one row of the batch analyst output.
type AnalystRecommendation struct {
	Action           string  `json:"action"` // BUY, SELL, HOLD
	Symbol           string  `json:"symbol"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	SuggestedSizePct float64 `json:"suggested_size_pct,omitempty"`
}

// AnalystReport is the full batch analyst output.
type AnalystReport struct {
	Recommendations    []AnalystRecommendation `json:"recommendations"`
	MarketSummary      string                  `json:"market_summary"`
	HighConvictionPlays []string               `json:"high_conviction_plays"`
	Timestamp          time.Time               `json:"timestamp"`
}

// PremarketPlan is the 09:25 plan executed at the open.
type PremarketPlan struct {
	Report    *AnalystReport `json:"report"`
	CreatedAt time.Time      `json:"created_at"`
}

// LogEntry is one row of the in-state log ring buffer.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}
