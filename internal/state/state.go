package state

import (
	"math"
	"sort"
	"time"

	"social-trading-agent/config"
)

// Caps for the bounded collections inside AgentState.
const (
	SignalCacheCap      = 200
	SignalMaxAge        = 24 * time.Hour
	LogCap              = 500
	PortfolioHistoryCap = 100
)

// AgentState is the single persistent snapshot. It has exactly one writer:
// the scheduler tick, which the control-plane handlers also run under.
type AgentState struct {
	SchemaVersion int                `json:"schema_version"`
	Enabled       bool               `json:"enabled"`
	Config        config.AgentConfig `json:"config"`

	SignalCache    []Signal                  `json:"signal_cache"`
	PositionEntries map[string]*PositionEntry `json:"position_entries"`
	SocialHistory  map[string][]int          `json:"social_history"` // per-symbol recent volumes
	Logs           []LogEntry                `json:"logs"`
	Costs          CostTracker               `json:"cost_tracker"`

	LastDataGatherRun time.Time `json:"last_data_gather_run"`
	LastResearchRun   time.Time `json:"last_research_run"`
	LastAnalystRun    time.Time `json:"last_analyst_run"`
	LastCrisisCheck   time.Time `json:"last_crisis_check"`
	LastTick          time.Time `json:"last_tick"`

	SignalResearch    map[string]*SignalResearch     `json:"signal_research"`
	PositionResearch  map[string]*SignalResearch     `json:"position_research"`
	Staleness         map[string]*StalenessAnalysis  `json:"staleness_analysis"`
	TwitterReads      map[string]*TwitterConfirmation `json:"twitter_confirmations"`
	TwitterReadCount  int                            `json:"twitter_read_count"`
	TwitterCountReset time.Time                      `json:"twitter_count_reset"`

	Plan *PremarketPlan `json:"premarket_plan"`
	Dex  DexBook        `json:"dex"`

	Crisis CrisisState `json:"crisis_state"`
}

// NewAgentState builds the default state written on first boot.
func NewAgentState(cfg *config.AgentConfig) *AgentState {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &AgentState{
		SchemaVersion:   1,
		Enabled:         false,
		Config:          *cfg,
		SignalCache:     []Signal{},
		PositionEntries: make(map[string]*PositionEntry),
		SocialHistory:   make(map[string][]int),
		Logs:            []LogEntry{},
		SignalResearch:  make(map[string]*SignalResearch),
		PositionResearch: make(map[string]*SignalResearch),
		Staleness:       make(map[string]*StalenessAnalysis),
		TwitterReads:    make(map[string]*TwitterConfirmation),
	}
	s.Dex = NewDexBook(cfg.DexStartingBalanceSol)
	s.Crisis = CrisisState{Indicators: make(map[string]*float64)}
	return s
}

// NewDexBook returns a zeroed DEX paper book with the given starting balance.
func NewDexBook(startingBalance float64) DexBook {
	if startingBalance <= 0 || math.IsNaN(startingBalance) {
		startingBalance = 10
	}
	return DexBook{
		Signals:           []DexMomentumSignal{},
		Positions:         make(map[string]*DexPosition),
		TradeHistory:      []DexTradeRecord{},
		PaperBalanceSol:   startingBalance,
		PeakBalanceSol:    startingBalance,
		PeakValueSol:      startingBalance,
		PortfolioHistory:  []PortfolioSnapshot{},
		RecentStopLosses:  []time.Time{},
		StopLossCooldowns: make(map[string]StopLossCooldown),
	}
}

// Normalize repairs nil maps/slices and non-finite numerics after a load.
// Stored snapshots from older schema versions may miss whole sub-objects.
func (s *AgentState) Normalize() {
	if s.SignalCache == nil {
		s.SignalCache = []Signal{}
	}
	if s.PositionEntries == nil {
		s.PositionEntries = make(map[string]*PositionEntry)
	}
	if s.SocialHistory == nil {
		s.SocialHistory = make(map[string][]int)
	}
	if s.Logs == nil {
		s.Logs = []LogEntry{}
	}
	if s.SignalResearch == nil {
		s.SignalResearch = make(map[string]*SignalResearch)
	}
	if s.PositionResearch == nil {
		s.PositionResearch = make(map[string]*SignalResearch)
	}
	if s.Staleness == nil {
		s.Staleness = make(map[string]*StalenessAnalysis)
	}
	if s.TwitterReads == nil {
		s.TwitterReads = make(map[string]*TwitterConfirmation)
	}
	if s.Crisis.Indicators == nil {
		s.Crisis.Indicators = make(map[string]*float64)
	}
	if s.Crisis.Level < 0 || s.Crisis.Level > 3 {
		s.Crisis.Level = 0
	}

	d := &s.Dex
	if d.Signals == nil {
		d.Signals = []DexMomentumSignal{}
	}
	if d.Positions == nil {
		d.Positions = make(map[string]*DexPosition)
	}
	if d.TradeHistory == nil {
		d.TradeHistory = []DexTradeRecord{}
	}
	if d.PortfolioHistory == nil {
		d.PortfolioHistory = []PortfolioSnapshot{}
	}
	if d.RecentStopLosses == nil {
		d.RecentStopLosses = []time.Time{}
	}
	if d.StopLossCooldowns == nil {
		d.StopLossCooldowns = make(map[string]StopLossCooldown)
	}
	if math.IsNaN(d.PaperBalanceSol) || math.IsInf(d.PaperBalanceSol, 0) || d.PaperBalanceSol < 0 {
		d.PaperBalanceSol = s.Config.DexStartingBalanceSol
	}
	if math.IsNaN(d.PeakBalanceSol) || d.PeakBalanceSol < d.PaperBalanceSol {
		d.PeakBalanceSol = d.PaperBalanceSol
	}
	if math.IsNaN(d.RealizedPnLSol) || math.IsInf(d.RealizedPnLSol, 0) {
		d.RealizedPnLSol = 0
	}
	if math.IsNaN(d.PeakValueSol) || d.PeakValueSol <= 0 {
		d.PeakValueSol = d.PaperBalanceSol
	}
	if math.IsNaN(s.Costs.TotalUSD) || s.Costs.TotalUSD < 0 {
		s.Costs.TotalUSD = 0
	}
	if math.IsNaN(s.Costs.TodayUSD) || s.Costs.TodayUSD < 0 {
		s.Costs.TodayUSD = 0
	}
}

// ReplaceSignalCache applies the merge policy: drop signals older than 24 h,
// sort by |weighted sentiment| descending, truncate to the cache cap.
func (s *AgentState) ReplaceSignalCache(signals []Signal, now time.Time) {
	fresh := signals[:0:0]
	for _, sig := range signals {
		if now.Sub(sig.Timestamp) < SignalMaxAge {
			fresh = append(fresh, sig)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return math.Abs(fresh[i].WeightedSentiment) > math.Abs(fresh[j].WeightedSentiment)
	})
	if len(fresh) > SignalCacheCap {
		fresh = fresh[:SignalCacheCap]
	}
	s.SignalCache = fresh
}

// AppendLog pushes onto the in-state ring buffer, evicting the oldest entry
// past the cap.
func (s *AgentState) AppendLog(level, event string, fields map[string]interface{}) {
	s.Logs = append(s.Logs, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Event:     event,
		Fields:    fields,
	})
	if len(s.Logs) > LogCap {
		s.Logs = s.Logs[len(s.Logs)-LogCap:]
	}
}

// RecordCost adds an LLM call to the tracker. Negative or non-finite inputs
// are dropped so the counters stay monotone.
func (s *AgentState) RecordCost(usd float64, inputTokens, outputTokens int) {
	if math.IsNaN(usd) || math.IsInf(usd, 0) || usd < 0 {
		return
	}
	s.Costs.TotalUSD += usd
	s.Costs.TodayUSD += usd
	s.Costs.APICalls++
	if inputTokens > 0 {
		s.Costs.InputTokens += inputTokens
	}
	if outputTokens > 0 {
		s.Costs.OutputTokens += outputTokens
	}
}

// SignalsFor returns cached signals for a symbol, freshest first.
func (s *AgentState) SignalsFor(symbol string) []Signal {
	var out []Signal
	for _, sig := range s.SignalCache {
		if sig.Symbol == symbol {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// AppendPortfolioSnapshot records a DEX book valuation point (cap 100) and
// maintains the high-water mark used by the drawdown guard.
func (d *DexBook) AppendPortfolioSnapshot(snap PortfolioSnapshot) {
	d.PortfolioHistory = append(d.PortfolioHistory, snap)
	if len(d.PortfolioHistory) > PortfolioHistoryCap {
		d.PortfolioHistory = d.PortfolioHistory[len(d.PortfolioHistory)-PortfolioHistoryCap:]
	}
	if snap.TotalValueSol > d.PeakValueSol {
		d.PeakValueSol = snap.TotalValueSol
	}
}

// OpenTierCounts returns how many positions are open per tier.
func (d *DexBook) OpenTierCounts() map[Tier]int {
	counts := make(map[Tier]int)
	for _, p := range d.Positions {
		counts[p.Tier]++
	}
	return counts
}

// ResetTwitterCounterIfDue zeroes the daily read counter every 24 h.
func (s *AgentState) ResetTwitterCounterIfDue(now time.Time) {
	if s.TwitterCountReset.IsZero() || now.Sub(s.TwitterCountReset) >= 24*time.Hour {
		s.TwitterReadCount = 0
		s.TwitterCountReset = now
	}
}
