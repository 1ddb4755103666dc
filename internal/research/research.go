// Package research runs the LLM calls: cheap per-symbol verdicts with TTL
// caches and the smart batch analyst, with token cost accounting.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/state"
)

const (
	signalResearchTTL = 180 * time.Second
	cryptoResearchTTL = 300 * time.Second
)

// Researcher wraps the LLM client with caching and parsing. All methods
// return nil research on failure; a nil result means "skip this opportunity",
// never a default verdict.
type Researcher struct {
	client *Client
	log    *logging.Logger
}

func NewResearcher(client *Client, log *logging.Logger) *Researcher {
	return &Researcher{client: client, log: log.WithComponent("research")}
}

// Candidate is an aggregated per-symbol view of the signal cache.
type Candidate struct {
	Symbol            string   `json:"symbol"`
	WeightedSentiment float64  `json:"weighted_sentiment"`
	Volume            int      `json:"volume"`
	Sources           []string `json:"sources"`
	Price             float64  `json:"price,omitempty"`
	IsCrypto          bool     `json:"is_crypto,omitempty"`
}

// AggregateCandidates collapses the signal cache to one row per symbol,
// strongest first.
func AggregateCandidates(signals []state.Signal) []Candidate {
	bySymbol := map[string]*Candidate{}
	var order []string
	for _, sig := range signals {
		c, ok := bySymbol[sig.Symbol]
		if !ok {
			c = &Candidate{Symbol: sig.Symbol, Price: sig.Price, IsCrypto: sig.IsCrypto}
			bySymbol[sig.Symbol] = c
			order = append(order, sig.Symbol)
		}
		c.WeightedSentiment += sig.WeightedSentiment
		c.Volume += sig.Volume
		found := false
		for _, s := range c.Sources {
			if s == sig.Source {
				found = true
				break
			}
		}
		if !found {
			c.Sources = append(c.Sources, sig.Source)
		}
		if c.Price == 0 && sig.Price > 0 {
			c.Price = sig.Price
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, sym := range order {
		out = append(out, *bySymbol[sym])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].WeightedSentiment) > math.Abs(out[j].WeightedSentiment)
	})
	return out
}

func (r *Researcher) overBudget(st *state.AgentState) bool {
	budget := st.Config.LLMDailyBudgetUSD
	return budget > 0 && st.Costs.TodayUSD >= budget
}

// ResearchSignal returns the cached or freshly fetched verdict for a symbol.
// Cache TTL is 180 s.
func (r *Researcher) ResearchSignal(ctx context.Context, st *state.AgentState, cand Candidate) *state.SignalResearch {
	now := time.Now()
	if cached, ok := st.SignalResearch[cand.Symbol]; ok && now.Sub(cached.Timestamp) < signalResearchTTL {
		return cached
	}
	res := r.fetchVerdict(ctx, st, st.Config.LLMCheapModel, cand)
	if res != nil {
		st.SignalResearch[cand.Symbol] = res
	}
	return res
}

// ResearchCrypto is the crypto-side verdict with a longer 300 s TTL.
func (r *Researcher) ResearchCrypto(ctx context.Context, st *state.AgentState, cand Candidate) *state.SignalResearch {
	now := time.Now()
	if cached, ok := st.SignalResearch[cand.Symbol]; ok && now.Sub(cached.Timestamp) < cryptoResearchTTL {
		return cached
	}
	cand.IsCrypto = true
	res := r.fetchVerdict(ctx, st, st.Config.LLMCheapModel, cand)
	if res != nil {
		st.SignalResearch[cand.Symbol] = res
	}
	return res
}

// ResearchPosition refreshes the verdict for a held symbol, cached per
// position_research_secs.
func (r *Researcher) ResearchPosition(ctx context.Context, st *state.AgentState, cand Candidate) *state.SignalResearch {
	ttl := time.Duration(st.Config.PositionResearchSecs) * time.Second
	now := time.Now()
	if cached, ok := st.PositionResearch[cand.Symbol]; ok && now.Sub(cached.Timestamp) < ttl {
		return cached
	}
	res := r.fetchVerdict(ctx, st, st.Config.LLMCheapModel, cand)
	if res != nil {
		st.PositionResearch[cand.Symbol] = res
	}
	return res
}

// ResearchTopSignals researches the strongest n aggregated candidates,
// reusing hot cache entries.
func (r *Researcher) ResearchTopSignals(ctx context.Context, st *state.AgentState, n int) []Candidate {
	candidates := AggregateCandidates(st.SignalCache)
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	for _, cand := range candidates {
		r.ResearchSignal(ctx, st, cand)
	}
	return candidates
}

func (r *Researcher) fetchVerdict(ctx context.Context, st *state.AgentState, model string, cand Candidate) *state.SignalResearch {
	if r.overBudget(st) {
		r.log.Warn("llm_budget_exhausted", "symbol", cand.Symbol, "total_usd", st.Costs.TotalUSD)
		return nil
	}

	content, usage, err := r.client.Complete(ctx, CompleteRequest{
		Model:       model,
		System:      signalSystemPrompt,
		User:        signalUserPrompt(cand),
		MaxTokens:   st.Config.LLMMaxTokens,
		Temperature: st.Config.LLMTemperature,
	})
	st.RecordCost(CostUSD(model, usage), usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		r.log.Warn("research_call_failed", "symbol", cand.Symbol, "error", err.Error())
		return nil
	}

	res, err := parseResearch(content)
	if err != nil {
		r.log.Warn("research_parse_failed", "symbol", cand.Symbol, "error", err.Error())
		return nil
	}
	return res
}

// parseResearch decodes a verdict payload. Anything malformed is an error;
// callers map that to "no research".
func parseResearch(content string) (*state.SignalResearch, error) {
	var raw struct {
		Verdict      string   `json:"verdict"`
		Confidence   float64  `json:"confidence"`
		EntryQuality string   `json:"entry_quality"`
		Reasoning    string   `json:"reasoning"`
		RedFlags     []string `json:"red_flags"`
		Catalysts    []string `json:"catalysts"`
	}
	if err := json.Unmarshal([]byte(StripMarkdown(content)), &raw); err != nil {
		return nil, fmt.Errorf("decode research: %w", err)
	}

	verdict := state.Verdict(strings.ToUpper(strings.TrimSpace(raw.Verdict)))
	if !verdict.Valid() {
		return nil, fmt.Errorf("invalid verdict %q", raw.Verdict)
	}
	if math.IsNaN(raw.Confidence) {
		return nil, fmt.Errorf("non-finite confidence")
	}
	if raw.Confidence < 0 {
		raw.Confidence = 0
	}
	if raw.Confidence > 1 {
		raw.Confidence = 1
	}

	quality := state.EntryQuality(strings.ToLower(strings.TrimSpace(raw.EntryQuality)))
	switch quality {
	case state.QualityExcellent, state.QualityGood, state.QualityFair, state.QualityPoor:
	default:
		quality = state.QualityPoor
	}

	return &state.SignalResearch{
		Verdict:      verdict,
		Confidence:   raw.Confidence,
		EntryQuality: quality,
		Reasoning:    raw.Reasoning,
		RedFlags:     raw.RedFlags,
		Catalysts:    raw.Catalysts,
		Timestamp:    time.Now(),
	}, nil
}

// AnalystInput is the compact view fed to the batch analyst.
type AnalystInput struct {
	CashUSD    float64           `json:"cash_usd"`
	EquityUSD  float64           `json:"equity_usd"`
	Positions  []AnalystPosition `json:"positions"`
	Candidates []Candidate       `json:"candidates"`
	Signals    []state.Signal    `json:"signals"`
}

// AnalystPosition is one held position with its hold time.
type AnalystPosition struct {
	Symbol       string  `json:"symbol"`
	PlPct        float64 `json:"pl_pct"`
	MarketValue  float64 `json:"market_value"`
	HoldHours    float64 `json:"hold_hours"`
	EntryReason  string  `json:"entry_reason,omitempty"`
}

// Analyze runs the smart-model batch pass. Candidates are capped at 10 and
// raw signals at 20 before prompting.
func (r *Researcher) Analyze(ctx context.Context, st *state.AgentState, input AnalystInput) *state.AnalystReport {
	if r.overBudget(st) {
		r.log.Warn("llm_budget_exhausted", "phase", "analyst", "total_usd", st.Costs.TotalUSD)
		return nil
	}
	if len(input.Candidates) > 10 {
		input.Candidates = input.Candidates[:10]
	}
	if len(input.Signals) > 20 {
		input.Signals = input.Signals[:20]
	}

	model := st.Config.LLMSmartModel
	content, usage, err := r.client.Complete(ctx, CompleteRequest{
		Model:       model,
		System:      analystSystemPrompt,
		User:        analystUserPrompt(input),
		MaxTokens:   st.Config.LLMMaxTokens * 2,
		Temperature: st.Config.LLMTemperature,
	})
	st.RecordCost(CostUSD(model, usage), usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		r.log.Warn("analyst_call_failed", "error", err.Error())
		return nil
	}

	report, err := parseAnalystReport(content)
	if err != nil {
		r.log.Warn("analyst_parse_failed", "error", err.Error())
		return nil
	}
	return report
}

func parseAnalystReport(content string) (*state.AnalystReport, error) {
	var raw struct {
		Recommendations []struct {
			Action           string  `json:"action"`
			Symbol           string  `json:"symbol"`
			Confidence       float64 `json:"confidence"`
			Reasoning        string  `json:"reasoning"`
			SuggestedSizePct float64 `json:"suggested_size_pct"`
		} `json:"recommendations"`
		MarketSummary       string   `json:"market_summary"`
		HighConvictionPlays []string `json:"high_conviction_plays"`
	}
	if err := json.Unmarshal([]byte(StripMarkdown(content)), &raw); err != nil {
		return nil, fmt.Errorf("decode analyst report: %w", err)
	}

	report := &state.AnalystReport{
		MarketSummary:       raw.MarketSummary,
		HighConvictionPlays: raw.HighConvictionPlays,
		Timestamp:           time.Now(),
	}
	for _, rec := range raw.Recommendations {
		action := strings.ToUpper(strings.TrimSpace(rec.Action))
		if action != "BUY" && action != "SELL" && action != "HOLD" {
			continue
		}
		if rec.Symbol == "" || math.IsNaN(rec.Confidence) {
			continue
		}
		if rec.Confidence < 0 {
			rec.Confidence = 0
		}
		if rec.Confidence > 1 {
			rec.Confidence = 1
		}
		report.Recommendations = append(report.Recommendations, state.AnalystRecommendation{
			Action:           action,
			Symbol:           strings.ToUpper(rec.Symbol),
			Confidence:       rec.Confidence,
			Reasoning:        rec.Reasoning,
			SuggestedSizePct: rec.SuggestedSizePct,
		})
	}
	return report, nil
}

// StripMarkdown removes code fences and surrounding prose so fenced JSON
// still parses.
func StripMarkdown(content string) string {
	s := strings.TrimSpace(content)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	// Without fences, trim to the outermost braces.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
