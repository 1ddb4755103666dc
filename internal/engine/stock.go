// Package engine holds the stock, options, and crypto trading loops. Each
// loop reads the crisis level and the research caches out of AgentState and
// issues orders through the brokerage provider.
package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"social-trading-agent/internal/crisis"
	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/research"
	"social-trading-agent/internal/state"
)

const (
	minOrderUsd      = 10
	entryCandidateCap = 3
)

// StockEngine runs the analyst loop: exits, researched entries, and batch
// analyst recommendations.
type StockEngine struct {
	brokerage  providers.Brokerage
	data       providers.MarketData
	options    *OptionsEngine
	researcher *research.Researcher
	twitter    providers.TwitterFeed
	bus        *events.Bus
	log        *logging.Logger
}

func NewStockEngine(brokerage providers.Brokerage, data providers.MarketData, options *OptionsEngine, researcher *research.Researcher, twitter providers.TwitterFeed, bus *events.Bus, log *logging.Logger) *StockEngine {
	return &StockEngine{
		brokerage:  brokerage,
		data:       data,
		options:    options,
		researcher: researcher,
		twitter:    twitter,
		bus:        bus,
		log:        log.WithComponent("stock-engine"),
	}
}

// Run executes one exit + entry pass. The market must already be confirmed
// open by the scheduler.
func (e *StockEngine) Run(ctx context.Context, st *state.AgentState, account *providers.Account, positions []providers.BrokeragePosition) {
	e.exitPhase(ctx, st, positions)
	e.entryPhase(ctx, st, account, positions)
}

// plPct derives the percentage P&L from the brokerage fields. Cost basis is
// market value minus unrealized P&L.
func plPct(p providers.BrokeragePosition) float64 {
	basis := p.MarketValue - p.UnrealizedPL
	if basis == 0 {
		return 0
	}
	return p.UnrealizedPL / basis * 100
}

func (e *StockEngine) exitPhase(ctx context.Context, st *state.AgentState, positions []providers.BrokeragePosition) {
	cfg := &st.Config
	now := time.Now()

	// Level 1 tightens the stop; an operator override restores the normal one.
	stopLossPct := cfg.StopLossPct
	if st.Crisis.Level == 1 && !st.Crisis.ManualOverride &&
		cfg.CrisisLevel1StopLossPct > 0 && cfg.CrisisLevel1StopLossPct < stopLossPct {
		stopLossPct = cfg.CrisisLevel1StopLossPct
	}

	for _, pos := range positions {
		if pos.AssetClass == "us_option" {
			continue
		}
		pl := plPct(pos)

		var reason string
		switch {
		case pl >= cfg.TakeProfitPct:
			reason = "take profit"
		case pl <= -stopLossPct:
			reason = "stop loss"
		case cfg.StaleEnabled:
			if analysis := e.checkStaleness(st, pos, pl, now); analysis != nil && analysis.IsStale {
				reason = fmt.Sprintf("stale position (score %.0f)", analysis.Score)
			}
		}
		if reason == "" {
			continue
		}

		if err := e.brokerage.ClosePosition(ctx, pos.Symbol); err != nil {
			e.log.Error("close_failed", "symbol", pos.Symbol, "reason", reason, "error", err.Error())
			continue
		}
		e.log.Info("position_closed", "symbol", pos.Symbol, "pl_pct", pl, "reason", reason)
		st.AppendLog("INFO", "position_closed", map[string]interface{}{
			"symbol": pos.Symbol, "pl_pct": pl, "reason": reason,
		})
		delete(st.PositionEntries, pos.Symbol)
		delete(st.PositionResearch, pos.Symbol)
		delete(st.Staleness, pos.Symbol)
		if e.bus != nil {
			e.bus.PublishTradeExit("stock", pos.Symbol, pl, reason)
		}
	}
}

func (e *StockEngine) checkStaleness(st *state.AgentState, pos providers.BrokeragePosition, pl float64, now time.Time) *state.StalenessAnalysis {
	entry, ok := st.PositionEntries[pos.Symbol]
	if !ok {
		return nil
	}

	currentVolume := 0
	var lastMention time.Time
	for _, sig := range st.SignalsFor(pos.Symbol) {
		currentVolume += sig.Volume
		if sig.Timestamp.After(lastMention) {
			lastMention = sig.Timestamp
		}
	}

	analysis := analyzeStaleness(&st.Config, stalenessInput{
		HoldTime:          now.Sub(entry.EntryTime),
		PlPct:             pl,
		EntrySocialVolume: entry.EntrySocialVolume,
		CurrentVolume:     currentVolume,
		LastMention:       lastMention,
		Now:               now,
	})
	st.Staleness[pos.Symbol] = analysis
	return analysis
}

func (e *StockEngine) entryPhase(ctx context.Context, st *state.AgentState, account *providers.Account, positions []providers.BrokeragePosition) {
	cfg := &st.Config
	if len(positions) >= cfg.MaxPositions || len(st.SignalCache) == 0 {
		return
	}

	held := heldSet(positions)
	candidates := e.buildCandidates(st, held)

	opened := 0
	for _, cand := range candidates {
		if len(positions)+opened >= cfg.MaxPositions {
			break
		}
		confidence := e.adjustWithTwitter(ctx, st, cand.symbol, cand.confidence)
		if confidence < cfg.MinAnalystConfidence {
			e.log.Debug("entry_rejected", "symbol", cand.symbol, "confidence", confidence)
			continue
		}

		if e.options != nil && cfg.OptionsEnabled &&
			confidence >= cfg.OptionsMinConfidence && cand.quality == state.QualityExcellent {
			// Non-blocking: an options failure never cancels the share entry.
			if err := e.options.TryEntry(ctx, st, account, cand.symbol, "bullish"); err != nil {
				e.log.Warn("options_entry_failed", "symbol", cand.symbol, "error", err.Error())
			}
		}

		if e.Buy(ctx, st, BuyRequest{
			Symbol:     cand.symbol,
			Confidence: confidence,
			Cash:       account.Cash,
			Reason:     cand.reason,
		}) {
			opened++
			held[cand.symbol] = true
		}
	}
}

type entryCandidate struct {
	symbol     string
	confidence float64
	quality    state.EntryQuality
	reason     string
}

func (e *StockEngine) buildCandidates(st *state.AgentState, held map[string]bool) []entryCandidate {
	cfg := &st.Config
	var out []entryCandidate
	for symbol, res := range st.SignalResearch {
		if res.Verdict != state.VerdictBuy || res.Confidence < cfg.MinAnalystConfidence {
			continue
		}
		if held[symbol] {
			continue
		}
		isCrypto := strings.Contains(symbol, "/")
		if !isCrypto && !cfg.StocksEnabled {
			continue
		}
		if isCrypto {
			// Crypto entries belong to the crypto engine.
			continue
		}
		if sent := bestSentiment(st, symbol); sent < cfg.MinSentimentScore {
			e.log.Debug("entry_rejected", "symbol", symbol, "sentiment", sent)
			continue
		}
		out = append(out, entryCandidate{
			symbol:     symbol,
			confidence: res.Confidence,
			quality:    res.EntryQuality,
			reason:     res.Reasoning,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].confidence > out[j].confidence })
	if len(out) > entryCandidateCap {
		out = out[:entryCandidateCap]
	}
	return out
}

// bestSentiment returns the strongest weighted sentiment among the symbol's
// cached signals. No signals means no sentiment backing, which reads as 0.
func bestSentiment(st *state.AgentState, symbol string) float64 {
	best := 0.0
	for _, sig := range st.SignalsFor(symbol) {
		if sig.WeightedSentiment > best {
			best = sig.WeightedSentiment
		}
	}
	return best
}

// adjustWithTwitter boosts confirming theses by 15% (capped at 1.0) and
// scales contradicting ones by 0.85.
func (e *StockEngine) adjustWithTwitter(ctx context.Context, st *state.AgentState, symbol string, confidence float64) float64 {
	if e.researcher == nil || e.twitter == nil || !st.Config.TwitterEnabled {
		return confidence
	}
	conf := e.researcher.ConfirmTwitter(ctx, st, e.twitter, symbol)
	if conf == nil {
		return confidence
	}
	if conf.Confirms {
		confidence *= 1.15
		if confidence > 1 {
			confidence = 1
		}
	} else {
		confidence *= 0.85
	}
	return confidence
}

// BuyRequest carries the buy-contract inputs.
type BuyRequest struct {
	Symbol     string
	Confidence float64
	Cash       float64
	IsCrypto   bool
	MaxValue   float64 // 0 means config.max_position_value
	Reason     string
}

// Buy enforces the execution contract: pre-flight invariants, crisis-scaled
// sizing, and bounded notional. Any failed check logs buy_blocked and
// returns false without mutating state.
func (e *StockEngine) Buy(ctx context.Context, st *state.AgentState, req BuyRequest) bool {
	cfg := &st.Config
	blocked := func(why string, args ...interface{}) bool {
		kv := append([]interface{}{"symbol", req.Symbol, "why", why}, args...)
		e.log.Warn("buy_blocked", kv...)
		return false
	}

	if req.Symbol == "" {
		return blocked("empty symbol")
	}
	if req.Cash <= 0 {
		return blocked("no cash", "cash", req.Cash)
	}
	if math.IsNaN(req.Confidence) || math.IsInf(req.Confidence, 0) || req.Confidence <= 0 || req.Confidence > 1 {
		return blocked("confidence out of range", "confidence", req.Confidence)
	}
	if st.Crisis.Level >= 2 && !st.Crisis.ManualOverride {
		return blocked("crisis level blocks entries", "level", st.Crisis.Level)
	}
	if !req.IsCrypto && !e.exchangeAllowed(ctx, req.Symbol, cfg.AllowedExchanges) {
		return blocked("exchange not allowed")
	}

	sizePct := math.Min(20, cfg.PositionSizePctCash)
	multiplier := crisis.SizeMultiplier(st.Crisis.Level, cfg.CrisisLevel1SizeReduction)
	if st.Crisis.ManualOverride {
		// The operator has taken over: full size, same as level 0.
		multiplier = 1
	}
	maxValue := req.MaxValue
	if maxValue <= 0 {
		maxValue = cfg.MaxPositionValue
	}
	positionUsd := math.Min(
		req.Cash*sizePct/100*req.Confidence*multiplier,
		maxValue*multiplier,
	)
	if math.IsNaN(positionUsd) || math.IsInf(positionUsd, 0) {
		return blocked("non-finite size")
	}
	if positionUsd < minOrderUsd {
		return blocked("size below minimum", "usd", positionUsd)
	}
	if positionUsd > maxValue*1.01 {
		return blocked("size above cap", "usd", positionUsd)
	}

	tif := "day"
	if req.IsCrypto {
		tif = "gtc"
	}
	order := providers.OrderRequest{
		Symbol:      req.Symbol,
		Notional:    math.Round(positionUsd*100) / 100,
		Side:        "buy",
		Type:        "market",
		TimeInForce: tif,
	}
	ack, err := e.brokerage.CreateOrder(ctx, order)
	if err != nil {
		e.log.Error("buy_failed", "symbol", req.Symbol, "usd", order.Notional, "error", err.Error())
		return false
	}

	e.log.Info("position_opened", "symbol", req.Symbol, "usd", order.Notional, "order_id", ack.ID, "confidence", req.Confidence)
	st.AppendLog("INFO", "position_opened", map[string]interface{}{
		"symbol": req.Symbol, "usd": order.Notional, "confidence": req.Confidence,
	})
	e.recordEntry(st, req)
	if e.bus != nil {
		e.bus.PublishTradeEntry("stock", req.Symbol, order.Notional, req.Reason)
	}
	return true
}

func (e *StockEngine) recordEntry(st *state.AgentState, req BuyRequest) {
	var sentiment float64
	var volume int
	sources := map[string]bool{}
	var price float64
	for _, sig := range st.SignalsFor(req.Symbol) {
		volume += sig.Volume
		sources[sig.Source] = true
		if sentiment == 0 {
			sentiment = sig.WeightedSentiment
		}
		if price == 0 && sig.Price > 0 {
			price = sig.Price
		}
	}
	srcList := make([]string, 0, len(sources))
	for s := range sources {
		srcList = append(srcList, s)
	}
	sort.Strings(srcList)

	st.PositionEntries[req.Symbol] = &state.PositionEntry{
		Symbol:            req.Symbol,
		EntryTime:         time.Now(),
		EntryPrice:        price,
		EntrySentiment:    sentiment,
		EntrySocialVolume: volume,
		EntrySources:      srcList,
		Reason:            req.Reason,
		PeakPrice:         price,
		PeakSentiment:     sentiment,
	}
}

func (e *StockEngine) exchangeAllowed(ctx context.Context, symbol string, allowed []string) bool {
	asset, err := e.brokerage.GetAsset(ctx, symbol)
	if err != nil || asset == nil || !asset.Tradable {
		return false
	}
	for _, ex := range allowed {
		if strings.EqualFold(ex, asset.Exchange) {
			return true
		}
	}
	return false
}

// ProcessRecommendations applies a batch analyst report: SELLs gated by the
// minimum hold, then BUYs through the normal buy contract.
func (e *StockEngine) ProcessRecommendations(ctx context.Context, st *state.AgentState, report *state.AnalystReport, account *providers.Account, positions []providers.BrokeragePosition) {
	if report == nil {
		return
	}
	cfg := &st.Config
	held := heldSet(positions)
	minHold := time.Duration(cfg.LLMMinHoldMinutes) * time.Minute
	now := time.Now()

	for _, rec := range report.Recommendations {
		switch rec.Action {
		case "SELL":
			if !held[rec.Symbol] {
				continue
			}
			if entry, ok := st.PositionEntries[rec.Symbol]; ok && now.Sub(entry.EntryTime) < minHold {
				e.log.Info("sell_deferred_min_hold", "symbol", rec.Symbol, "held", now.Sub(entry.EntryTime).String())
				continue
			}
			if err := e.brokerage.ClosePosition(ctx, rec.Symbol); err != nil {
				e.log.Error("close_failed", "symbol", rec.Symbol, "reason", "analyst sell", "error", err.Error())
				continue
			}
			e.log.Info("position_closed", "symbol", rec.Symbol, "reason", "analyst sell")
			delete(held, rec.Symbol)
			delete(st.PositionEntries, rec.Symbol)
			delete(st.PositionResearch, rec.Symbol)
			delete(st.Staleness, rec.Symbol)
			if e.bus != nil {
				e.bus.PublishTradeExit("stock", rec.Symbol, 0, "analyst sell")
			}
		case "BUY":
			if held[rec.Symbol] {
				continue
			}
			if len(held) >= cfg.MaxPositions {
				e.log.Warn("buy_blocked", "symbol", rec.Symbol, "why", "at max positions", "held", len(held))
				continue
			}
			if _, researched := st.SignalResearch[rec.Symbol]; researched {
				// Researched symbols already went through the entry phase.
				continue
			}
			if rec.Confidence < cfg.MinAnalystConfidence {
				continue
			}
			if e.Buy(ctx, st, BuyRequest{
				Symbol:     rec.Symbol,
				Confidence: rec.Confidence,
				Cash:       account.Cash,
				Reason:     "analyst: " + rec.Reasoning,
			}) {
				held[rec.Symbol] = true
			}
		}
	}
}

func heldSet(positions []providers.BrokeragePosition) map[string]bool {
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	return held
}
