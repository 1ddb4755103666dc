package dex

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"social-trading-agent/config"
	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/state"
)

const (
	entryCandidateTop   = 3
	missedScanExitCount = 10
	minViableSizeSol    = 0.01
	liquiditySafeRatio  = 0.2 // position value / pool liquidity above this is unsafe to exit cleanly
)

// Engine runs the Solana paper book: scan, exits, entries, snapshot. It is
// called from the tick loop and mutates AgentState under the single-writer
// lock.
type Engine struct {
	scanner  *Scanner
	chart    *ChartGate
	solPrice *SolPriceCache
	bus      *events.Bus
	log      *logging.Logger
}

func NewEngine(scanner *Scanner, chart *ChartGate, solPrice *SolPriceCache, bus *events.Bus, log *logging.Logger) *Engine {
	return &Engine{
		scanner:  scanner,
		chart:    chart,
		solPrice: solPrice,
		bus:      bus,
		log:      log.WithComponent("dex"),
	}
}

// Run executes one full DEX pass. The scanner runs on its own cadence
// (dex_scan_interval_ms), and exits are evaluated once per scan so missed-scan
// counting stays one increment per scan. The SOL/USD rate is fetched once and
// held constant for the whole pass.
func (e *Engine) Run(ctx context.Context, st *state.AgentState) {
	cfg := &st.Config
	if !cfg.DexEnabled {
		return
	}
	now := time.Now()
	if !scanDue(st.Dex.LastScanTime, cfg.DexScanIntervalMs, now) {
		return
	}

	signals := e.scanner.Scan(ctx, cfg)
	if signals != nil {
		st.Dex.Signals = signals
	}
	st.Dex.LastScanTime = now

	solUsd := e.solPrice.Get(ctx)

	e.runExits(st, solUsd, now)
	e.runEntries(ctx, st, solUsd, now)
	e.snapshot(st, solUsd, now)
}

// scanDue reports whether the scanner cadence has elapsed. Zero last means a
// scan never ran.
func scanDue(last time.Time, intervalMs int64, now time.Time) bool {
	if last.IsZero() || intervalMs <= 0 {
		return true
	}
	return now.Sub(last) >= time.Duration(intervalMs)*time.Millisecond
}

// signalIndex maps token address to the current scan's signal.
func signalIndex(book *state.DexBook) map[string]*state.DexMomentumSignal {
	idx := make(map[string]*state.DexMomentumSignal, len(book.Signals))
	for i := range book.Signals {
		idx[book.Signals[i].TokenAddress] = &book.Signals[i]
	}
	return idx
}

// ---- exits ----

func (e *Engine) runExits(st *state.AgentState, solUsd float64, now time.Time) {
	book := &st.Dex
	idx := signalIndex(book)
	cfg := &st.Config

	for token, pos := range book.Positions {
		sig := idx[token]

		currentPrice := pos.EntryPrice
		liquidity := pos.EntryLiquidity
		if sig != nil {
			currentPrice = sig.PriceUsd
			liquidity = sig.LiquidityUsd
			pos.MissedScans = 0
		} else {
			pos.MissedScans++
		}
		if currentPrice > pos.PeakPrice {
			pos.PeakPrice = currentPrice
		}

		plPct := 0.0
		if pos.EntryPrice > 0 {
			plPct = (currentPrice - pos.EntryPrice) / pos.EntryPrice * 100
		}

		positionValueUsd := pos.TokenAmount * currentPrice
		liquiditySafe := liquidity <= 0 || positionValueUsd/liquidity < liquiditySafeRatio

		reason := e.exitReason(pos, sig, cfg, plPct, currentPrice, liquiditySafe)
		if reason == "" {
			continue
		}
		e.closePosition(st, pos, reason, currentPrice, plPct, now)
	}
}

// exitReason applies the exit precedence for one position. Empty string means
// hold.
func (e *Engine) exitReason(pos *state.DexPosition, sig *state.DexMomentumSignal, cfg *config.AgentConfig, plPct, currentPrice float64, liquiditySafe bool) state.ExitReason {
	if sig == nil {
		// Missing from the scan. Winners are left to the trailing stop.
		if plPct <= 0 && pos.MissedScans >= missedScanExitCount && liquiditySafe {
			return state.ExitLostMomentum
		}
	} else if pos.EntryMomentum > 0 && sig.MomentumScore < 0.4*pos.EntryMomentum {
		if plPct < 0 && liquiditySafe {
			return state.ExitLostMomentum
		}
		e.log.Debug("momentum_decay_held",
			"token", pos.TokenAddress,
			"symbol", pos.Symbol,
			"momentum", sig.MomentumScore,
			"entry_momentum", pos.EntryMomentum,
			"pl_pct", plPct)
	}

	if e.trailingStopHit(pos, cfg, currentPrice) {
		return state.ExitTrailingStop
	}

	// Stop loss fires regardless of liquidity safety.
	if plPct <= -stopLossPctFor(pos.Tier, cfg) {
		return state.ExitStopLoss
	}
	return ""
}

// trailingStopHit arms only on a meaningful peak: the activation gain must be
// met AND the peak must sit at least 5% above entry.
func (e *Engine) trailingStopHit(pos *state.DexPosition, cfg *config.AgentConfig, currentPrice float64) bool {
	if pos.EntryPrice <= 0 || pos.PeakPrice < pos.EntryPrice*1.05 {
		return false
	}
	activation := cfg.DexTrailingActivationPct
	distance := cfg.DexTrailingDistancePct
	if isHighRiskTier(pos.Tier) {
		activation = cfg.DexLotteryTrailingActivationPct
		distance = cfg.DexHighRiskTrailingDistancePct
	}
	peakGainPct := (pos.PeakPrice - pos.EntryPrice) / pos.EntryPrice * 100
	if peakGainPct < activation {
		return false
	}
	return currentPrice <= pos.PeakPrice*(1-distance/100)
}

func isHighRiskTier(t state.Tier) bool {
	return t == state.TierMicrospray || t == state.TierBreakout || t == state.TierLottery
}

func stopLossPctFor(t state.Tier, cfg *config.AgentConfig) float64 {
	var pct float64
	switch t {
	case state.TierMicrospray:
		pct = cfg.DexMicrosprayStopLossPct
	case state.TierBreakout:
		pct = cfg.DexBreakoutStopLossPct
	case state.TierLottery:
		pct = cfg.DexLotteryStopLossPct
	case state.TierEarly:
		pct = cfg.DexEarlyStopLossPct
	case state.TierEstablished:
		pct = cfg.DexEstablishedStopLossPct
	}
	if pct <= 0 {
		pct = cfg.DexStopLossPct
	}
	return pct
}

// closePosition settles one exit: cooldown record, sell slippage, ledger
// append, balance credit, streaks, breaker arming, and the position delete.
// The ledger append and the delete happen together so a crash between ticks
// never shows a trade both open and closed.
func (e *Engine) closePosition(st *state.AgentState, pos *state.DexPosition, reason state.ExitReason, signalPrice, rawPlPct float64, now time.Time) {
	book := &st.Dex
	cfg := &st.Config

	if reason == state.ExitStopLoss || reason == state.ExitTrailingStop {
		book.StopLossCooldowns[pos.TokenAddress] = state.StopLossCooldown{
			ExitPrice:      signalPrice,
			ExitTime:       now,
			FallbackExpiry: now.Add(time.Duration(cfg.DexStopLossCooldownHours * float64(time.Hour))),
		}
	}

	liquidity := pos.EntryLiquidity
	positionUsd := pos.TokenAmount * signalPrice
	slip := Slippage(cfg.DexSlippageModel, positionUsd, liquidity)
	exitPrice := signalPrice * (1 - slip)

	actualPlPct := 0.0
	if pos.EntryPrice > 0 {
		actualPlPct = (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	}
	pnlSol := pos.EntrySol * actualPlPct / 100

	book.TradeHistory = append(book.TradeHistory, state.DexTradeRecord{
		ID:           uuid.NewString(),
		TokenAddress: pos.TokenAddress,
		Symbol:       pos.Symbol,
		Tier:         pos.Tier,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		EntrySol:     pos.EntrySol,
		EntryTime:    pos.EntryTime,
		ExitTime:     now,
		PnLPct:       actualPlPct,
		PnLSol:       pnlSol,
		ExitReason:   reason,
	})
	delete(book.Positions, pos.TokenAddress)

	book.RealizedPnLSol += pnlSol
	book.PaperBalanceSol += pos.EntrySol + pnlSol - cfg.DexGasFeeSol
	if book.PaperBalanceSol > book.PeakBalanceSol {
		book.PeakBalanceSol = book.PaperBalanceSol
	}
	updateStreaks(book, pnlSol)

	if reason == state.ExitStopLoss {
		e.recordStopLoss(book, cfg, now)
	}

	st.AppendLog("info", "dex_exit", map[string]interface{}{
		"symbol":     pos.Symbol,
		"token":      pos.TokenAddress,
		"tier":       string(pos.Tier),
		"reason":     string(reason),
		"pl_pct":     actualPlPct,
		"pnl_sol":    pnlSol,
		"exit_price": exitPrice,
	})
	e.log.Info("dex_exit",
		"symbol", pos.Symbol,
		"tier", string(pos.Tier),
		"reason", string(reason),
		"pl_pct", actualPlPct,
		"pnl_sol", pnlSol)
	e.bus.PublishTradeExit("dex", pos.Symbol, actualPlPct, string(reason))
}

// recordStopLoss appends to the rolling stop-loss log and arms the circuit
// breaker when the window threshold is reached.
func (e *Engine) recordStopLoss(book *state.DexBook, cfg *config.AgentConfig, now time.Time) {
	window := time.Duration(cfg.DexCircuitBreakerWindowHours * float64(time.Hour))
	recent := book.RecentStopLosses[:0:0]
	for _, ts := range book.RecentStopLosses {
		if now.Sub(ts) <= window {
			recent = append(recent, ts)
		}
	}
	recent = append(recent, now)
	book.RecentStopLosses = recent

	if cfg.DexCircuitBreakerLosses > 0 && len(recent) >= cfg.DexCircuitBreakerLosses && now.After(book.CircuitBreakerUntil) {
		book.CircuitBreakerSince = now
		book.CircuitBreakerUntil = now.Add(time.Duration(cfg.DexCircuitBreakerPauseHours * float64(time.Hour)))
		e.log.Warn("circuit_breaker_armed",
			"stop_losses", len(recent),
			"until", book.CircuitBreakerUntil.Format(time.RFC3339))
	}
}

// ---- entries ----

func (e *Engine) runEntries(ctx context.Context, st *state.AgentState, solUsd float64, now time.Time) {
	book := &st.Dex
	cfg := &st.Config
	if len(book.Signals) == 0 {
		return
	}
	if len(book.Positions) >= cfg.DexMaxPositions {
		return
	}
	if !e.breakerClear(book, cfg, now) {
		return
	}
	if book.DrawdownPaused {
		e.log.Debug("entries_blocked_drawdown_pause")
		return
	}
	pruneCooldowns(book, now)

	var candidates []*state.DexMomentumSignal
	for i := range book.Signals {
		sig := &book.Signals[i]
		if sig.MomentumScore < cfg.DexMinMomentumScore {
			continue
		}
		if _, held := book.Positions[sig.TokenAddress]; held {
			continue
		}
		if cd, ok := book.StopLossCooldowns[sig.TokenAddress]; ok {
			verdict := checkCooldown(cd, sig, cfg, now)
			if !verdict.Allowed {
				continue
			}
			delete(book.StopLossCooldowns, sig.TokenAddress)
			e.log.Info(verdict.Reason, "token", sig.TokenAddress, "symbol", sig.Symbol)
		}
		candidates = append(candidates, sig)
		if len(candidates) >= entryCandidateTop {
			break
		}
	}

	tierCounts := book.OpenTierCounts()
	for _, sig := range candidates {
		if len(book.Positions) >= cfg.DexMaxPositions {
			return
		}
		if !tierHasRoom(sig.Tier, tierCounts, cfg) {
			continue
		}
		if !e.chartApproves(ctx, sig, cfg) {
			continue
		}
		if e.open(st, sig, solUsd, now) {
			tierCounts[sig.Tier]++
		}
	}
}

// breakerClear reports whether entries may proceed. After the minimum
// cooldown the breaker clears early iff an open position has recovered to
// positive P&L or a non-held signal shows fresh momentum.
func (e *Engine) breakerClear(book *state.DexBook, cfg *config.AgentConfig, now time.Time) bool {
	if !now.Before(book.CircuitBreakerUntil) {
		return true
	}
	minCooldown := time.Duration(cfg.DexBreakerMinCooldownMinutes * float64(time.Minute))
	if now.Before(book.CircuitBreakerSince.Add(minCooldown)) {
		return false
	}

	idx := signalIndex(book)
	for token, pos := range book.Positions {
		sig := idx[token]
		if sig == nil || pos.EntryPrice <= 0 {
			continue
		}
		if sig.PriceUsd > pos.EntryPrice {
			e.clearBreaker(book, "position_recovered")
			return true
		}
	}
	for i := range book.Signals {
		sig := &book.Signals[i]
		if _, held := book.Positions[sig.TokenAddress]; held {
			continue
		}
		if sig.MomentumScore >= cfg.DexReentryMinMomentum {
			e.clearBreaker(book, "fresh_momentum")
			return true
		}
	}
	return false
}

func (e *Engine) clearBreaker(book *state.DexBook, why string) {
	book.CircuitBreakerUntil = time.Time{}
	book.CircuitBreakerSince = time.Time{}
	book.RecentStopLosses = book.RecentStopLosses[:0]
	e.log.Info("circuit_breaker_cleared", "trigger", why)
}

func tierHasRoom(t state.Tier, counts map[state.Tier]int, cfg *config.AgentConfig) bool {
	var max int
	switch t {
	case state.TierMicrospray:
		max = cfg.DexMicrosprayMaxPositions
	case state.TierBreakout:
		max = cfg.DexBreakoutMaxPositions
	case state.TierLottery:
		max = cfg.DexLotteryMaxPositions
	case state.TierEarly:
		max = cfg.DexEarlyMaxPositions
	case state.TierEstablished:
		max = cfg.DexEstablishedMaxPositions
	}
	if max <= 0 {
		return true
	}
	return counts[t] < max
}

// chartApproves runs the OHLCV gate. Provider errors and too-new tokens pass;
// only an explicit low entry score rejects.
func (e *Engine) chartApproves(ctx context.Context, sig *state.DexMomentumSignal, cfg *config.AgentConfig) bool {
	if !cfg.DexChartAnalysisEnabled || e.chart == nil {
		return true
	}
	analysis, err := e.chart.Analyze(ctx, sig.TokenAddress, sig.AgeHours)
	if err != nil {
		e.log.Debug("chart_gate_error", "token", sig.TokenAddress, "error", err.Error())
		return true
	}
	if analysis == nil {
		return true
	}
	if analysis.EntryScore < cfg.DexChartMinEntryScore {
		e.log.Info("chart_gate_reject",
			"symbol", sig.Symbol,
			"entry_score", analysis.EntryScore,
			"recommendation", analysis.Recommendation)
		return false
	}
	return true
}

// open sizes, slips, and books one entry. Returns false on any reject; the
// book is untouched until all checks pass.
func (e *Engine) open(st *state.AgentState, sig *state.DexMomentumSignal, solUsd float64, now time.Time) bool {
	book := &st.Dex
	cfg := &st.Config

	size := positionSizeSol(sig.Tier, book.PaperBalanceSol, cfg)
	if size <= 0 || math.IsNaN(size) {
		return false
	}

	// Concentration cap against total book value, with a viability floor.
	totalValue := book.PaperBalanceSol + openPositionValueSol(book, solUsd)
	maxSingle := totalValue * cfg.DexMaxSinglePositionPct / 100
	if maxSingle > 0 && size > maxSingle {
		size = maxSingle
	}
	if size < minViableSizeSol {
		e.log.Debug("entry_skipped_too_small", "symbol", sig.Symbol, "size_sol", size)
		return false
	}
	gasTotal := size + cfg.DexGasFeeSol
	if gasTotal > book.PaperBalanceSol {
		e.log.Debug("entry_skipped_insufficient_balance", "symbol", sig.Symbol, "size_sol", size)
		return false
	}

	positionUsd := size * solUsd
	slip := Slippage(cfg.DexSlippageModel, positionUsd, sig.LiquidityUsd)
	entryPrice := sig.PriceUsd * (1 + slip)
	if entryPrice <= 0 || solUsd <= 0 {
		return false
	}
	tokenAmount := positionUsd / entryPrice

	book.Positions[sig.TokenAddress] = &state.DexPosition{
		TokenAddress:   sig.TokenAddress,
		Symbol:         sig.Symbol,
		EntryPrice:     entryPrice,
		EntrySol:       size,
		EntryTime:      now,
		TokenAmount:    tokenAmount,
		PeakPrice:      entryPrice,
		EntryMomentum:  sig.MomentumScore,
		EntryLiquidity: sig.LiquidityUsd,
		Tier:           sig.Tier,
	}
	book.PaperBalanceSol -= gasTotal

	st.AppendLog("info", "dex_entry", map[string]interface{}{
		"symbol":      sig.Symbol,
		"token":       sig.TokenAddress,
		"tier":        string(sig.Tier),
		"size_sol":    size,
		"entry_price": entryPrice,
		"momentum":    sig.MomentumScore,
		"slippage":    slip,
	})
	e.log.Info("dex_entry",
		"symbol", sig.Symbol,
		"tier", string(sig.Tier),
		"size_sol", size,
		"momentum", sig.MomentumScore)
	e.bus.PublishTradeEntry("dex", sig.Symbol, size, string(sig.Tier))
	return true
}

func positionSizeSol(t state.Tier, balance float64, cfg *config.AgentConfig) float64 {
	switch t {
	case state.TierMicrospray:
		return cfg.DexMicrosprayPositionSol
	case state.TierBreakout:
		return cfg.DexBreakoutPositionSol
	case state.TierLottery:
		return cfg.DexLotteryPositionSol
	case state.TierEarly:
		size := balance * (cfg.DexPositionSizePct / 100) * (cfg.DexEarlyPositionSizePct / 100)
		return math.Min(size, cfg.DexMaxPositionSol)
	case state.TierEstablished:
		size := balance * cfg.DexPositionSizePct / 100
		return math.Min(size, cfg.DexMaxPositionSol)
	default:
		return 0
	}
}

// openPositionValueSol marks held positions at the current signal price when
// available, else at entry.
func openPositionValueSol(book *state.DexBook, solUsd float64) float64 {
	if solUsd <= 0 {
		return 0
	}
	idx := signalIndex(book)
	var total float64
	for token, pos := range book.Positions {
		price := pos.EntryPrice
		if sig := idx[token]; sig != nil {
			price = sig.PriceUsd
		}
		total += pos.TokenAmount * price / solUsd
	}
	return total
}

// ---- snapshot and drawdown guard ----

func (e *Engine) snapshot(st *state.AgentState, solUsd float64, now time.Time) {
	book := &st.Dex
	cfg := &st.Config

	positionValue := openPositionValueSol(book, solUsd)
	totalValue := book.PaperBalanceSol + positionValue
	book.AppendPortfolioSnapshot(state.PortfolioSnapshot{
		Timestamp:        now,
		TotalValueSol:    totalValue,
		PaperBalanceSol:  book.PaperBalanceSol,
		PositionValueSol: positionValue,
		RealizedPnLSol:   book.RealizedPnLSol,
	})

	if totalValue >= book.PeakValueSol {
		if book.DrawdownPaused {
			book.DrawdownPaused = false
			e.log.Info("drawdown_pause_lifted", "total_value_sol", totalValue)
			st.AppendLog("info", "drawdown_pause_lifted", map[string]interface{}{
				"total_value_sol": totalValue,
			})
		}
		return
	}
	drawdownPct := (book.PeakValueSol - totalValue) / book.PeakValueSol * 100
	if !book.DrawdownPaused && drawdownPct >= cfg.DexMaxDrawdownPct {
		book.DrawdownPaused = true
		e.log.Warn("drawdown_pause",
			"drawdown_pct", drawdownPct,
			"peak_sol", book.PeakValueSol,
			"total_value_sol", totalValue)
		st.AppendLog("warn", "drawdown_pause", map[string]interface{}{
			"drawdown_pct": drawdownPct,
		})
	}
}

// LiquidateAll closes every open paper position at the best available price.
// The crisis governor calls this at Level 3.
func (e *Engine) LiquidateAll(st *state.AgentState, now time.Time) {
	book := &st.Dex
	idx := signalIndex(book)
	for token, pos := range book.Positions {
		price := pos.EntryPrice
		if sig := idx[token]; sig != nil {
			price = sig.PriceUsd
		}
		plPct := 0.0
		if pos.EntryPrice > 0 {
			plPct = (price - pos.EntryPrice) / pos.EntryPrice * 100
		}
		e.closePosition(st, pos, state.ExitManual, price, plPct, now)
	}
}
