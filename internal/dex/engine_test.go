package dex

import (
	"context"
	"math"
	"testing"
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/state"
)

func testEngine() *Engine {
	log := logging.New(&logging.Config{Level: "ERROR"})
	return &Engine{bus: events.NewBus(), log: log.WithComponent("dex")}
}

func testState(mutate func(cfg *config.AgentConfig)) *state.AgentState {
	cfg := config.DefaultConfig()
	cfg.DexEnabled = true
	cfg.DexSlippageModel = "none"
	cfg.DexChartAnalysisEnabled = false
	if mutate != nil {
		mutate(cfg)
	}
	return state.NewAgentState(cfg)
}

func lotterySignal(token string, momentum float64) state.DexMomentumSignal {
	return state.DexMomentumSignal{
		TokenAddress:  token,
		Symbol:        "LOT",
		PriceUsd:      0.001,
		LiquidityUsd:  20_000,
		Volume24h:     12_000,
		MomentumScore: momentum,
		Tier:          state.TierLottery,
		AgeHours:      4,
	}
}

func TestEntryUsesLotteryFixedSize(t *testing.T) {
	e := testEngine()
	st := testState(func(cfg *config.AgentConfig) {
		cfg.DexLotteryEnabled = true
	})
	st.Dex.Signals = []state.DexMomentumSignal{lotterySignal("TokA", 75)}

	e.runEntries(nil, st, 200, time.Now())

	pos, ok := st.Dex.Positions["TokA"]
	if !ok {
		t.Fatal("expected a position to open")
	}
	if pos.EntrySol != st.Config.DexLotteryPositionSol {
		t.Errorf("entry size = %v, want %v", pos.EntrySol, st.Config.DexLotteryPositionSol)
	}
	wantBalance := st.Config.DexStartingBalanceSol - pos.EntrySol - st.Config.DexGasFeeSol
	if math.Abs(st.Dex.PaperBalanceSol-wantBalance) > 1e-9 {
		t.Errorf("balance = %v, want %v", st.Dex.PaperBalanceSol, wantBalance)
	}
	// no slippage, so the full USD notional converts at the signal price
	wantTokens := pos.EntrySol * 200 / 0.001
	if math.Abs(pos.TokenAmount-wantTokens) > 1e-6 {
		t.Errorf("token amount = %v, want %v", pos.TokenAmount, wantTokens)
	}
}

func TestEntryRejectsLowMomentum(t *testing.T) {
	e := testEngine()
	st := testState(func(cfg *config.AgentConfig) {
		cfg.DexLotteryEnabled = true
	})
	st.Dex.Signals = []state.DexMomentumSignal{lotterySignal("TokA", 59)}

	e.runEntries(nil, st, 200, time.Now())
	if len(st.Dex.Positions) != 0 {
		t.Error("signal below the momentum floor should not open")
	}
}

func TestEntryConcentrationCap(t *testing.T) {
	e := testEngine()
	st := testState(func(cfg *config.AgentConfig) {
		cfg.DexMaxSinglePositionPct = 5
		cfg.DexPositionSizePct = 10
	})
	sig := lotterySignal("TokB", 90)
	sig.Tier = state.TierEstablished
	sig.LiquidityUsd = 100_000
	st.Dex.Signals = []state.DexMomentumSignal{sig}

	e.runEntries(nil, st, 200, time.Now())

	pos, ok := st.Dex.Positions["TokB"]
	if !ok {
		t.Fatal("expected a position to open")
	}
	// uncapped size would be 10 * 10% = 1.0 SOL; concentration caps at 5% of book
	want := st.Config.DexStartingBalanceSol * 0.05
	if math.Abs(pos.EntrySol-want) > 1e-9 {
		t.Errorf("entry size = %v, want %v", pos.EntrySol, want)
	}
}

func TestEntrySkipsBelowViableSize(t *testing.T) {
	e := testEngine()
	st := testState(func(cfg *config.AgentConfig) {
		cfg.DexMaxSinglePositionPct = 0.01 // 0.001 SOL on a 10 SOL book
	})
	sig := lotterySignal("TokC", 90)
	sig.Tier = state.TierEstablished
	st.Dex.Signals = []state.DexMomentumSignal{sig}

	e.runEntries(nil, st, 200, time.Now())
	if len(st.Dex.Positions) != 0 {
		t.Error("entry shrunk below 0.01 SOL should be skipped, not opened tiny")
	}
}

func TestStopLossExitSettlement(t *testing.T) {
	e := testEngine()
	st := testState(nil)
	now := time.Now()
	st.Dex.Positions["TokD"] = &state.DexPosition{
		TokenAddress:   "TokD",
		Symbol:         "DDD",
		EntryPrice:     1.00,
		EntrySol:       1.0,
		EntryTime:      now.Add(-time.Hour),
		TokenAmount:    200,
		PeakPrice:      1.00,
		EntryMomentum:  80,
		EntryLiquidity: 100_000,
		Tier:           state.TierEstablished,
	}
	// -26% against the established 25% stop
	st.Dex.Signals = []state.DexMomentumSignal{{
		TokenAddress: "TokD", Symbol: "DDD", PriceUsd: 0.74,
		LiquidityUsd: 100_000, MomentumScore: 70, Tier: state.TierEstablished,
	}}
	startBalance := st.Dex.PaperBalanceSol

	e.runExits(st, 200, now)

	if len(st.Dex.Positions) != 0 {
		t.Fatal("position should be closed")
	}
	if len(st.Dex.TradeHistory) != 1 {
		t.Fatal("expected one ledger entry")
	}
	rec := st.Dex.TradeHistory[0]
	if rec.ExitReason != state.ExitStopLoss {
		t.Errorf("exit reason = %q, want stop_loss", rec.ExitReason)
	}
	if math.Abs(rec.PnLPct-(-26)) > 1e-9 {
		t.Errorf("pnl pct = %v, want -26", rec.PnLPct)
	}
	wantPnl := 1.0 * -26 / 100
	if math.Abs(rec.PnLSol-wantPnl) > 1e-9 {
		t.Errorf("pnl sol = %v, want %v", rec.PnLSol, wantPnl)
	}
	wantBalance := startBalance + 1.0 + wantPnl - st.Config.DexGasFeeSol
	if math.Abs(st.Dex.PaperBalanceSol-wantBalance) > 1e-9 {
		t.Errorf("balance = %v, want %v", st.Dex.PaperBalanceSol, wantBalance)
	}
	cd, ok := st.Dex.StopLossCooldowns["TokD"]
	if !ok {
		t.Fatal("stop loss should record a cooldown")
	}
	if cd.ExitPrice != 0.74 {
		t.Errorf("cooldown exit price = %v, want 0.74", cd.ExitPrice)
	}
	if st.Dex.CurrentLossStreak != 1 {
		t.Errorf("loss streak = %d, want 1", st.Dex.CurrentLossStreak)
	}
}

func TestTrailingStopNeedsMeaningfulPeak(t *testing.T) {
	e := testEngine()
	cfg := config.DefaultConfig()
	pos := &state.DexPosition{
		EntryPrice: 1.00,
		PeakPrice:  1.04, // below the 1.05 floor
		Tier:       state.TierEstablished,
	}
	if e.trailingStopHit(pos, cfg, 0.80) {
		t.Error("trailing stop must not arm on a sub-5% peak")
	}

	pos.PeakPrice = 1.40 // +40% peak clears the 30% activation
	if !e.trailingStopHit(pos, cfg, 1.18) {
		t.Error("expected trailing stop at 1.18 against a 1.40 peak")
	}
	if e.trailingStopHit(pos, cfg, 1.25) {
		t.Error("1.25 is inside the 15% trail, should hold")
	}
}

func TestTrailingStopHighRiskTier(t *testing.T) {
	e := testEngine()
	cfg := config.DefaultConfig()
	pos := &state.DexPosition{
		EntryPrice: 1.00,
		PeakPrice:  1.40, // below the 50% lottery activation
		Tier:       state.TierLottery,
	}
	if e.trailingStopHit(pos, cfg, 1.00) {
		t.Error("lottery activation is 50%, a 40% peak should not arm")
	}
	pos.PeakPrice = 1.60
	if !e.trailingStopHit(pos, cfg, 1.27) {
		t.Error("expected 20% trail to fire at 1.27 against a 1.60 peak")
	}
}

func TestLostMomentumOnlyWhenRed(t *testing.T) {
	e := testEngine()
	cfg := config.DefaultConfig()
	pos := &state.DexPosition{
		TokenAddress:  "TokE",
		EntryPrice:    1.00,
		EntryMomentum: 80,
		PeakPrice:     1.00,
		Tier:          state.TierEstablished,
	}
	decayed := &state.DexMomentumSignal{MomentumScore: 20} // under 40% of entry

	if got := e.exitReason(pos, decayed, cfg, -5, 0.95, true); got != state.ExitLostMomentum {
		t.Errorf("red decayed position = %q, want lost_momentum", got)
	}
	if got := e.exitReason(pos, decayed, cfg, 8, 1.08, true); got != "" {
		t.Errorf("green decayed position = %q, want hold", got)
	}
	// liquidity-unsafe blocks the momentum exit but never the stop
	if got := e.exitReason(pos, decayed, cfg, -5, 0.95, false); got != "" {
		t.Errorf("unsafe momentum exit = %q, want hold", got)
	}
	if got := e.exitReason(pos, decayed, cfg, -30, 0.70, false); got != state.ExitStopLoss {
		t.Errorf("unsafe stop = %q, want stop_loss", got)
	}
}

func TestDecayExitPrecedesStopLoss(t *testing.T) {
	e := testEngine()
	cfg := config.DefaultConfig()
	pos := &state.DexPosition{
		TokenAddress:  "TokE",
		EntryPrice:    1.00,
		EntryMomentum: 80,
		PeakPrice:     1.00,
		Tier:          state.TierEstablished,
	}
	decayed := &state.DexMomentumSignal{MomentumScore: 20}

	// Deep red and decayed: lost_momentum wins even past the stop level, so
	// the close records neither a cooldown nor a breaker stop-loss.
	if got := e.exitReason(pos, decayed, cfg, -60, 0.40, true); got != state.ExitLostMomentum {
		t.Errorf("decayed deep-red position = %q, want lost_momentum", got)
	}
	// With the momentum exit blocked by unsafe liquidity the stop still fires.
	if got := e.exitReason(pos, decayed, cfg, -60, 0.40, false); got != state.ExitStopLoss {
		t.Errorf("unsafe deep-red position = %q, want stop_loss", got)
	}
}

func TestScanDue(t *testing.T) {
	now := time.Now()
	if !scanDue(time.Time{}, 30_000, now) {
		t.Error("a book that never scanned is due")
	}
	if scanDue(now.Add(-10*time.Second), 30_000, now) {
		t.Error("10s after a scan under a 30s cadence is not due")
	}
	if !scanDue(now.Add(-31*time.Second), 30_000, now) {
		t.Error("31s after a scan under a 30s cadence is due")
	}
}

func TestRunHonorsScanCadence(t *testing.T) {
	e := testEngine() // no scanner wired; a due pass would dereference it
	st := testState(nil)
	st.Dex.LastScanTime = time.Now()

	e.Run(context.Background(), st)

	if len(st.Dex.PortfolioHistory) != 0 {
		t.Error("a pass inside the scan cadence should do nothing")
	}
}

func TestMissedScanExit(t *testing.T) {
	e := testEngine()
	st := testState(nil)
	now := time.Now()
	st.Dex.Positions["TokF"] = &state.DexPosition{
		TokenAddress:   "TokF",
		Symbol:         "FFF",
		EntryPrice:     1.00,
		EntrySol:       0.5,
		EntryTime:      now.Add(-3 * time.Hour),
		TokenAmount:    100,
		PeakPrice:      1.00,
		EntryMomentum:  80,
		EntryLiquidity: 100_000,
		Tier:           state.TierEstablished,
		MissedScans:    9,
	}
	st.Dex.Signals = nil

	e.runExits(st, 200, now)

	if len(st.Dex.TradeHistory) != 1 {
		t.Fatal("tenth missed scan should close the position")
	}
	if st.Dex.TradeHistory[0].ExitReason != state.ExitLostMomentum {
		t.Errorf("exit reason = %q, want lost_momentum", st.Dex.TradeHistory[0].ExitReason)
	}
}

func TestCircuitBreakerArmsAndEarlyClears(t *testing.T) {
	e := testEngine()
	st := testState(nil)
	book := &st.Dex
	cfg := &st.Config
	now := time.Now()

	// three stops inside the 1 h window arm the breaker
	e.recordStopLoss(book, cfg, now.Add(-30*time.Minute))
	e.recordStopLoss(book, cfg, now.Add(-20*time.Minute))
	if !book.CircuitBreakerUntil.IsZero() {
		t.Fatal("breaker must not arm before the loss threshold")
	}
	e.recordStopLoss(book, cfg, now.Add(-16*time.Minute))
	if book.CircuitBreakerUntil.IsZero() {
		t.Fatal("third stop loss should arm the breaker")
	}

	// inside the 15 min minimum cooldown nothing clears it
	early := book.CircuitBreakerSince.Add(10 * time.Minute)
	if e.breakerClear(book, cfg, early) {
		t.Error("breaker cleared inside the minimum cooldown")
	}

	// past the minimum, a recovered open position clears it early
	book.Positions["TokG"] = &state.DexPosition{TokenAddress: "TokG", EntryPrice: 1.00}
	book.Signals = []state.DexMomentumSignal{{TokenAddress: "TokG", PriceUsd: 1.10, MomentumScore: 10}}
	if !e.breakerClear(book, cfg, now) {
		t.Error("recovered position should clear the breaker after min cooldown")
	}
	if !book.CircuitBreakerUntil.IsZero() {
		t.Error("clear should zero the breaker deadline")
	}
	if len(book.RecentStopLosses) != 0 {
		t.Error("clear should drop the stop-loss log")
	}
}

func TestCircuitBreakerFreshMomentumClear(t *testing.T) {
	e := testEngine()
	st := testState(nil)
	book := &st.Dex
	cfg := &st.Config
	now := time.Now()

	book.CircuitBreakerSince = now.Add(-20 * time.Minute)
	book.CircuitBreakerUntil = now.Add(time.Hour)

	// held or weak signals do not clear
	book.Signals = []state.DexMomentumSignal{{TokenAddress: "TokH", MomentumScore: 70}}
	if e.breakerClear(book, cfg, now) {
		t.Error("momentum below the re-entry floor should not clear")
	}
	book.Signals[0].MomentumScore = cfg.DexReentryMinMomentum
	if !e.breakerClear(book, cfg, now) {
		t.Error("fresh momentum at the floor should clear the breaker")
	}
}

func TestCooldownPriceRecovery(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	cd := state.StopLossCooldown{
		ExitPrice:      0.0010,
		ExitTime:       now.Add(-time.Minute),
		FallbackExpiry: now.Add(4 * time.Hour),
	}

	// +16% beats the 15% recovery bar even one minute after the stop
	sig := &state.DexMomentumSignal{PriceUsd: 0.00116, MomentumScore: 30}
	v := checkCooldown(cd, sig, cfg, now)
	if !v.Allowed || v.Reason != "cooldown_cleared_price_recovery" {
		t.Errorf("verdict = %+v, want price recovery clear", v)
	}

	// +10% is short of the bar and momentum is weak: blocked
	sig = &state.DexMomentumSignal{PriceUsd: 0.0011, MomentumScore: 30}
	if v := checkCooldown(cd, sig, cfg, now); v.Allowed {
		t.Errorf("verdict = %+v, want block", v)
	}

	// strong momentum clears only after five minutes
	sig = &state.DexMomentumSignal{PriceUsd: 0.0009, MomentumScore: 85}
	if v := checkCooldown(cd, sig, cfg, now); v.Allowed {
		t.Error("momentum clear must wait five minutes")
	}
	cd.ExitTime = now.Add(-6 * time.Minute)
	v = checkCooldown(cd, sig, cfg, now)
	if !v.Allowed || v.Reason != "cooldown_cleared_momentum" {
		t.Errorf("verdict = %+v, want momentum clear", v)
	}

	// fallback expiry is the safety valve
	cd.ExitTime = now.Add(-time.Minute)
	cd.FallbackExpiry = now.Add(-time.Second)
	sig = &state.DexMomentumSignal{PriceUsd: 0.0009, MomentumScore: 10}
	v = checkCooldown(cd, sig, cfg, now)
	if !v.Allowed || v.Reason != "cooldown_expired" {
		t.Errorf("verdict = %+v, want expiry clear", v)
	}
}

func TestDrawdownPauseAndLift(t *testing.T) {
	e := testEngine()
	st := testState(nil)
	now := time.Now()
	st.Dex.PeakValueSol = 10
	st.Dex.PaperBalanceSol = 6.5 // 35% below peak, over the 30% limit

	e.snapshot(st, 200, now)
	if !st.Dex.DrawdownPaused {
		t.Fatal("35 percent drawdown should pause entries")
	}

	// entries stay blocked while paused
	st.Dex.Signals = []state.DexMomentumSignal{lotterySignal("TokI", 90)}
	st.Config.DexLotteryEnabled = true
	e.runEntries(nil, st, 200, now)
	if len(st.Dex.Positions) != 0 {
		t.Error("paused book must not open positions")
	}

	// a new high water mark lifts the pause
	st.Dex.PaperBalanceSol = 11
	e.snapshot(st, 200, now)
	if st.Dex.DrawdownPaused {
		t.Error("new high should lift the drawdown pause")
	}
}

func TestLiquidateAllClosesEverything(t *testing.T) {
	e := testEngine()
	st := testState(nil)
	now := time.Now()
	for _, token := range []string{"TokJ", "TokK"} {
		st.Dex.Positions[token] = &state.DexPosition{
			TokenAddress:   token,
			Symbol:         token,
			EntryPrice:     1.00,
			EntrySol:       0.5,
			EntryTime:      now.Add(-time.Hour),
			TokenAmount:    100,
			PeakPrice:      1.00,
			EntryLiquidity: 100_000,
			Tier:           state.TierEstablished,
		}
	}

	e.LiquidateAll(st, now)

	if len(st.Dex.Positions) != 0 {
		t.Fatal("all positions should be closed")
	}
	if len(st.Dex.TradeHistory) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(st.Dex.TradeHistory))
	}
	for _, rec := range st.Dex.TradeHistory {
		if rec.ExitReason != state.ExitManual {
			t.Errorf("exit reason = %q, want manual", rec.ExitReason)
		}
	}
	if len(st.Dex.StopLossCooldowns) != 0 {
		t.Error("manual exits must not leave cooldowns")
	}
}

func TestComputeMetrics(t *testing.T) {
	book := &state.DexBook{
		TradeHistory: []state.DexTradeRecord{
			{PnLPct: 20, PnLSol: 0.2},
			{PnLPct: 10, PnLSol: 0.1},
			{PnLPct: -10, PnLSol: -0.1},
			{PnLPct: -20, PnLSol: -0.2},
		},
		PeakValueSol: 10,
	}
	m := ComputeMetrics(book, 9, false)
	if m.TotalTrades != 4 {
		t.Errorf("trades = %d, want 4", m.TotalTrades)
	}
	if m.WinRate != 0.5 {
		t.Errorf("win rate = %v, want 0.5", m.WinRate)
	}
	if math.Abs(m.AvgWinPct-15) > 1e-9 {
		t.Errorf("avg win = %v, want 15", m.AvgWinPct)
	}
	if math.Abs(m.AvgLossPct-(-15)) > 1e-9 {
		t.Errorf("avg loss = %v, want -15", m.AvgLossPct)
	}
	if math.Abs(m.Expectancy) > 1e-9 {
		t.Errorf("expectancy = %v, want 0", m.Expectancy)
	}
	if math.Abs(m.ProfitFactor-1) > 1e-9 {
		t.Errorf("profit factor = %v, want 1", m.ProfitFactor)
	}
	if math.Abs(m.CurrentDrawdownPct-10) > 1e-9 {
		t.Errorf("drawdown = %v, want 10", m.CurrentDrawdownPct)
	}

	// all winners cap the profit factor instead of dividing by zero
	allWins := &state.DexBook{TradeHistory: []state.DexTradeRecord{{PnLPct: 5, PnLSol: 0.05}}}
	if m := ComputeMetrics(allWins, 10, false); m.ProfitFactor != profitFactorCap {
		t.Errorf("all-win profit factor = %v, want %v", m.ProfitFactor, profitFactorCap)
	}
}

func TestUpdateStreaks(t *testing.T) {
	book := &state.DexBook{}
	updateStreaks(book, 0.1)
	updateStreaks(book, 0.2)
	updateStreaks(book, -0.1)
	updateStreaks(book, -0.1)
	updateStreaks(book, -0.1)
	if book.MaxWinStreak != 2 {
		t.Errorf("max win streak = %d, want 2", book.MaxWinStreak)
	}
	if book.CurrentLossStreak != 3 || book.MaxLossStreak != 3 {
		t.Errorf("loss streaks = %d/%d, want 3/3", book.CurrentLossStreak, book.MaxLossStreak)
	}
	updateStreaks(book, 0.05)
	if book.CurrentLossStreak != 0 {
		t.Error("win should reset the loss streak")
	}
}
