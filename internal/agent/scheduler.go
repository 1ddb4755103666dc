package agent

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"social-trading-agent/internal/crisis"
	"social-trading-agent/internal/dex"
	"social-trading-agent/internal/engine"
	"social-trading-agent/internal/events"
	"social-trading-agent/internal/gather"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/research"
	"social-trading-agent/internal/state"
)

// tickBudget is the soft deadline for one whole tick. A phase that overruns
// is cancelled through the context and skipped; the deferred persist still
// runs.
const tickBudget = 25 * time.Second

// Agent is the single-writer core loop. Every mutation of AgentState happens
// under mu: the tick, the control-plane handlers (via Do), and the cron jobs.
type Agent struct {
	mu sync.Mutex
	st *state.AgentState

	store      state.Store
	brokerage  providers.Brokerage
	data       providers.MarketData
	twitter    providers.TwitterFeed
	gatherers  *gather.Runner
	researcher *research.Researcher
	crisis     *crisis.Monitor
	stocks     *engine.StockEngine
	options    *engine.OptionsEngine
	crypto     *engine.CryptoEngine
	dex        *dex.Engine
	bus        *events.Bus
	log        *logging.Logger

	market *time.Location
	cron   *cron.Cron
	stop   chan struct{}
	done   chan struct{}
}

// Deps carries the wired subsystems into the agent.
type Deps struct {
	State      *state.AgentState
	Store      state.Store
	Brokerage  providers.Brokerage
	Data       providers.MarketData
	Twitter    providers.TwitterFeed
	Gatherers  *gather.Runner
	Researcher *research.Researcher
	Crisis     *crisis.Monitor
	Stocks     *engine.StockEngine
	Options    *engine.OptionsEngine
	Crypto     *engine.CryptoEngine
	Dex        *dex.Engine
	Bus        *events.Bus
	Log        *logging.Logger
}

func New(d Deps) *Agent {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Agent{
		st:         d.State,
		store:      d.Store,
		brokerage:  d.Brokerage,
		data:       d.Data,
		twitter:    d.Twitter,
		gatherers:  d.Gatherers,
		researcher: d.Researcher,
		crisis:     d.Crisis,
		stocks:     d.Stocks,
		options:    d.Options,
		crypto:     d.Crypto,
		dex:        d.Dex,
		bus:        d.Bus,
		log:        d.Log.WithComponent("agent"),
		market:     loc,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the tick loop and the daily cron jobs.
func (a *Agent) Start(ctx context.Context) {
	a.cron = cron.New(cron.WithLocation(a.market))
	// Cost counters roll over at midnight so the daily LLM budget resets.
	a.cron.AddFunc("0 0 * * *", func() { a.rolloverDailyCost(ctx) })
	a.cron.Start()

	go a.loop(ctx)
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (a *Agent) Stop() {
	close(a.stop)
	<-a.done
	if a.cron != nil {
		a.cron.Stop()
	}
}

func (a *Agent) loop(ctx context.Context) {
	defer close(a.done)
	for {
		interval := a.tickInterval()
		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(interval):
			a.Tick(ctx)
		}
	}
}

func (a *Agent) tickInterval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	ms := a.st.Config.TickIntervalMs
	if ms <= 0 {
		ms = 30_000
	}
	return time.Duration(ms) * time.Millisecond
}

// Do runs fn under the writer lock and persists afterwards. Control-plane
// handlers mutate state exclusively through this.
func (a *Agent) Do(ctx context.Context, fn func(st *state.AgentState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.st)
	a.persist(ctx)
}

// View runs fn under the lock without persisting. For read-only handlers.
func (a *Agent) View(fn func(st *state.AgentState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.st)
}

func (a *Agent) persist(ctx context.Context) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), providers.CallTimeout)
	defer cancel()
	if err := a.store.Save(saveCtx, a.st); err != nil {
		a.log.Error("state_persist_failed", "error", err.Error())
	}
}

// Tick runs one full scheduler pass. Crisis precedes all trading; engines see
// the crisis level as of this tick's evaluation.
func (a *Agent) Tick(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.st
	if !st.Enabled {
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, tickBudget)
	defer cancel()
	// Deferred write: a phase that panics or overruns still persists log and
	// cost accounting.
	defer a.persist(ctx)

	now := time.Now()
	st.LastTick = now
	localNow := now.In(a.market)

	clock := a.fetchClock(tickCtx)

	if a.crisisPhase(tickCtx, st, now) {
		return
	}
	a.gatherPhase(tickCtx, st, now)
	a.researchPhase(tickCtx, st, now)
	a.premarketBuildPhase(tickCtx, st, localNow)

	account, positions, ok := a.fetchAccount(tickCtx)
	if ok {
		a.crypto.Run(tickCtx, st, account, positions)
	}
	a.dex.Run(tickCtx, st)

	if clock != nil && clock.IsOpen && ok {
		a.marketHoursPhase(tickCtx, st, account, positions, localNow, now)
	}
}

func (a *Agent) fetchClock(ctx context.Context) *providers.Clock {
	callCtx, cancel := context.WithTimeout(ctx, providers.CallTimeout)
	defer cancel()
	clock, err := a.brokerage.GetClock(callCtx)
	if err != nil {
		a.log.Warn("clock_fetch_failed", "error", err.Error())
		return nil
	}
	return clock
}

func (a *Agent) fetchAccount(ctx context.Context) (*providers.Account, []providers.BrokeragePosition, bool) {
	callCtx, cancel := context.WithTimeout(ctx, providers.CallTimeout)
	defer cancel()
	account, err := a.brokerage.GetAccount(callCtx)
	if err != nil {
		a.log.Warn("account_fetch_failed", "error", err.Error())
		return nil, nil, false
	}
	positions, err := a.brokerage.GetPositions(callCtx)
	if err != nil {
		a.log.Warn("positions_fetch_failed", "error", err.Error())
		return nil, nil, false
	}
	return account, positions, true
}

// crisisPhase returns true when Level 3 liquidation fired and the rest of the
// tick must be skipped.
func (a *Agent) crisisPhase(ctx context.Context, st *state.AgentState, now time.Time) bool {
	cfg := &st.Config
	if !cfg.CrisisModeEnabled {
		return false
	}
	if !due(st.LastCrisisCheck, cfg.CrisisCheckIntervalMs, now) {
		return false
	}
	assessment, err := a.crisis.Check(ctx, st)
	if err != nil {
		a.log.Warn("crisis_check_failed", "error", err.Error())
		return false
	}
	if st.Crisis.ManualOverride {
		return false
	}
	if assessment.Level >= 3 {
		a.liquidateForCrisis(ctx, st, now)
		return true
	}
	if assessment.Level == 2 {
		a.closeWeakForCrisis(ctx, st)
	}
	return false
}

// closeWeakForCrisis is the Level-2 action: stock positions whose P&L sits
// below crisis_level2_min_profit_to_hold are closed; profitable ones ride out
// the stress. Entry blocking itself happens in the buy contract.
func (a *Agent) closeWeakForCrisis(ctx context.Context, st *state.AgentState) {
	cfg := &st.Config
	callCtx, cancel := context.WithTimeout(ctx, providers.CallTimeout)
	defer cancel()
	positions, err := a.brokerage.GetPositions(callCtx)
	if err != nil {
		a.log.Error("crisis_positions_fetch_failed", "error", err.Error())
		return
	}
	for _, pos := range positions {
		if pos.AssetClass == "crypto" {
			continue
		}
		pl := plPctOf(pos)
		if pl >= cfg.CrisisLevel2MinProfitHold {
			continue
		}
		if err := a.brokerage.ClosePosition(ctx, pos.Symbol); err != nil {
			a.log.Error("crisis_close_failed", "symbol", pos.Symbol, "error", err.Error())
			continue
		}
		st.Crisis.ClosedDuringCrisis = append(st.Crisis.ClosedDuringCrisis, pos.Symbol)
		delete(st.PositionEntries, pos.Symbol)
		delete(st.PositionResearch, pos.Symbol)
		delete(st.Staleness, pos.Symbol)
		a.log.Warn("position_closed", "symbol", pos.Symbol, "pl_pct", pl, "reason", "CRISIS_LEVEL_2_CLOSE")
		st.AppendLog("warn", "position_closed", map[string]interface{}{
			"symbol": pos.Symbol,
			"pl_pct": pl,
			"reason": "CRISIS_LEVEL_2_CLOSE",
		})
		a.bus.PublishTradeExit("stock", pos.Symbol, pl, "CRISIS_LEVEL_2_CLOSE")
	}
}

// liquidateForCrisis closes every stock and option position plus the whole
// DEX book. Brokerage crypto positions stay with the crypto engine's own
// exits.
func (a *Agent) liquidateForCrisis(ctx context.Context, st *state.AgentState, now time.Time) {
	a.log.Error("crisis_level3_liquidation", "triggered", st.Crisis.Triggered)
	st.AppendLog("error", "crisis_level3_liquidation", map[string]interface{}{
		"triggered": st.Crisis.Triggered,
	})

	callCtx, cancel := context.WithTimeout(ctx, providers.CallTimeout)
	defer cancel()
	positions, err := a.brokerage.GetPositions(callCtx)
	if err != nil {
		a.log.Error("liquidation_positions_fetch_failed", "error", err.Error())
	}
	for _, pos := range positions {
		if pos.AssetClass == "crypto" {
			continue
		}
		if err := a.brokerage.ClosePosition(ctx, pos.Symbol); err != nil {
			a.log.Error("liquidation_close_failed", "symbol", pos.Symbol, "error", err.Error())
			continue
		}
		st.Crisis.ClosedDuringCrisis = append(st.Crisis.ClosedDuringCrisis, pos.Symbol)
		delete(st.PositionEntries, pos.Symbol)
		delete(st.PositionResearch, pos.Symbol)
		delete(st.Staleness, pos.Symbol)
		st.AppendLog("error", "position_closed", map[string]interface{}{
			"symbol": pos.Symbol,
			"reason": "CRISIS_LEVEL_3_LIQUIDATION",
		})
		a.bus.PublishTradeExit("stock", pos.Symbol, plPctOf(pos), "CRISIS_LEVEL_3_LIQUIDATION")
	}

	a.dex.LiquidateAll(st, now)
}

func plPctOf(p providers.BrokeragePosition) float64 {
	basis := p.MarketValue - p.UnrealizedPL
	if basis == 0 {
		return 0
	}
	return p.UnrealizedPL / basis * 100
}

func (a *Agent) gatherPhase(ctx context.Context, st *state.AgentState, now time.Time) {
	if !due(st.LastDataGatherRun, st.Config.DataPollIntervalMs, now) {
		return
	}
	signals := a.gatherers.Run(ctx, &st.Config)
	st.ReplaceSignalCache(signals, now)
	a.recordSocialHistory(st, signals)
	st.LastDataGatherRun = now
	a.log.Info("gather_complete", "signals", len(signals))
}

// recordSocialHistory keeps a short per-symbol volume series for the
// staleness volume-decay component.
func (a *Agent) recordSocialHistory(st *state.AgentState, signals []state.Signal) {
	const historyCap = 24
	for _, sig := range signals {
		if sig.Volume <= 0 {
			continue
		}
		h := append(st.SocialHistory[sig.Symbol], sig.Volume)
		if len(h) > historyCap {
			h = h[len(h)-historyCap:]
		}
		st.SocialHistory[sig.Symbol] = h
	}
}

func (a *Agent) researchPhase(ctx context.Context, st *state.AgentState, now time.Time) {
	if !due(st.LastResearchRun, st.Config.ResearchIntervalMs, now) {
		return
	}
	candidates := a.researcher.ResearchTopSignals(ctx, st, 5)
	st.LastResearchRun = now
	a.log.Debug("research_complete", "candidates", len(candidates))
}

func (a *Agent) marketHoursPhase(ctx context.Context, st *state.AgentState, account *providers.Account, positions []providers.BrokeragePosition, localNow, now time.Time) {
	a.premarketExecutePhase(ctx, st, account, positions, localNow)

	if due(st.LastAnalystRun, st.Config.AnalystIntervalMs, now) {
		a.stocks.Run(ctx, st, account, positions)
		report := a.researcher.Analyze(ctx, st, a.analystInput(st, account, positions, now))
		a.stocks.ProcessRecommendations(ctx, st, report, account, positions)
		st.LastAnalystRun = now
	}

	a.refreshPositionResearch(ctx, st, positions)
	a.options.RunExits(ctx, st, positions)
	a.confirmHeldSymbols(ctx, st, positions)
}

func (a *Agent) analystInput(st *state.AgentState, account *providers.Account, positions []providers.BrokeragePosition, now time.Time) research.AnalystInput {
	input := research.AnalystInput{
		CashUSD:    account.Cash,
		EquityUSD:  account.Equity,
		Candidates: research.AggregateCandidates(st.SignalCache),
		Signals:    st.SignalCache,
	}
	for _, pos := range positions {
		ap := research.AnalystPosition{
			Symbol:      pos.Symbol,
			PlPct:       plPctOf(pos),
			MarketValue: pos.MarketValue,
		}
		if entry, ok := st.PositionEntries[pos.Symbol]; ok {
			ap.HoldHours = now.Sub(entry.EntryTime).Hours()
			ap.EntryReason = entry.Reason
		}
		input.Positions = append(input.Positions, ap)
	}
	return input
}

// refreshPositionResearch re-runs the cheap model on held symbols whose
// verdict has aged past position_research_secs. The TTL check itself lives in
// ResearchPosition.
func (a *Agent) refreshPositionResearch(ctx context.Context, st *state.AgentState, positions []providers.BrokeragePosition) {
	for _, pos := range positions {
		if pos.AssetClass == "us_option" {
			continue
		}
		cand := research.Candidate{
			Symbol:            pos.Symbol,
			Price:             pos.CurrentPrice,
			IsCrypto:          pos.AssetClass == "crypto",
			WeightedSentiment: aggregateSentiment(st, pos.Symbol),
		}
		a.researcher.ResearchPosition(ctx, st, cand)
	}
}

func aggregateSentiment(st *state.AgentState, symbol string) float64 {
	var sum float64
	for _, sig := range st.SignalsFor(symbol) {
		sum += sig.WeightedSentiment
	}
	return sum
}

// confirmHeldSymbols pulls Twitter confirmations for held stocks when the
// feature and a feed are available. Budget and TTL gating happen inside.
func (a *Agent) confirmHeldSymbols(ctx context.Context, st *state.AgentState, positions []providers.BrokeragePosition) {
	if !st.Config.TwitterEnabled || a.twitter == nil {
		return
	}
	for _, pos := range positions {
		if pos.AssetClass != "us_equity" {
			continue
		}
		a.researcher.ConfirmTwitter(ctx, st, a.twitter, pos.Symbol)
	}
}

// rolloverDailyCost archives the day's spend into a log row and zeroes the
// daily budget counter. The lifetime counters stay monotone.
func (a *Agent) rolloverDailyCost(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.st
	st.AppendLog("info", "daily_cost_rollover", map[string]interface{}{
		"today_usd": st.Costs.TodayUSD,
		"total_usd": st.Costs.TotalUSD,
		"api_calls": st.Costs.APICalls,
	})
	st.Costs.TodayUSD = 0
	st.ResetTwitterCounterIfDue(time.Now())
	a.persist(ctx)
}

// due reports whether a phase last run at t is due again under an interval in
// milliseconds. Zero t means never ran.
func due(t time.Time, intervalMs int64, now time.Time) bool {
	if t.IsZero() {
		return true
	}
	return now.Sub(t) >= time.Duration(intervalMs)*time.Millisecond
}
