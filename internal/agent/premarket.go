package agent

import (
	"context"
	"time"

	"social-trading-agent/internal/engine"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

// planMaxAge is how old a plan may be at execution time. A plan built before
// an outage that resurfaces mid-morning is stale, not actionable.
const planMaxAge = 600 * time.Second

// premarketBuildPhase builds the opening plan in the 09:25-09:29 window,
// Mon-Fri, at most once.
func (a *Agent) premarketBuildPhase(ctx context.Context, st *state.AgentState, localNow time.Time) {
	if st.Plan != nil {
		return
	}
	if !inWindow(localNow, 9, 25, 9, 29) {
		return
	}

	candidates := a.researcher.ResearchTopSignals(ctx, st, 10)
	if len(candidates) == 0 {
		return
	}

	account, positions, ok := a.fetchAccount(ctx)
	if !ok {
		return
	}
	report := a.researcher.Analyze(ctx, st, a.analystInput(st, account, positions, time.Now()))
	if report == nil {
		return
	}
	st.Plan = &state.PremarketPlan{Report: report, CreatedAt: time.Now()}
	st.AppendLog("info", "premarket_plan_built", map[string]interface{}{
		"recommendations": len(report.Recommendations),
		"market_summary":  report.MarketSummary,
	})
	a.log.Info("premarket_plan_built", "recommendations", len(report.Recommendations))
}

// premarketExecutePhase runs the stored plan in a single pass during
// 09:30-09:32. Sells go first so their cash is available to the buys.
func (a *Agent) premarketExecutePhase(ctx context.Context, st *state.AgentState, account *providers.Account, positions []providers.BrokeragePosition, localNow time.Time) {
	if st.Plan == nil {
		return
	}
	if !inWindow(localNow, 9, 30, 9, 32) {
		return
	}
	plan := st.Plan
	st.Plan = nil

	if time.Since(plan.CreatedAt) > planMaxAge {
		a.log.Warn("premarket_plan_stale", "age", time.Since(plan.CreatedAt).String())
		st.AppendLog("warn", "premarket_plan_stale", nil)
		return
	}

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	cfg := &st.Config

	for _, rec := range plan.Report.Recommendations {
		if rec.Action != "SELL" || !held[rec.Symbol] {
			continue
		}
		if err := a.brokerage.ClosePosition(ctx, rec.Symbol); err != nil {
			a.log.Error("close_failed", "symbol", rec.Symbol, "reason", "premarket plan", "error", err.Error())
			continue
		}
		delete(st.PositionEntries, rec.Symbol)
		delete(st.PositionResearch, rec.Symbol)
		delete(st.Staleness, rec.Symbol)
		delete(held, rec.Symbol)
		st.AppendLog("info", "position_closed", map[string]interface{}{
			"symbol": rec.Symbol,
			"reason": "premarket plan",
		})
		a.bus.PublishTradeExit("stock", rec.Symbol, 0, "premarket plan")
	}

	open := len(held)
	for _, rec := range plan.Report.Recommendations {
		if rec.Action != "BUY" || held[rec.Symbol] {
			continue
		}
		if open >= cfg.MaxPositions {
			a.log.Info("premarket_buy_skipped_position_cap", "symbol", rec.Symbol)
			continue
		}
		if rec.Confidence < cfg.MinAnalystConfidence {
			continue
		}
		if a.stocks.Buy(ctx, st, engine.BuyRequest{
			Symbol:     rec.Symbol,
			Confidence: rec.Confidence,
			Cash:       account.Cash,
			Reason:     "premarket plan: " + rec.Reasoning,
		}) {
			held[rec.Symbol] = true
			open++
		}
	}
	a.log.Info("premarket_plan_executed", "recommendations", len(plan.Report.Recommendations))
}

// inWindow reports whether local time falls inside [fromH:fromM, toH:toM] on
// a weekday. The bounds are minute-inclusive on both ends.
func inWindow(local time.Time, fromH, fromM, toH, toM int) bool {
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= fromH*60+fromM && minutes <= toH*60+toM
}
