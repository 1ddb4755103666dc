// Package crisis scores macro stress indicators into a 0-3 level that gates
// position sizing and, at the top levels, forces liquidation.
package crisis

import (
	"context"
	"fmt"
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

// Monitor evaluates the indicator set. It never trades itself; engines read
// the resulting level from state.
type Monitor struct {
	macro providers.Macro
	bus   *events.Bus
	log   *logging.Logger
}

func NewMonitor(macro providers.Macro, bus *events.Bus, log *logging.Logger) *Monitor {
	return &Monitor{macro: macro, bus: bus, log: log.WithComponent("crisis")}
}

// Assessment is one scored pass over the indicators.
type Assessment struct {
	Score      int
	Level      int
	Triggered  []string
	Indicators map[string]*float64
}

// Check fetches indicators, scores them, and writes the new level into state.
// A manual override freezes the level until cleared.
func (m *Monitor) Check(ctx context.Context, st *state.AgentState) (*Assessment, error) {
	ind, err := m.macro.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch indicators: %w", err)
	}

	assessment := Score(ind, &st.Config)
	st.LastCrisisCheck = time.Now()
	st.Crisis.Indicators = assessment.Indicators
	st.Crisis.Triggered = assessment.Triggered

	if st.Crisis.ManualOverride {
		m.log.Info("crisis_override_active", "held_level", st.Crisis.Level, "computed_level", assessment.Level)
		return assessment, nil
	}

	if assessment.Level != st.Crisis.Level {
		prev := st.Crisis.Level
		st.Crisis.Level = assessment.Level
		st.Crisis.LastLevelChange = time.Now()
		m.log.Warn("crisis_level_change",
			"from", prev, "to", assessment.Level,
			"score", assessment.Score, "triggered", assessment.Triggered)
		if m.bus != nil {
			m.bus.PublishCrisisLevelChange(prev, assessment.Level, assessment.Triggered)
		}
	}
	return assessment, nil
}

// Score applies the threshold table. Nil indicators contribute nothing.
func Score(ind *providers.MacroIndicators, cfg *config.AgentConfig) *Assessment {
	a := &Assessment{Indicators: map[string]*float64{
		"vix":                    ind.VIX,
		"hy_spread_bps":          ind.HYSpreadBps,
		"yield_curve_2s10s":      ind.YieldCurve2s10s,
		"ted_spread":             ind.TEDSpread,
		"dxy":                    ind.DXY,
		"usdjpy":                 ind.USDJPY,
		"kre_weekly_pct":         ind.KREWeeklyPct,
		"silver_weekly_pct":      ind.SilverWeeklyPct,
		"fed_balance_weekly_pct": ind.FedBalanceWeekly,
		"btc_weekly_pct":         ind.BTCWeeklyPct,
		"usdt_peg":               ind.USDTPeg,
		"gold_silver_ratio":      ind.GoldSilverRatio,
		"stocks_above_200ma_pct": ind.StocksAbove200MA,
	}}

	add := func(points int, reason string) {
		a.Score += points
		a.Triggered = append(a.Triggered, reason)
	}

	if v := ind.VIX; v != nil {
		switch {
		case *v >= cfg.VIXCritical:
			add(3, fmt.Sprintf("VIX critical: %.1f >= %.1f", *v, cfg.VIXCritical))
		case *v >= cfg.VIXHigh:
			add(2, fmt.Sprintf("VIX high: %.1f >= %.1f", *v, cfg.VIXHigh))
		case *v >= cfg.VIXElevated:
			add(1, fmt.Sprintf("VIX elevated: %.1f >= %.1f", *v, cfg.VIXElevated))
		}
	}
	if v := ind.HYSpreadBps; v != nil {
		switch {
		case *v >= cfg.HYSpreadCritical:
			add(2, fmt.Sprintf("HY spread critical: %.0f bps >= %.0f", *v, cfg.HYSpreadCritical))
		case *v >= cfg.HYSpreadWarning:
			add(1, fmt.Sprintf("HY spread elevated: %.0f bps >= %.0f", *v, cfg.HYSpreadWarning))
		}
	}
	if v := ind.BTCWeeklyPct; v != nil {
		switch {
		case *v <= cfg.BTCWeeklyDropPct:
			add(2, fmt.Sprintf("BTC weekly crash: %.1f%% <= %.1f%%", *v, cfg.BTCWeeklyDropPct))
		case *v <= -10:
			add(1, fmt.Sprintf("BTC weekly drop: %.1f%%", *v))
		}
	}
	if v := ind.USDTPeg; v != nil && *v < cfg.StablecoinDepegThreshold {
		add(2, fmt.Sprintf("USDT depeg: %.4f < %.4f", *v, cfg.StablecoinDepegThreshold))
	}
	if v := ind.GoldSilverRatio; v != nil && *v < cfg.GoldSilverRatioLow {
		add(2, fmt.Sprintf("gold/silver ratio low: %.1f < %.1f", *v, cfg.GoldSilverRatioLow))
	}
	if v := ind.StocksAbove200MA; v != nil {
		switch {
		case *v < cfg.StocksAbove200MACritical:
			add(2, fmt.Sprintf("breadth critical: %.1f%% above 200MA < %.1f%%", *v, cfg.StocksAbove200MACritical))
		case *v < cfg.StocksAbove200MAWarning:
			add(1, fmt.Sprintf("breadth weak: %.1f%% above 200MA < %.1f%%", *v, cfg.StocksAbove200MAWarning))
		}
	}
	if v := ind.YieldCurve2s10s; v != nil {
		switch {
		case *v <= cfg.YieldCurveInversionCrit:
			add(2, fmt.Sprintf("yield curve deep inversion: %.2f <= %.2f", *v, cfg.YieldCurveInversionCrit))
		case *v <= cfg.YieldCurveInversionWarning:
			add(1, fmt.Sprintf("yield curve inverted: %.2f <= %.2f", *v, cfg.YieldCurveInversionWarning))
		}
	}
	if v := ind.TEDSpread; v != nil {
		switch {
		case *v >= cfg.TEDSpreadCritical:
			add(2, fmt.Sprintf("TED spread critical: %.2f >= %.2f", *v, cfg.TEDSpreadCritical))
		case *v >= cfg.TEDSpreadWarning:
			add(1, fmt.Sprintf("TED spread elevated: %.2f >= %.2f", *v, cfg.TEDSpreadWarning))
		}
	}
	if v := ind.DXY; v != nil {
		switch {
		case *v >= cfg.DXYCritical:
			add(2, fmt.Sprintf("DXY critical: %.1f >= %.1f", *v, cfg.DXYCritical))
		case *v >= cfg.DXYElevated:
			add(1, fmt.Sprintf("DXY elevated: %.1f >= %.1f", *v, cfg.DXYElevated))
		}
	}
	if v := ind.USDJPY; v != nil {
		switch {
		case *v <= cfg.USDJPYCritical:
			add(2, fmt.Sprintf("USD/JPY unwind critical: %.1f <= %.1f", *v, cfg.USDJPYCritical))
		case *v <= cfg.USDJPYWarning:
			add(1, fmt.Sprintf("USD/JPY unwind: %.1f <= %.1f", *v, cfg.USDJPYWarning))
		}
	}
	if v := ind.KREWeeklyPct; v != nil {
		switch {
		case *v <= cfg.KREWeeklyCritical:
			add(2, fmt.Sprintf("regional banks critical: %.1f%% <= %.1f%%", *v, cfg.KREWeeklyCritical))
		case *v <= cfg.KREWeeklyWarning:
			add(1, fmt.Sprintf("regional banks weak: %.1f%% <= %.1f%%", *v, cfg.KREWeeklyWarning))
		}
	}
	if v := ind.SilverWeeklyPct; v != nil {
		switch {
		case *v >= cfg.SilverWeeklyCritical:
			add(2, fmt.Sprintf("silver spike critical: %.1f%% >= %.1f%%", *v, cfg.SilverWeeklyCritical))
		case *v >= cfg.SilverWeeklyWarning:
			add(1, fmt.Sprintf("silver spike: %.1f%% >= %.1f%%", *v, cfg.SilverWeeklyWarning))
		}
	}
	if v := ind.FedBalanceWeekly; v != nil {
		abs := *v
		if abs < 0 {
			abs = -abs
		}
		switch {
		case abs >= cfg.FedBalanceWeeklyCritical:
			add(2, fmt.Sprintf("Fed balance sheet swing critical: %.2f%%", *v))
		case abs >= cfg.FedBalanceWeeklyWarning:
			add(1, fmt.Sprintf("Fed balance sheet swing: %.2f%%", *v))
		}
	}

	a.Level = levelForScore(a.Score)
	return a
}

func levelForScore(score int) int {
	switch {
	case score >= 6:
		return 3
	case score >= 4:
		return 2
	case score >= 2:
		return 1
	default:
		return 0
	}
}

// SizeMultiplier maps the crisis level to the position-size factor applied by
// the trading engines. Level 1 applies the configured reduction; levels 2 and
// 3 block new entries entirely.
func SizeMultiplier(level int, level1ReductionPct float64) float64 {
	switch level {
	case 0:
		return 1.0
	case 1:
		m := 1 - level1ReductionPct/100
		if m < 0 {
			m = 0
		}
		return m
	default:
		return 0
	}
}
