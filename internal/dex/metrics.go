package dex

import (
	"math"

	"social-trading-agent/internal/state"
)

const profitFactorCap = 999

// Metrics is the derived DEX performance view served by the control plane.
type Metrics struct {
	TotalTrades        int     `json:"total_trades"`
	WinRate            float64 `json:"win_rate"`
	AvgWinPct          float64 `json:"avg_win_pct"`
	AvgLossPct         float64 `json:"avg_loss_pct"`
	Expectancy         float64 `json:"expectancy"`
	ProfitFactor       float64 `json:"profit_factor"`
	Sharpe             float64 `json:"sharpe"`
	MaxConsecutiveLosses int   `json:"max_consecutive_losses"`
	CurrentLossStreak  int     `json:"current_loss_streak"`
	MaxWinStreak       int     `json:"max_win_streak"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct"`
	CurrentDrawdownPct float64 `json:"current_drawdown_pct"`
	BreakerActive      bool    `json:"breaker_active"`
	DrawdownPaused     bool    `json:"drawdown_paused"`
	PeakValueSol       float64 `json:"peak_value_sol"`
	RealizedPnLSol     float64 `json:"realized_pnl_sol"`
}

// ComputeMetrics derives the performance stats from the trade ledger and the
// portfolio history.
func ComputeMetrics(book *state.DexBook, totalValueSol float64, breakerActive bool) Metrics {
	m := Metrics{
		TotalTrades:          len(book.TradeHistory),
		MaxConsecutiveLosses: book.MaxLossStreak,
		CurrentLossStreak:    book.CurrentLossStreak,
		MaxWinStreak:         book.MaxWinStreak,
		BreakerActive:        breakerActive,
		DrawdownPaused:       book.DrawdownPaused,
		PeakValueSol:         book.PeakValueSol,
		RealizedPnLSol:       book.RealizedPnLSol,
	}
	if m.TotalTrades == 0 {
		return m
	}

	var wins, losses int
	var winPctSum, lossPctSum float64
	var winSol, lossSol float64
	returns := make([]float64, 0, m.TotalTrades)
	for _, trade := range book.TradeHistory {
		returns = append(returns, trade.PnLPct)
		if trade.PnLSol >= 0 {
			wins++
			winPctSum += trade.PnLPct
			winSol += trade.PnLSol
		} else {
			losses++
			lossPctSum += trade.PnLPct
			lossSol += trade.PnLSol
		}
	}

	m.WinRate = float64(wins) / float64(m.TotalTrades)
	if wins > 0 {
		m.AvgWinPct = winPctSum / float64(wins)
	}
	if losses > 0 {
		m.AvgLossPct = lossPctSum / float64(losses)
	}
	m.Expectancy = m.WinRate*m.AvgWinPct - (1-m.WinRate)*math.Abs(m.AvgLossPct)

	switch {
	case lossSol == 0 && winSol > 0:
		m.ProfitFactor = profitFactorCap
	case lossSol != 0:
		m.ProfitFactor = math.Min(winSol/math.Abs(lossSol), profitFactorCap)
	}

	m.Sharpe = sharpe(returns)

	if book.PeakValueSol > 0 && totalValueSol < book.PeakValueSol {
		m.CurrentDrawdownPct = (book.PeakValueSol - totalValueSol) / book.PeakValueSol * 100
	}
	m.MaxDrawdownPct = maxDrawdown(book.PortfolioHistory)
	return m
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdev := math.Sqrt(variance / float64(len(returns)-1))
	if stdev == 0 {
		return 0
	}
	return mean / stdev
}

func maxDrawdown(history []state.PortfolioSnapshot) float64 {
	var peak, worst float64
	for _, snap := range history {
		if snap.TotalValueSol > peak {
			peak = snap.TotalValueSol
		}
		if peak > 0 {
			dd := (peak - snap.TotalValueSol) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// updateStreaks maintains the win/loss streak counters after one closed
// trade.
func updateStreaks(book *state.DexBook, pnlSol float64) {
	if pnlSol >= 0 {
		book.CurrentWinStreak++
		book.CurrentLossStreak = 0
		if book.CurrentWinStreak > book.MaxWinStreak {
			book.MaxWinStreak = book.CurrentWinStreak
		}
	} else {
		book.CurrentLossStreak++
		book.CurrentWinStreak = 0
		if book.CurrentLossStreak > book.MaxLossStreak {
			book.MaxLossStreak = book.CurrentLossStreak
		}
	}
}
