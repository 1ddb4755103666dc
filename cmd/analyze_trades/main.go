// Command analyze_trades prints win/loss statistics from a state snapshot
// file: overall paper-book metrics plus a per-tier and per-exit-reason
// breakdown of the DEX trade ledger.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"social-trading-agent/config"
	"social-trading-agent/internal/dex"
	"social-trading-agent/internal/state"
)

type bucketStats struct {
	Name     string
	Trades   int
	Wins     int
	PnLSol   float64
	TotalPct float64
}

func main() {
	path := flag.String("state", "agent_state.json", "path to the state snapshot")
	flag.Parse()

	raw, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read snapshot: %v\n", err)
		os.Exit(1)
	}
	st := state.NewAgentState(config.DefaultConfig())
	if err := json.Unmarshal(raw, st); err != nil {
		fmt.Fprintf(os.Stderr, "decode snapshot: %v\n", err)
		os.Exit(1)
	}

	book := &st.Dex
	totalValue := book.PaperBalanceSol
	if n := len(book.PortfolioHistory); n > 0 {
		totalValue = book.PortfolioHistory[n-1].TotalValueSol
	}
	m := dex.ComputeMetrics(book, totalValue, false)

	fmt.Printf("DEX paper book: %d trades, balance %.4f SOL, realized %.4f SOL\n",
		m.TotalTrades, book.PaperBalanceSol, m.RealizedPnLSol)
	fmt.Printf("win rate %.1f%%  expectancy %.2f%%  profit factor %.2f  sharpe %.2f\n",
		m.WinRate*100, m.Expectancy, m.ProfitFactor, m.Sharpe)
	fmt.Printf("avg win %.2f%%  avg loss %.2f%%  max drawdown %.1f%%  worst streak %d losses\n",
		m.AvgWinPct, m.AvgLossPct, m.MaxDrawdownPct, m.MaxConsecutiveLosses)
	fmt.Println()

	printBuckets("By tier", bucketBy(book.TradeHistory, func(t state.DexTradeRecord) string {
		return string(t.Tier)
	}))
	printBuckets("By exit reason", bucketBy(book.TradeHistory, func(t state.DexTradeRecord) string {
		return string(t.ExitReason)
	}))
}

func bucketBy(trades []state.DexTradeRecord, key func(state.DexTradeRecord) string) []bucketStats {
	byKey := map[string]*bucketStats{}
	for _, t := range trades {
		k := key(t)
		b, ok := byKey[k]
		if !ok {
			b = &bucketStats{Name: k}
			byKey[k] = b
		}
		b.Trades++
		if t.PnLPct > 0 {
			b.Wins++
		}
		b.PnLSol += t.PnLSol
		b.TotalPct += t.PnLPct
	}
	out := make([]bucketStats, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PnLSol > out[j].PnLSol })
	return out
}

func printBuckets(title string, buckets []bucketStats) {
	if len(buckets) == 0 {
		return
	}
	fmt.Println(title)
	fmt.Printf("  %-20s %7s %8s %12s %10s\n", "bucket", "trades", "win%", "pnl (SOL)", "avg pnl%")
	for _, b := range buckets {
		winRate := 0.0
		if b.Trades > 0 {
			winRate = float64(b.Wins) / float64(b.Trades) * 100
		}
		fmt.Printf("  %-20s %7d %7.1f%% %12.4f %9.2f%%\n",
			b.Name, b.Trades, winRate, b.PnLSol, b.TotalPct/float64(b.Trades))
	}
	fmt.Println()
}
