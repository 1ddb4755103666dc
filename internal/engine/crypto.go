package engine

import (
	"context"
	"sort"
	"strings"

	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/research"
	"social-trading-agent/internal/state"
)

const cryptoEntryScanCap = 2

// CryptoEngine trades the 24/7 centralized crypto pairs off momentum signals.
// Orders go through the same brokerage as stocks; only the sizing cap and
// time-in-force differ.
type CryptoEngine struct {
	stock      *StockEngine
	brokerage  providers.Brokerage
	researcher *research.Researcher
	bus        *events.Bus
	log        *logging.Logger
}

func NewCryptoEngine(stock *StockEngine, brokerage providers.Brokerage, researcher *research.Researcher, bus *events.Bus, log *logging.Logger) *CryptoEngine {
	return &CryptoEngine{
		stock:      stock,
		brokerage:  brokerage,
		researcher: researcher,
		bus:        bus,
		log:        log.WithComponent("crypto-engine"),
	}
}

// Run does one exit + entry pass over the crypto book.
func (e *CryptoEngine) Run(ctx context.Context, st *state.AgentState, account *providers.Account, positions []providers.BrokeragePosition) {
	if !st.Config.CryptoEnabled {
		return
	}
	e.runExits(ctx, st, positions)
	e.runEntries(ctx, st, account, positions)
}

func (e *CryptoEngine) runExits(ctx context.Context, st *state.AgentState, positions []providers.BrokeragePosition) {
	cfg := &st.Config
	for _, pos := range positions {
		if pos.AssetClass != "crypto" {
			continue
		}
		pl := plPct(pos)

		var reason string
		switch {
		case pl >= cfg.CryptoTakeProfitPct:
			reason = "take profit"
		case pl <= -cfg.CryptoStopLossPct:
			reason = "stop loss"
		default:
			continue
		}

		if err := e.brokerage.ClosePosition(ctx, pos.Symbol); err != nil {
			e.log.Error("crypto_close_failed", "symbol", pos.Symbol, "error", err.Error())
			continue
		}
		e.log.Info("crypto_closed", "symbol", pos.Symbol, "pl_pct", pl, "reason", reason)
		st.AppendLog("INFO", "crypto_closed", map[string]interface{}{
			"symbol": pos.Symbol, "pl_pct": pl, "reason": reason,
		})
		delete(st.PositionEntries, pos.Symbol)
		if e.bus != nil {
			e.bus.PublishTradeExit("crypto", pos.Symbol, pl, reason)
		}
	}
}

func (e *CryptoEngine) runEntries(ctx context.Context, st *state.AgentState, account *providers.Account, positions []providers.BrokeragePosition) {
	cfg := &st.Config

	heldCrypto := 0
	held := map[string]bool{}
	for _, pos := range positions {
		held[pos.Symbol] = true
		if pos.AssetClass == "crypto" {
			heldCrypto++
		}
	}
	maxConcurrent := len(cfg.CryptoSymbols)
	if maxConcurrent > 3 {
		maxConcurrent = 3
	}
	if heldCrypto >= maxConcurrent {
		return
	}

	var candidates []state.Signal
	for _, sig := range st.SignalCache {
		if sig.IsCrypto && sig.Sentiment > 0 && !held[sig.Symbol] {
			candidates = append(candidates, sig)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].MomentumPct > candidates[j].MomentumPct
	})
	if len(candidates) > cryptoEntryScanCap {
		candidates = candidates[:cryptoEntryScanCap]
	}

	for _, sig := range candidates {
		if heldCrypto >= maxConcurrent {
			break
		}
		res := e.researcher.ResearchCrypto(ctx, st, research.Candidate{
			Symbol:            sig.Symbol,
			WeightedSentiment: sig.WeightedSentiment,
			Volume:            sig.Volume,
			Sources:           []string{sig.Source},
			Price:             sig.Price,
			IsCrypto:          true,
		})
		if res == nil || res.Verdict != state.VerdictBuy || res.Confidence < cfg.MinAnalystConfidence {
			continue
		}

		if e.stock.Buy(ctx, st, BuyRequest{
			Symbol:     sig.Symbol,
			Confidence: res.Confidence,
			Cash:       account.Cash,
			IsCrypto:   true,
			MaxValue:   cfg.CryptoMaxPositionValue,
			Reason:     "crypto momentum: " + sig.Reason,
		}) {
			heldCrypto++
			held[sig.Symbol] = true
		}
	}
}

// NormalizeCryptoSymbol maps user-entered pairs to the data API form, e.g.
// "btcusd" -> "BTC/USD".
func NormalizeCryptoSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, "/") {
		return s
	}
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)] + "/" + quote
		}
	}
	return s
}
