package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

const (
	optionsMaxSpreadPct = 0.10
	optionsSnapshotCap  = 5
)

// OptionsEngine picks and trades single-leg contracts next to a high
// conviction share entry.
type OptionsEngine struct {
	brokerage providers.Brokerage
	data      providers.MarketData
	chain     providers.OptionsData
	log       *logging.Logger
}

func NewOptionsEngine(brokerage providers.Brokerage, data providers.MarketData, chain providers.OptionsData, log *logging.Logger) *OptionsEngine {
	return &OptionsEngine{brokerage: brokerage, data: data, chain: chain, log: log.WithComponent("options-engine")}
}

// TryEntry selects a contract per the DTE/delta/spread filters and submits a
// limit buy at the mid.
func (o *OptionsEngine) TryEntry(ctx context.Context, st *state.AgentState, account *providers.Account, symbol, direction string) error {
	cfg := &st.Config

	expiration, err := o.pickExpiration(ctx, symbol, cfg.OptionsMinDTE, cfg.OptionsMaxDTE)
	if err != nil {
		return err
	}

	calls, puts, err := o.chain.GetChain(ctx, symbol, expiration)
	if err != nil {
		return fmt.Errorf("chain: %w", err)
	}
	contracts := calls
	if direction == "bearish" {
		contracts = puts
	}
	if len(contracts) == 0 {
		return fmt.Errorf("no %s contracts for %s %s", direction, symbol, expiration)
	}

	snap, err := o.data.GetSnapshot(ctx, symbol)
	if err != nil {
		return fmt.Errorf("underlying snapshot: %w", err)
	}

	// Bias the target strike by the desired delta band: higher delta means
	// closer to the money.
	midDelta := (cfg.OptionsMinDelta + cfg.OptionsMaxDelta) / 2
	offset := snap.Price * (0.5 - midDelta) * 0.2
	target := snap.Price + offset
	if direction == "bearish" {
		target = snap.Price - offset
	}
	sort.Slice(contracts, func(i, j int) bool {
		return math.Abs(contracts[i].Strike-target) < math.Abs(contracts[j].Strike-target)
	})
	if len(contracts) > optionsSnapshotCap {
		contracts = contracts[:optionsSnapshotCap]
	}

	for _, contract := range contracts {
		quote, err := o.chain.GetOptionSnapshot(ctx, contract.Symbol)
		if err != nil {
			o.log.Debug("option_snapshot_failed", "contract", contract.Symbol, "error", err.Error())
			continue
		}
		absDelta := math.Abs(quote.Delta)
		if absDelta < cfg.OptionsMinDelta || absDelta > cfg.OptionsMaxDelta {
			continue
		}
		if quote.Bid <= 0 || quote.Ask <= 0 {
			continue
		}
		if (quote.Ask-quote.Bid)/quote.Ask > optionsMaxSpreadPct {
			continue
		}

		mid := (quote.Bid + quote.Ask) / 2
		maxContracts := math.Floor(account.Equity * cfg.OptionsMaxPctPerTrade / 100 / (mid * 100))
		if maxContracts < 1 {
			return fmt.Errorf("equity too small for one contract at mid %.2f", mid)
		}

		order := providers.OrderRequest{
			Symbol:      contract.Symbol,
			Qty:         maxContracts,
			Side:        "buy",
			Type:        "limit",
			TimeInForce: "day",
			LimitPrice:  math.Round(mid*100) / 100,
		}
		ack, err := o.brokerage.CreateOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("submit option order: %w", err)
		}
		o.log.Info("option_opened",
			"contract", contract.Symbol, "qty", maxContracts,
			"limit", order.LimitPrice, "delta", quote.Delta, "order_id", ack.ID)
		st.AppendLog("INFO", "option_opened", map[string]interface{}{
			"contract": contract.Symbol, "qty": maxContracts, "limit": order.LimitPrice,
		})
		return nil
	}
	return fmt.Errorf("no contract passed the delta/spread filters for %s", symbol)
}

func (o *OptionsEngine) pickExpiration(ctx context.Context, symbol string, minDTE, maxDTE int) (string, error) {
	expirations, err := o.chain.GetExpirations(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("expirations: %w", err)
	}

	now := time.Now()
	targetDTE := float64(minDTE+maxDTE) / 2
	best := ""
	bestDist := math.MaxFloat64
	for _, exp := range expirations {
		date, err := time.Parse("2006-01-02", exp)
		if err != nil {
			continue
		}
		dte := date.Sub(now).Hours() / 24
		if dte < float64(minDTE) || dte > float64(maxDTE) {
			continue
		}
		if dist := math.Abs(dte - targetDTE); dist < bestDist {
			best, bestDist = exp, dist
		}
	}
	if best == "" {
		return "", fmt.Errorf("no expiration in [%d,%d] DTE for %s", minDTE, maxDTE, symbol)
	}
	return best, nil
}

// RunExits closes option positions at the fixed TP/SL against the average
// entry price.
func (o *OptionsEngine) RunExits(ctx context.Context, st *state.AgentState, positions []providers.BrokeragePosition) {
	cfg := &st.Config
	for _, pos := range positions {
		if pos.AssetClass != "us_option" || pos.AvgEntryPrice == 0 {
			continue
		}
		pl := (pos.CurrentPrice - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100

		var reason string
		switch {
		case pl >= cfg.OptionsTakeProfitPct:
			reason = "take profit"
		case pl <= -cfg.OptionsStopLossPct:
			reason = "stop loss"
		default:
			continue
		}

		if err := o.brokerage.ClosePosition(ctx, pos.Symbol); err != nil {
			o.log.Error("option_close_failed", "contract", pos.Symbol, "error", err.Error())
			continue
		}
		o.log.Info("option_closed", "contract", pos.Symbol, "pl_pct", pl, "reason", reason)
		st.AppendLog("INFO", "option_closed", map[string]interface{}{
			"contract": pos.Symbol, "pl_pct": pl, "reason": reason,
		})
	}
}
