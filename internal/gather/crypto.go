package gather

import (
	"context"
	"fmt"
	"math"
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

// CryptoGatherer emits a momentum Signal per configured symbol whose move
// since the previous daily close clears the threshold.
type CryptoGatherer struct {
	data providers.MarketData
	log  *logging.Logger
}

func NewCryptoGatherer(data providers.MarketData, log *logging.Logger) *CryptoGatherer {
	return &CryptoGatherer{data: data, log: log.WithComponent("gather-crypto")}
}

func (g *CryptoGatherer) Name() string { return "crypto" }

func (g *CryptoGatherer) Gather(ctx context.Context, cfg *config.AgentConfig) ([]state.Signal, error) {
	if !cfg.CryptoEnabled {
		return nil, nil
	}

	now := time.Now()
	var signals []state.Signal
	for _, symbol := range cfg.CryptoSymbols {
		snap, err := g.data.GetCryptoSnapshot(ctx, symbol)
		if err != nil {
			g.log.Debug("snapshot_failed", "symbol", symbol, "error", err.Error())
			continue
		}
		if snap.PrevDailyClose <= 0 {
			continue
		}
		momentumPct := (snap.Price - snap.PrevDailyClose) / snap.PrevDailyClose * 100
		if math.Abs(momentumPct) < cfg.CryptoMomentumThreshold {
			continue
		}

		sentiment := momentumPct / 10
		if sentiment > 1 {
			sentiment = 1
		}
		if sentiment < -1 {
			sentiment = -1
		}
		signals = append(signals, state.Signal{
			Symbol:            symbol,
			Source:            g.Name(),
			Sentiment:         sentiment,
			WeightedSentiment: sentiment * cfg.SourceWeightCrypto,
			Volume:            1,
			MomentumPct:       momentumPct,
			IsCrypto:          true,
			Price:             snap.Price,
			Timestamp:         now,
			Reason:            fmt.Sprintf("%.2f%% move vs prev close", momentumPct),
		})
	}
	return signals, nil
}
