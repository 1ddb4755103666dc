package gather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

const (
	trendingLimit = 15
	messagesPerSymbol = 30
)

// StocktwitsGatherer turns the trending feed into per-symbol Signals.
type StocktwitsGatherer struct {
	feed providers.StocktwitsFeed
	log  *logging.Logger
}

func NewStocktwitsGatherer(feed providers.StocktwitsFeed, log *logging.Logger) *StocktwitsGatherer {
	return &StocktwitsGatherer{feed: feed, log: log.WithComponent("gather-stocktwits")}
}

func (g *StocktwitsGatherer) Name() string { return "stocktwits" }

func (g *StocktwitsGatherer) Gather(ctx context.Context, cfg *config.AgentConfig) ([]state.Signal, error) {
	symbols, err := g.feed.Trending(ctx)
	if err != nil {
		if errors.Is(err, providers.ErrPermanent) {
			g.log.Warn("source_blocked", "source", g.Name())
			return nil, nil
		}
		return nil, fmt.Errorf("trending: %w", err)
	}
	if len(symbols) > trendingLimit {
		symbols = symbols[:trendingLimit]
	}

	now := time.Now()
	var signals []state.Signal
	for _, symbol := range symbols {
		msgs, err := g.feed.Messages(ctx, symbol)
		if err != nil {
			g.log.Debug("messages_failed", "symbol", symbol, "error", err.Error())
			continue
		}
		if len(msgs) > messagesPerSymbol {
			msgs = msgs[:messagesPerSymbol]
		}
		if sig, ok := g.scoreSymbol(symbol, msgs, cfg, now); ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func (g *StocktwitsGatherer) scoreSymbol(symbol string, msgs []providers.SocialMessage, cfg *config.AgentConfig, now time.Time) (state.Signal, bool) {
	if len(msgs) == 0 {
		return state.Signal{}, false
	}

	var bullish, bearish int
	var weighted, rawSum float64
	var upvotes int
	for _, m := range msgs {
		var raw float64
		switch m.Sentiment {
		case "Bullish":
			raw = 1
			bullish++
		case "Bearish":
			raw = -1
			bearish++
		default:
			raw = scoreText(m.Body)
			if raw > 0.2 {
				bullish++
			} else if raw < -0.2 {
				bearish++
			}
		}
		rawSum += raw
		weighted += raw * timeDecay(m.CreatedAt, now)
		upvotes += m.Upvotes
	}

	avgRaw := rawSum / float64(len(msgs))
	avgWeighted := weighted / float64(len(msgs)) * cfg.SourceWeightStocktwits
	return state.Signal{
		Symbol:            symbol,
		Source:            g.Name(),
		Sentiment:         avgRaw,
		WeightedSentiment: avgWeighted,
		Volume:            len(msgs),
		Upvotes:           upvotes,
		Timestamp:         now,
		Reason:            fmt.Sprintf("%d bullish / %d bearish of %d messages", bullish, bearish, len(msgs)),
	}, true
}
