package dex

import (
	"testing"
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

func solanaPair(ageHours float64, now time.Time) providers.DexPair {
	return providers.DexPair{
		ChainID:       "solana",
		TokenAddress:  "TokenAAA",
		PairAddress:   "PairAAA",
		Symbol:        "AAA",
		PriceUsd:      0.001,
		PairCreatedAt: now.Add(-time.Duration(ageHours * float64(time.Hour))),
	}
}

func TestClassifyRejectsNonSolana(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	pair := solanaPair(100, now)
	pair.ChainID = "ethereum"
	if _, ok := Classify(pair, cfg, now); ok {
		t.Error("non-solana pair should be rejected")
	}
}

func TestClassifyRequiresCreationTime(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()
	pair := solanaPair(100, now)
	pair.PairCreatedAt = time.Time{}
	if _, ok := Classify(pair, cfg, now); ok {
		t.Error("pair without creation time should be rejected")
	}
}

// A 4 h old token qualifies for both breakout and lottery; lottery is the
// more conservative tier and wins.
func TestClassifyLotteryBeatsBreakout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DexLotteryEnabled = true
	cfg.DexBreakoutEnabled = true
	now := time.Now()

	pair := solanaPair(4, now)
	pair.LiquidityUsd = 20_000
	pair.Volume24h = 12_000
	pair.PriceChange5m = 60
	pair.PriceChange1h = 8
	pair.Buys24h = 20
	pair.Sells24h = 6

	sig, ok := Classify(pair, cfg, now)
	if !ok {
		t.Fatal("expected pair to classify")
	}
	if sig.Tier != state.TierLottery {
		t.Errorf("tier = %q, want lottery", sig.Tier)
	}
}

func TestClassifyHoneypotGate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DexLotteryEnabled = true
	now := time.Now()

	pair := solanaPair(4, now)
	pair.LiquidityUsd = 20_000
	pair.Volume24h = 12_000
	pair.PriceChange1h = 8
	pair.Buys24h = 500
	pair.Sells24h = 0

	if _, ok := Classify(pair, cfg, now); ok {
		t.Error("token with zero sells should not classify")
	}
}

func TestClassifyEstablishedWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()

	pair := solanaPair(5*24, now)
	pair.LiquidityUsd = 80_000
	pair.Volume24h = 50_000
	pair.Buys24h = 300
	pair.Sells24h = 250

	sig, ok := Classify(pair, cfg, now)
	if !ok {
		t.Fatal("expected established classification")
	}
	if sig.Tier != state.TierEstablished {
		t.Errorf("tier = %q, want established", sig.Tier)
	}
	if sig.MomentumScore < 0 {
		t.Errorf("momentum score = %v, want >= 0", sig.MomentumScore)
	}

	// past the max age the same token no longer qualifies
	tooOld := pair
	tooOld.PairCreatedAt = now.Add(-15 * 24 * time.Hour)
	if _, ok := Classify(tooOld, cfg, now); ok {
		t.Error("15 day old pair should fall outside every tier")
	}
}

func TestBuyRatioDefaultsToHalf(t *testing.T) {
	if got := buyRatio(0, 0); got != 0.5 {
		t.Errorf("buyRatio(0,0) = %v, want 0.5", got)
	}
	if got := buyRatio(3, 1); got != 0.75 {
		t.Errorf("buyRatio(3,1) = %v, want 0.75", got)
	}
}
