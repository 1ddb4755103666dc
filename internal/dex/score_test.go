package dex

import (
	"math"
	"testing"

	"social-trading-agent/internal/state"
)

func TestSlippageModels(t *testing.T) {
	if got := Slippage("none", 5_000, 50_000); got != 0 {
		t.Errorf("none model = %v, want 0", got)
	}
	// conservative: 0.005 + 2*pos/liq
	got := Slippage("conservative", 1_000, 100_000)
	want := 0.005 + 2*0.01
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("conservative = %v, want %v", got, want)
	}
	// realistic: 0.01 + 5*pos/liq
	got = Slippage("realistic", 1_000, 100_000)
	want = 0.01 + 5*0.01
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("realistic = %v, want %v", got, want)
	}
	// cap at 15% even for a position the size of the pool
	if got := Slippage("realistic", 100_000, 100_000); got != 0.15 {
		t.Errorf("cap = %v, want 0.15", got)
	}
}

func TestLegitimacyScore(t *testing.T) {
	full := LegitimacyScore(state.LegitimacySignals{
		HasWebsite: true, HasTwitter: true, HasTelegram: true,
		BoostCount: 15, SellsExist: true,
	})
	if full != 100 {
		t.Errorf("full marks = %v, want 100", full)
	}
	// boost contribution caps at 20
	boostsOnly := LegitimacyScore(state.LegitimacySignals{BoostCount: 50})
	if boostsOnly != 20 {
		t.Errorf("boosts only = %v, want 20", boostsOnly)
	}
	if LegitimacyScore(state.LegitimacySignals{}) != 0 {
		t.Error("empty signals should score 0")
	}
}

func TestPriceScoreCaps(t *testing.T) {
	if got := priceScore(200); got != 25 {
		t.Errorf("priceScore(200) = %v, want 25", got)
	}
	if got := priceScore(-50); got != 0 {
		t.Errorf("priceScore(-50) = %v, want 0", got)
	}
	if got := recentScore(100); got != 15 {
		t.Errorf("recentScore(100) = %v, want 15", got)
	}
}

func TestConsistencyScore(t *testing.T) {
	if got := consistencyScore(20, 5); got != 15 {
		t.Errorf("both green = %v, want 15", got)
	}
	if got := consistencyScore(20, -2); got != 5 {
		t.Errorf("fading = %v, want 5", got)
	}
	if got := consistencyScore(-5, 10); got != 0 {
		t.Errorf("6h red = %v, want 0", got)
	}
}

func TestLiqScore(t *testing.T) {
	// $10k pool is the zero point, $1M hits the 15 cap
	if got := liqScore(10_000); got != 0 {
		t.Errorf("liqScore(10k) = %v, want 0", got)
	}
	if got := liqScore(1_000_000); got != 15 {
		t.Errorf("liqScore(1M) = %v, want 15", got)
	}
	if got := liqScore(0); got != 0 {
		t.Errorf("liqScore(0) = %v, want 0", got)
	}
}

func TestBuyScoreBounds(t *testing.T) {
	if got := buyScore(1.0, 1.0); got != 10 {
		t.Errorf("all buys = %v, want 10", got)
	}
	if got := buyScore(0, 0); got != -10 {
		t.Errorf("all sells = %v, want -10", got)
	}
	if got := buyScore(0.5, 0.5); got != 0 {
		t.Errorf("balanced = %v, want 0", got)
	}
}

func TestVolatilityPenalty(t *testing.T) {
	// 1h move in line with the 6h hourly rate: no penalty
	if got := volatilityPenalty(5, 30); got != 0 {
		t.Errorf("steady = %v, want 0", got)
	}
	// single spike: 1h +40 against 6h +12 (hourly 2) is a 20x ratio, capped at -10
	if got := volatilityPenalty(40, 12); got != -10 {
		t.Errorf("spike = %v, want -10", got)
	}
}

func TestMomentumScoreFloorsAtZero(t *testing.T) {
	sig := &state.DexMomentumSignal{
		PriceChange24h: -80,
		PriceChange1h:  -40,
		PriceChange6h:  -60,
		BuyRatio1h:     0.1,
		BuyRatio24h:    0.1,
		Tier:           state.TierEstablished,
		AgeDays:        13,
	}
	if got := MomentumScore(sig); got != 0 {
		t.Errorf("collapsing token = %v, want 0", got)
	}
}

func TestTierBonus(t *testing.T) {
	lottery := &state.DexMomentumSignal{Tier: state.TierLottery, PriceChange5m: 100}
	if got := tierBonus(lottery); got != 15 {
		t.Errorf("lottery pump bonus = %v, want 15", got)
	}
	early := &state.DexMomentumSignal{Tier: state.TierEarly, LegitimacyScore: 100}
	if got := tierBonus(early); got != 15 {
		t.Errorf("early legitimacy bonus = %v, want 15", got)
	}
	// established peaks at 7 days old
	atPeak := &state.DexMomentumSignal{Tier: state.TierEstablished, AgeDays: 7}
	if got := tierBonus(atPeak); got != 15 {
		t.Errorf("established at 7d = %v, want 15", got)
	}
	old := &state.DexMomentumSignal{Tier: state.TierEstablished, AgeDays: 14}
	if got := tierBonus(old); got != -6 {
		t.Errorf("established at 14d = %v, want -6", got)
	}
}
