package dex

import (
	"math"

	"social-trading-agent/internal/state"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LegitimacyScore grades a token 0-100 from its social presence, paid boosts,
// and whether sells exist at all (the honeypot tell).
func LegitimacyScore(sig state.LegitimacySignals) float64 {
	score := 0.0
	if sig.HasWebsite {
		score += 25
	}
	if sig.HasTwitter {
		score += 25
	}
	if sig.HasTelegram {
		score += 20
	}
	score += math.Min(20, 2*float64(sig.BoostCount))
	if sig.SellsExist {
		score += 10
	}
	return score
}

// MomentumScore sums the component scores for one candidate. The raw sum can
// reach ~130 before the floor at 0; there is no upper clamp.
func MomentumScore(sig *state.DexMomentumSignal) float64 {
	score := priceScore(sig.PriceChange24h) +
		recentScore(sig.PriceChange1h) +
		consistencyScore(sig.PriceChange6h, sig.PriceChange1h) +
		liqScore(sig.LiquidityUsd) +
		volumeScore(sig.Volume24h, sig.LiquidityUsd) +
		volAccelScore(sig.Volume6h, sig.Volume24h) +
		buyScore(sig.BuyRatio24h, sig.BuyRatio1h) +
		organicScore(sig.TxnCount24h, sig.Volume24h) +
		volatilityPenalty(sig.PriceChange1h, sig.PriceChange6h) +
		tierBonus(sig)
	if score < 0 {
		return 0
	}
	return score
}

func priceScore(change24h float64) float64 {
	return clamp(change24h/4, 0, 25)
}

func recentScore(change1h float64) float64 {
	return clamp(change1h*0.75, 0, 15)
}

// consistencyScore rewards a move that is still running: full credit when the
// 6h and 1h legs agree, partial when 1h is fading, nothing when 6h is red.
func consistencyScore(change6h, change1h float64) float64 {
	switch {
	case change6h > 0 && change1h > 0:
		return 15
	case change6h > 0:
		return 5
	default:
		return 0
	}
}

func liqScore(liquidityUsd float64) float64 {
	if liquidityUsd <= 0 {
		return 0
	}
	return clamp(math.Log10(liquidityUsd/10_000)*7.5, 0, 15)
}

func volumeScore(volume24h, liquidityUsd float64) float64 {
	if liquidityUsd <= 0 {
		return 0
	}
	return clamp(volume24h/liquidityUsd*2, 0, 10)
}

// volAccelScore rewards 6h volume running ahead of the 24h pace.
func volAccelScore(volume6h, volume24h float64) float64 {
	if volume24h <= 0 {
		return 0
	}
	pace := volume24h / 4
	if pace <= 0 {
		return 0
	}
	return clamp((volume6h/pace-1)*5, 0, 5)
}

// buyScore tilts with the buy ratio on both windows, -10..+10.
func buyScore(buyRatio24h, buyRatio1h float64) float64 {
	return clamp(((buyRatio24h-0.5)+(buyRatio1h-0.5))*20, -10, 10)
}

// organicScore prefers many small transactions over a few whale prints.
func organicScore(txnCount24h int, volume24h float64) float64 {
	if txnCount24h <= 0 || volume24h <= 0 {
		return 0
	}
	avgTxnUsd := volume24h / float64(txnCount24h)
	switch {
	case avgTxnUsd <= 200:
		return 10
	case avgTxnUsd <= 1_000:
		return 5
	case avgTxnUsd <= 5_000:
		return 2
	default:
		return 0
	}
}

// volatilityPenalty docks tokens whose 1h move dwarfs their 6h hourly rate,
// the signature of a single spike rather than a trend.
func volatilityPenalty(change1h, change6h float64) float64 {
	hourly := math.Abs(change6h) / 6
	if hourly < 1 {
		hourly = 1
	}
	ratio := math.Abs(change1h) / hourly
	if ratio <= 3 {
		return 0
	}
	return -math.Min(10, ratio-3)
}

// tierBonus is the tier-specific adjustment, -15..+15.
func tierBonus(sig *state.DexMomentumSignal) float64 {
	switch sig.Tier {
	case state.TierMicrospray, state.TierLottery, state.TierBreakout:
		return clamp(sig.PriceChange5m/4, -15, 15)
	case state.TierEarly:
		return clamp((sig.LegitimacyScore-50)/50*15, -15, 15)
	case state.TierEstablished:
		return clamp(15-math.Abs(sig.AgeDays-7)*3, -15, 15)
	default:
		return 0
	}
}
