package dex

import (
	"testing"
	"time"

	"social-trading-agent/internal/providers"
)

func candleSeries(closes []float64, volume float64) []providers.Candle {
	out := make([]providers.Candle, len(closes))
	base := time.Now().Add(-time.Duration(len(closes)) * 5 * time.Minute)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		hi, lo := open, open
		if c > hi {
			hi = c
		}
		if c < lo {
			lo = c
		}
		out[i] = providers.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      hi * 1.01,
			Low:       lo * 0.99,
			Close:     c,
			Volume:    volume,
		}
	}
	return out
}

func TestRSIBounds(t *testing.T) {
	up := candleSeries([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 100)
	if got := rsi(up, 14); got != 100 {
		t.Errorf("all gains rsi = %v, want 100", got)
	}
	down := candleSeries([]float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, 100)
	if got := rsi(down, 14); got != 0 {
		t.Errorf("all losses rsi = %v, want 0", got)
	}
	flat := candleSeries([]float64{5, 5, 5, 5, 5}, 100)
	if got := rsi(flat, 14); got != 50 {
		t.Errorf("flat rsi = %v, want 50", got)
	}
}

func TestDetectTrend(t *testing.T) {
	up := candleSeries([]float64{1, 1.1, 1.2, 1.3, 1.4, 1.5, 1.6, 1.7, 1.8, 1.9, 2.0, 2.1, 2.2, 2.3, 2.4}, 100)
	if got := detectTrend(up); got != "up" {
		t.Errorf("trend = %q, want up", got)
	}
	flat := candleSeries([]float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, 100)
	if got := detectTrend(flat); got != "sideways" {
		t.Errorf("trend = %q, want sideways", got)
	}
}

func TestAnalyzeCandlesRecommendationBands(t *testing.T) {
	// Steady uptrend: should land in a buy band, never avoid.
	up := candleSeries([]float64{1, 1.02, 1.04, 1.06, 1.08, 1.10, 1.12, 1.14, 1.16, 1.18, 1.20, 1.22}, 100)
	a := AnalyzeCandles(up)
	if a.Recommendation == "avoid" {
		t.Errorf("uptrend recommendation = %q with score %v", a.Recommendation, a.EntryScore)
	}
	if a.Trend != "up" {
		t.Errorf("trend = %q, want up", a.Trend)
	}

	// Collapsing price should score poorly.
	down := candleSeries([]float64{2.4, 2.2, 2.0, 1.8, 1.6, 1.4, 1.2, 1.0, 0.8, 0.6, 0.4, 0.2}, 100)
	b := AnalyzeCandles(down)
	if b.EntryScore >= a.EntryScore {
		t.Errorf("downtrend score %v should be below uptrend score %v", b.EntryScore, a.EntryScore)
	}
	if b.Trend != "down" {
		t.Errorf("trend = %q, want down", b.Trend)
	}
}

func TestSupportResistance(t *testing.T) {
	candles := candleSeries([]float64{1.0, 1.2, 0.9, 1.1, 1.3, 1.0, 1.05, 1.1, 1.15, 1.2}, 100)
	support, resistance := supportResistance(candles, 20)
	if support >= resistance {
		t.Errorf("support %v should sit below resistance %v", support, resistance)
	}
	if resistance < 1.3 {
		t.Errorf("resistance = %v, want at least the 1.3 high", resistance)
	}
}

func TestVolumeProfile(t *testing.T) {
	up := candleSeries([]float64{1, 1.1, 1.2, 1.3, 1.4}, 100)
	if got := volumeProfile(up); got != "accumulation" {
		t.Errorf("rising closes = %q, want accumulation", got)
	}
	down := candleSeries([]float64{1.4, 1.3, 1.2, 1.1, 1.0}, 100)
	if got := volumeProfile(down); got != "distribution" {
		t.Errorf("falling closes = %q, want distribution", got)
	}
}
