package dex

import (
	"context"
	"errors"
	"math"

	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
)

const chartMinCandles = 10

// ChartAnalysis is the result of the OHLCV entry gate.
type ChartAnalysis struct {
	Patterns           []string `json:"patterns"`
	Trend              string   `json:"trend"`  // up, down, sideways
	Volatility         float64  `json:"volatility"`
	VolumeProfile      string   `json:"volume_profile"`      // accumulation, distribution, neutral
	VolumeConfirmation string   `json:"volume_confirmation"` // confirmed, diverging, climax
	RSI                float64  `json:"rsi"`
	MomentumQuality    string   `json:"momentum_quality"` // fresh, extended, exhausted
	BreakoutQuality    string   `json:"breakout_quality"` // strong, weak, failed, none
	Support            float64  `json:"support"`
	Resistance         float64  `json:"resistance"`
	EntryScore         float64  `json:"entry_score"`
	Recommendation     string   `json:"recommendation"` // strong_buy, buy, wait, avoid
}

// ChartGate fetches OHLCV and scores the entry. A nil analysis with nil error
// means "no gate": the token is too new or history is too thin, and the
// candidate passes unjudged.
type ChartGate struct {
	chart providers.DexChart
	log   *logging.Logger
}

func NewChartGate(chart providers.DexChart, log *logging.Logger) *ChartGate {
	return &ChartGate{chart: chart, log: log.WithComponent("dex-chart")}
}

// Analyze runs the gate for one token. Provider errors also yield (nil, err)
// and callers must not reject on them.
func (g *ChartGate) Analyze(ctx context.Context, tokenAddress string, ageHours float64) (*ChartAnalysis, error) {
	interval := 15
	if ageHours < 3 {
		interval = 5
	}
	candles, err := g.chart.GetOHLCV(ctx, tokenAddress, interval, 50)
	if err != nil {
		if errors.Is(err, providers.ErrTooNew) {
			return nil, nil
		}
		return nil, err
	}
	if len(candles) < chartMinCandles {
		return nil, nil
	}
	return AnalyzeCandles(candles), nil
}

// AnalyzeCandles computes the pattern list, indicators, and entry score from
// chronological candles.
func AnalyzeCandles(candles []providers.Candle) *ChartAnalysis {
	a := &ChartAnalysis{}
	n := len(candles)
	last := candles[n-1]

	a.Trend = detectTrend(candles)
	a.Volatility = returnStdev(candles)
	a.VolumeProfile = volumeProfile(candles)
	a.RSI = rsi(candles, 14)
	a.Support, a.Resistance = supportResistance(candles, 20)
	a.VolumeConfirmation = volumeConfirmation(candles)
	a.Patterns = detectPatterns(candles, a.Support, a.Resistance)
	a.MomentumQuality = momentumQuality(candles, a.RSI)
	a.BreakoutQuality = breakoutQuality(candles, a.Resistance)

	// Weighted sum, clamped to 0..100.
	score := 50.0
	switch a.Trend {
	case "up":
		score += 15
	case "down":
		score -= 15
	}
	switch a.VolumeProfile {
	case "accumulation":
		score += 10
	case "distribution":
		score -= 10
	}
	switch a.VolumeConfirmation {
	case "confirmed":
		score += 10
	case "climax":
		score -= 10
	}
	switch a.MomentumQuality {
	case "fresh":
		score += 10
	case "exhausted":
		score -= 15
	}
	switch a.BreakoutQuality {
	case "strong":
		score += 10
	case "failed":
		score -= 10
	}
	switch {
	case a.RSI >= 80:
		score -= 15
	case a.RSI >= 70:
		score -= 5
	case a.RSI <= 30:
		score += 5
	}
	for _, p := range a.Patterns {
		switch p {
		case "higher_lows", "support_bounce", "dip_recovery", "accumulation_breakout":
			score += 5
		case "lower_highs", "overextended":
			score -= 10
		}
	}
	// Position against the range: entries near support beat entries at the top.
	if a.Resistance > a.Support {
		pos := (last.Close - a.Support) / (a.Resistance - a.Support)
		score += (0.5 - pos) * 10
	}

	a.EntryScore = clamp(score, 0, 100)
	switch {
	case a.EntryScore >= 70:
		a.Recommendation = "strong_buy"
	case a.EntryScore >= 50:
		a.Recommendation = "buy"
	case a.EntryScore >= 30:
		a.Recommendation = "wait"
	default:
		a.Recommendation = "avoid"
	}
	return a
}

func avgClose(candles []providers.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candles {
		sum += c.Close
	}
	return sum / float64(len(candles))
}

func detectTrend(candles []providers.Candle) string {
	n := len(candles)
	short := avgClose(candles[n-min(5, n):])
	long := avgClose(candles[n-min(15, n):])
	if long == 0 {
		return "sideways"
	}
	diff := (short - long) / long
	switch {
	case diff > 0.02:
		return "up"
	case diff < -0.02:
		return "down"
	default:
		return "sideways"
	}
}

func returnStdev(candles []providers.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	var returns []float64
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close > 0 {
			returns = append(returns, candles[i].Close/candles[i-1].Close-1)
		}
	}
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
	return math.Sqrt(variance / float64(len(returns)-1))
}

func volumeProfile(candles []providers.Candle) string {
	var upVol, downVol float64
	for _, c := range candles {
		if c.Close >= c.Open {
			upVol += c.Volume
		} else {
			downVol += c.Volume
		}
	}
	total := upVol + downVol
	if total == 0 {
		return "neutral"
	}
	ratio := upVol / total
	switch {
	case ratio > 0.6:
		return "accumulation"
	case ratio < 0.4:
		return "distribution"
	default:
		return "neutral"
	}
}

func volumeConfirmation(candles []providers.Candle) string {
	n := len(candles)
	if n < 6 {
		return "diverging"
	}
	recentVol := 0.0
	for _, c := range candles[n-3:] {
		recentVol += c.Volume
	}
	recentVol /= 3
	baseVol := 0.0
	for _, c := range candles[:n-3] {
		baseVol += c.Volume
	}
	baseVol /= float64(n - 3)

	priceUp := candles[n-1].Close > candles[n-4].Close
	switch {
	case baseVol > 0 && recentVol > 4*baseVol:
		return "climax"
	case priceUp && recentVol > baseVol:
		return "confirmed"
	default:
		return "diverging"
	}
}

// rsi computes Wilder's RSI over min(period, n-1) candles.
func rsi(candles []providers.Candle, period int) float64 {
	n := len(candles)
	if n < 2 {
		return 50
	}
	if period > n-1 {
		period = n - 1
	}
	var gains, losses float64
	for i := n - period; i < n; i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

func supportResistance(candles []providers.Candle, lookback int) (support, resistance float64) {
	n := len(candles)
	if lookback > n {
		lookback = n
	}
	window := candles[n-lookback:]
	support = window[0].Low
	resistance = window[0].High
	for _, c := range window {
		if c.Low < support {
			support = c.Low
		}
		if c.High > resistance {
			resistance = c.High
		}
	}
	return support, resistance
}

func detectPatterns(candles []providers.Candle, support, resistance float64) []string {
	var patterns []string
	n := len(candles)
	last := candles[n-1]
	half := n / 2
	firstAvg := avgClose(candles[:half])
	recent := candles[n-min(6, n):]

	// accumulation: flat price on rising volume
	recentRange := rangePct(recent)
	if recentRange < 0.05 && volumeRising(candles) {
		patterns = append(patterns, "accumulation")
		if resistance > 0 && last.Close > resistance*0.98 {
			patterns = append(patterns, "accumulation_breakout")
		}
	} else if recentRange < 0.05 {
		patterns = append(patterns, "consolidation")
	}

	if hasHigherLows(recent) {
		patterns = append(patterns, "higher_lows")
	}
	if hasLowerHighs(recent) {
		patterns = append(patterns, "lower_highs")
	}
	if avgVol := avgVolume(candles[:n-1]); avgVol > 0 && last.Volume > 2.5*avgVol {
		patterns = append(patterns, "volume_spike")
	}
	if dipRecovered(candles) {
		patterns = append(patterns, "dip_recovery")
	}
	if firstAvg > 0 && last.Close > 1.5*firstAvg {
		patterns = append(patterns, "overextended")
	}
	if support > 0 && last.Low <= support*1.03 && last.Close > last.Open {
		patterns = append(patterns, "support_bounce")
	}
	return patterns
}

func rangePct(candles []providers.Candle) float64 {
	lo, hi := math.MaxFloat64, 0.0
	for _, c := range candles {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}
	if lo <= 0 {
		return 0
	}
	return (hi - lo) / lo
}

func volumeRising(candles []providers.Candle) bool {
	n := len(candles)
	if n < 6 {
		return false
	}
	return avgVolume(candles[n-3:]) > avgVolume(candles[n-6:n-3])
}

func avgVolume(candles []providers.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candles {
		sum += c.Volume
	}
	return sum / float64(len(candles))
}

func hasHigherLows(candles []providers.Candle) bool {
	if len(candles) < 3 {
		return false
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Low < candles[i-1].Low {
			return false
		}
	}
	return true
}

func hasLowerHighs(candles []providers.Candle) bool {
	if len(candles) < 3 {
		return false
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].High > candles[i-1].High {
			return false
		}
	}
	return true
}

func dipRecovered(candles []providers.Candle) bool {
	n := len(candles)
	if n < 6 {
		return false
	}
	hi := 0.0
	hiIdx := 0
	for i, c := range candles[:n-2] {
		if c.High > hi {
			hi = c.High
			hiIdx = i
		}
	}
	if hi == 0 {
		return false
	}
	lo := hi
	for _, c := range candles[hiIdx:] {
		if c.Low < lo {
			lo = c.Low
		}
	}
	dip := (hi - lo) / hi
	recovered := candles[n-1].Close >= lo+(hi-lo)/2
	return dip >= 0.10 && recovered
}

func momentumQuality(candles []providers.Candle, rsiVal float64) string {
	n := len(candles)
	first := candles[0].Close
	gain := 0.0
	if first > 0 {
		gain = candles[n-1].Close/first - 1
	}
	switch {
	case rsiVal >= 80 || gain > 1.0:
		return "exhausted"
	case rsiVal >= 65 || gain > 0.4:
		return "extended"
	default:
		return "fresh"
	}
}

func breakoutQuality(candles []providers.Candle, resistance float64) string {
	n := len(candles)
	last := candles[n-1]
	prevResistance := resistance
	// Resistance excluding the final candle shows whether it just broke out.
	if n > 1 {
		_, prevResistance = supportResistance(candles[:n-1], 20)
	}
	if prevResistance <= 0 {
		return "none"
	}
	switch {
	case last.Close > prevResistance && last.Volume > 1.5*avgVolume(candles[:n-1]):
		return "strong"
	case last.Close > prevResistance:
		return "weak"
	case last.High > prevResistance && last.Close < prevResistance:
		return "failed"
	default:
		return "none"
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
