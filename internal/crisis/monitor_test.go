package crisis

import (
	"testing"

	"social-trading-agent/config"
	"social-trading-agent/internal/providers"
)

func fp(v float64) *float64 { return &v }

func TestScoreAllNilIndicators(t *testing.T) {
	cfg := config.DefaultConfig()
	a := Score(&providers.MacroIndicators{}, cfg)
	if a.Score != 0 || a.Level != 0 {
		t.Errorf("all-nil indicators should score 0 / level 0, got %d / %d", a.Score, a.Level)
	}
	if len(a.Triggered) != 0 {
		t.Errorf("nothing should trigger, got %v", a.Triggered)
	}
}

func TestScoreVixBands(t *testing.T) {
	cfg := config.DefaultConfig()
	cases := []struct {
		vix  float64
		want int
	}{
		{20, 0},
		{26, 1},
		{36, 2},
		{50, 3},
	}
	for _, tc := range cases {
		a := Score(&providers.MacroIndicators{VIX: fp(tc.vix)}, cfg)
		if a.Score != tc.want {
			t.Errorf("VIX %.0f: want %d points, got %d", tc.vix, tc.want, a.Score)
		}
	}
}

func TestScoreLevelBands(t *testing.T) {
	cases := []struct {
		score, level int
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 1}, {4, 2}, {5, 2}, {6, 3}, {10, 3},
	}
	for _, tc := range cases {
		if got := levelForScore(tc.score); got != tc.level {
			t.Errorf("score %d: want level %d, got %d", tc.score, tc.level, got)
		}
	}
}

// A full storm across indicators must reach level 3.
func TestScoreStormReachesLevel3(t *testing.T) {
	cfg := config.DefaultConfig()
	ind := &providers.MacroIndicators{
		VIX:         fp(48),
		HYSpreadBps: fp(650),
		USDTPeg:     fp(0.97),
	}
	a := Score(ind, cfg)
	if a.Level != 3 {
		t.Errorf("storm should hit level 3, got level %d (score %d)", a.Level, a.Score)
	}
	if len(a.Triggered) != 3 {
		t.Errorf("3 indicators should trigger, got %v", a.Triggered)
	}
}

func TestScoreBtcWeeklyMidBand(t *testing.T) {
	cfg := config.DefaultConfig()
	a := Score(&providers.MacroIndicators{BTCWeeklyPct: fp(-12)}, cfg)
	if a.Score != 1 {
		t.Errorf("-12%% BTC week should be 1 warning point, got %d", a.Score)
	}
	a = Score(&providers.MacroIndicators{BTCWeeklyPct: fp(-25)}, cfg)
	if a.Score != 2 {
		t.Errorf("-25%% BTC week should be 2 critical points, got %d", a.Score)
	}
}

func TestSizeMultiplier(t *testing.T) {
	if m := SizeMultiplier(0, 50); m != 1.0 {
		t.Errorf("level 0 should be full size, got %f", m)
	}
	if m := SizeMultiplier(1, 50); m != 0.5 {
		t.Errorf("level 1 with 50%% reduction should halve, got %f", m)
	}
	if m := SizeMultiplier(2, 50); m != 0 {
		t.Errorf("level 2 should block entries, got %f", m)
	}
	if m := SizeMultiplier(3, 50); m != 0 {
		t.Errorf("level 3 should block entries, got %f", m)
	}
}

func TestScoreFedBalanceAbsolute(t *testing.T) {
	cfg := config.DefaultConfig()
	// Both directions of a large balance sheet swing count.
	for _, v := range []float64{4, -4} {
		a := Score(&providers.MacroIndicators{FedBalanceWeekly: fp(v)}, cfg)
		if a.Score != 2 {
			t.Errorf("fed swing %.0f%% should be critical, got %d points", v, a.Score)
		}
	}
}
