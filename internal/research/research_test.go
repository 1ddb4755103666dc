package research

import (
	"testing"
	"time"

	"social-trading-agent/internal/state"
)

func TestStripMarkdown(t *testing.T) {
	fenced := "```json\n{\"verdict\":\"BUY\"}\n```"
	if got := StripMarkdown(fenced); got != `{"verdict":"BUY"}` {
		t.Errorf("fenced JSON should strip cleanly, got %q", got)
	}

	prose := "Here is my analysis: {\"verdict\":\"SKIP\"} hope that helps"
	if got := StripMarkdown(prose); got != `{"verdict":"SKIP"}` {
		t.Errorf("prose-wrapped JSON should trim to braces, got %q", got)
	}

	bare := `{"verdict":"WAIT"}`
	if got := StripMarkdown(bare); got != bare {
		t.Errorf("bare JSON should pass through, got %q", got)
	}
}

func TestParseResearch(t *testing.T) {
	res, err := parseResearch(`{"verdict":"buy","confidence":0.85,"entry_quality":"good","reasoning":"r","red_flags":[],"catalysts":["earnings"]}`)
	if err != nil {
		t.Fatalf("valid payload should parse: %v", err)
	}
	if res.Verdict != state.VerdictBuy {
		t.Errorf("verdict should normalize to BUY, got %s", res.Verdict)
	}
	if res.EntryQuality != state.QualityGood {
		t.Errorf("quality should be good, got %s", res.EntryQuality)
	}
}

func TestParseResearchRejectsBadVerdict(t *testing.T) {
	if _, err := parseResearch(`{"verdict":"MAYBE","confidence":0.5}`); err == nil {
		t.Error("unknown verdict must not coerce into a tradeable one")
	}
	if _, err := parseResearch("not json at all"); err == nil {
		t.Error("malformed payload should error")
	}
}

func TestParseResearchClampsConfidence(t *testing.T) {
	res, err := parseResearch(`{"verdict":"SKIP","confidence":3.2,"entry_quality":"fair"}`)
	if err != nil {
		t.Fatal(err)
	}
	if res.Confidence != 1 {
		t.Errorf("confidence should clamp to 1, got %f", res.Confidence)
	}
}

func TestParseAnalystReportFiltersActions(t *testing.T) {
	report, err := parseAnalystReport(`{"recommendations":[
		{"action":"BUY","symbol":"tsla","confidence":0.8,"reasoning":"r"},
		{"action":"SHORT","symbol":"NVDA","confidence":0.9,"reasoning":"r"},
		{"action":"SELL","symbol":"","confidence":0.5,"reasoning":"r"}
	],"market_summary":"meh","high_conviction_plays":["TSLA"]}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Recommendations) != 1 {
		t.Fatalf("only the valid row should survive, got %d", len(report.Recommendations))
	}
	if report.Recommendations[0].Symbol != "TSLA" {
		t.Errorf("symbol should upcase, got %s", report.Recommendations[0].Symbol)
	}
}

func TestCostUSDUnknownModelBillsHigh(t *testing.T) {
	usage := Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}
	unknown := CostUSD("some-future-model", usage)
	for model := range modelPrices {
		if known := CostUSD(model, usage); known > unknown {
			t.Errorf("unknown model cost %f should be >= %s cost %f", unknown, model, known)
		}
	}
}

func TestAggregateCandidates(t *testing.T) {
	now := time.Now()
	signals := []state.Signal{
		{Symbol: "AAPL", Source: "forum", WeightedSentiment: 0.3, Volume: 5, Timestamp: now},
		{Symbol: "AAPL", Source: "stocktwits", WeightedSentiment: 0.2, Volume: 10, Timestamp: now},
		{Symbol: "GME", Source: "forum", WeightedSentiment: -0.9, Volume: 2, Timestamp: now},
	}
	cands := AggregateCandidates(signals)
	if len(cands) != 2 {
		t.Fatalf("want 2 candidates, got %d", len(cands))
	}
	// GME's |weighted| dominates AAPL's combined 0.5
	if cands[0].Symbol != "GME" {
		t.Errorf("strongest |weighted| first, got %s", cands[0].Symbol)
	}
	var aapl Candidate
	for _, c := range cands {
		if c.Symbol == "AAPL" {
			aapl = c
		}
	}
	if aapl.Volume != 15 || len(aapl.Sources) != 2 {
		t.Errorf("AAPL should merge volume and sources, got %+v", aapl)
	}
}
