package research

import (
	"encoding/json"
	"fmt"
	"strings"
)

const signalSystemPrompt = `You are a fast trading research assistant. You evaluate a single social-driven trade candidate and answer with strict JSON only, no prose, matching this shape:
{"verdict":"BUY|SKIP|WAIT","confidence":0.0,"entry_quality":"excellent|good|fair|poor","reasoning":"...","red_flags":["..."],"catalysts":["..."]}
Be skeptical: social hype without a concrete catalyst is a SKIP. Confidence is your probability the trade is profitable within days.`

func signalUserPrompt(cand Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", cand.Symbol)
	fmt.Fprintf(&b, "Weighted sentiment: %.3f\n", cand.WeightedSentiment)
	fmt.Fprintf(&b, "Social volume: %d\n", cand.Volume)
	fmt.Fprintf(&b, "Sources: %s\n", strings.Join(cand.Sources, ", "))
	if cand.Price > 0 {
		fmt.Fprintf(&b, "Current price: %.4f\n", cand.Price)
	}
	if cand.IsCrypto {
		b.WriteString("Asset class: crypto (24/7 market)\n")
	}
	b.WriteString("Evaluate this candidate now.")
	return b.String()
}

const analystSystemPrompt = `You are a portfolio analyst for a small momentum account. Given the account, open positions, aggregated candidates, and raw signals, respond with strict JSON only:
{"recommendations":[{"action":"BUY|SELL|HOLD","symbol":"...","confidence":0.0,"reasoning":"...","suggested_size_pct":0.0}],"market_summary":"...","high_conviction_plays":["..."]}
Recommend SELL only for held symbols. Keep reasoning to one sentence each.`

func analystUserPrompt(input AnalystInput) string {
	payload, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(payload)
}
