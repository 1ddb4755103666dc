package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

const twitterConfirmTTL = time.Hour

const twitterSystemPrompt = `You judge whether breaking headlines confirm a bullish trading thesis for a symbol. Respond with strict JSON only: {"confirms":true,"summary":"..."}`

// ConfirmTwitter checks breaking headlines for a symbol against the daily
// read budget. A nil result means no confirmation was possible; it is not a
// rejection.
func (r *Researcher) ConfirmTwitter(ctx context.Context, st *state.AgentState, feed providers.TwitterFeed, symbol string) *state.TwitterConfirmation {
	if !st.Config.TwitterEnabled || feed == nil {
		return nil
	}
	now := time.Now()
	if cached, ok := st.TwitterReads[symbol]; ok && now.Sub(cached.Timestamp) < twitterConfirmTTL {
		return cached
	}

	st.ResetTwitterCounterIfDue(now)
	if st.TwitterReadCount >= st.Config.TwitterDailyReads {
		r.log.Debug("twitter_budget_exhausted", "symbol", symbol, "reads", st.TwitterReadCount)
		return nil
	}

	headlines, err := feed.Headlines(ctx, symbol)
	st.TwitterReadCount++
	if err != nil {
		r.log.Warn("twitter_fetch_failed", "symbol", symbol, "error", err.Error())
		return nil
	}
	if len(headlines) == 0 {
		return nil
	}
	if r.overBudget(st) {
		return nil
	}

	model := st.Config.LLMCheapModel
	content, usage, err := r.client.Complete(ctx, CompleteRequest{
		Model:       model,
		System:      twitterSystemPrompt,
		User:        fmt.Sprintf("Symbol: %s\nHeadlines:\n%s", symbol, strings.Join(headlines, "\n")),
		MaxTokens:   256,
		Temperature: st.Config.LLMTemperature,
	})
	st.RecordCost(CostUSD(model, usage), usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		r.log.Warn("twitter_confirm_failed", "symbol", symbol, "error", err.Error())
		return nil
	}

	var raw struct {
		Confirms bool   `json:"confirms"`
		Summary  string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(StripMarkdown(content)), &raw); err != nil {
		r.log.Warn("twitter_parse_failed", "symbol", symbol, "error", err.Error())
		return nil
	}

	conf := &state.TwitterConfirmation{
		Confirms:  raw.Confirms,
		Summary:   raw.Summary,
		Timestamp: now,
	}
	st.TwitterReads[symbol] = conf
	return conf
}
