package config

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Migrate repairs a loaded config in place: every non-finite float is reset to
// its default, zero-valued tier thresholds inherit the legacy global DEX keys,
// and slice fields that deserialized to nil get their defaults back. Returns
// the list of repaired json keys so the caller can log them.
func Migrate(c *AgentConfig) []string {
	def := DefaultConfig()
	repaired := repairScalars(c, def)

	if c.TickIntervalMs <= 0 {
		c.TickIntervalMs = def.TickIntervalMs
		repaired = append(repaired, "tick_interval_ms")
	}
	if c.DataPollIntervalMs <= 0 {
		c.DataPollIntervalMs = def.DataPollIntervalMs
		repaired = append(repaired, "data_poll_interval_ms")
	}
	if c.AnalystIntervalMs <= 0 {
		c.AnalystIntervalMs = def.AnalystIntervalMs
		repaired = append(repaired, "analyst_interval_ms")
	}
	if c.CrisisCheckIntervalMs <= 0 {
		c.CrisisCheckIntervalMs = def.CrisisCheckIntervalMs
		repaired = append(repaired, "crisis_check_interval_ms")
	}

	if c.AllowedExchanges == nil {
		c.AllowedExchanges = def.AllowedExchanges
		repaired = append(repaired, "allowed_exchanges")
	}
	if c.TickerBlacklist == nil {
		c.TickerBlacklist = []string{}
	}
	if c.CryptoSymbols == nil {
		c.CryptoSymbols = def.CryptoSymbols
		repaired = append(repaired, "crypto_symbols")
	}
	if c.ForumSubgroups == nil {
		c.ForumSubgroups = def.ForumSubgroups
		repaired = append(repaired, "forum_subgroups")
	}

	switch c.DexSlippageModel {
	case "none", "conservative", "realistic":
	default:
		c.DexSlippageModel = def.DexSlippageModel
		repaired = append(repaired, "dex_slippage_model")
	}
	switch c.LLMProvider {
	case "anthropic", "openai", "deepseek":
	default:
		c.LLMProvider = def.LLMProvider
		repaired = append(repaired, "llm_provider")
	}

	repaired = append(repaired, resolveLegacyDexKeys(c, def)...)
	return repaired
}

// resolveLegacyDexKeys applies the documented precedence: a tier-specific
// liquidity/volume threshold that is zero (absent in an old snapshot) inherits
// the legacy global key; a legacy key that is itself zero falls back to its
// default. Engines only ever see resolved per-tier values.
func resolveLegacyDexKeys(c *AgentConfig, def *AgentConfig) []string {
	var repaired []string

	if c.DexMinLiquidity <= 0 {
		c.DexMinLiquidity = def.DexMinLiquidity
	}
	if c.DexMinVolume24h <= 0 {
		c.DexMinVolume24h = def.DexMinVolume24h
	}
	if c.DexMaxAgeDays <= 0 {
		c.DexMaxAgeDays = def.DexMaxAgeDays
	}

	tiers := []struct {
		key string
		liq *float64
		vol *float64
	}{
		{"dex_microspray", &c.DexMicrosprayMinLiquidity, &c.DexMicrosprayMinVolume},
		{"dex_breakout", &c.DexBreakoutMinLiquidity, &c.DexBreakoutMinVolume},
		{"dex_lottery", &c.DexLotteryMinLiquidity, &c.DexLotteryMinVolume},
		{"dex_early", &c.DexEarlyMinLiquidity, &c.DexEarlyMinVolume},
		{"dex_established", &c.DexEstablishedMinLiquidity, &c.DexEstablishedMinVolume},
	}
	for _, t := range tiers {
		if *t.liq <= 0 {
			*t.liq = c.DexMinLiquidity
			repaired = append(repaired, t.key+"_min_liquidity")
		}
		if *t.vol <= 0 {
			*t.vol = c.DexMinVolume24h
			repaired = append(repaired, t.key+"_min_volume")
		}
	}
	return repaired
}

// repairScalars walks the struct with reflection and resets any NaN/Inf float
// to the corresponding default. Stored snapshots written by older builds
// occasionally carried nulls that deserialize to NaN upstream.
func repairScalars(c *AgentConfig, def *AgentConfig) []string {
	var repaired []string
	cv := reflect.ValueOf(c).Elem()
	dv := reflect.ValueOf(def).Elem()
	ct := cv.Type()

	for i := 0; i < cv.NumField(); i++ {
		f := cv.Field(i)
		if f.Kind() != reflect.Float64 {
			continue
		}
		v := f.Float()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			f.SetFloat(dv.Field(i).Float())
			repaired = append(repaired, jsonKey(ct.Field(i)))
		}
	}
	return repaired
}

func jsonKey(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}

// ApplyPatch shallow-merges a JSON object into the config, returning the keys
// that changed. Unknown keys are ignored, matching the load-and-migrate
// policy. The merge round-trips through JSON so a patch can only touch keys
// the schema knows about.
func ApplyPatch(c *AgentConfig, patch map[string]json.RawMessage) ([]string, error) {
	cur, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(cur, &merged); err != nil {
		return nil, fmt.Errorf("explode config: %w", err)
	}

	var changed []string
	for k, v := range patch {
		if old, ok := merged[k]; ok && !jsonEqual(old, v) {
			merged[k] = v
			changed = append(changed, k)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}
	next := *c
	if err := json.Unmarshal(out, &next); err != nil {
		return nil, fmt.Errorf("apply config patch: %w", err)
	}
	Migrate(&next)
	*c = next
	return changed, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
