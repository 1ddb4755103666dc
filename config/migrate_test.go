package config

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateFillsZeroIntervals(t *testing.T) {
	c := DefaultConfig()
	c.TickIntervalMs = 0
	c.CrisisCheckIntervalMs = -5

	repaired := Migrate(c)

	def := DefaultConfig()
	assert.Equal(t, def.TickIntervalMs, c.TickIntervalMs)
	assert.Equal(t, def.CrisisCheckIntervalMs, c.CrisisCheckIntervalMs)
	assert.Contains(t, repaired, "tick_interval_ms")
	assert.Contains(t, repaired, "crisis_check_interval_ms")
}

func TestMigrateRepairsNaNScalars(t *testing.T) {
	c := DefaultConfig()
	c.DexStopLossPct = math.NaN()

	repaired := Migrate(c)

	assert.Equal(t, DefaultConfig().DexStopLossPct, c.DexStopLossPct)
	assert.Contains(t, repaired, "dex_stop_loss_pct")
}

func TestMigrateTierThresholdsInheritLegacyKeys(t *testing.T) {
	c := DefaultConfig()
	c.DexMinLiquidity = 7_500
	c.DexLotteryMinLiquidity = 0
	c.DexLotteryMinVolume = 0

	Migrate(c)

	assert.Equal(t, 7_500.0, c.DexLotteryMinLiquidity,
		"absent tier threshold inherits the legacy global key")
	assert.Equal(t, c.DexMinVolume24h, c.DexLotteryMinVolume)
}

func TestMigrateRejectsUnknownEnums(t *testing.T) {
	c := DefaultConfig()
	c.DexSlippageModel = "aggressive"
	c.LLMProvider = "grok"

	Migrate(c)

	assert.Equal(t, DefaultConfig().DexSlippageModel, c.DexSlippageModel)
	assert.Equal(t, DefaultConfig().LLMProvider, c.LLMProvider)
}

func TestMigrateKeepsValidConfigUntouched(t *testing.T) {
	c := DefaultConfig()
	repaired := Migrate(c)
	assert.Empty(t, repaired)
}

func TestApplyPatchChangesOnlyNamedKeys(t *testing.T) {
	c := DefaultConfig()
	patch := map[string]json.RawMessage{
		"max_positions": json.RawMessage(`9`),
		"dex_enabled":   json.RawMessage(`true`),
	}

	changed, err := ApplyPatch(c, patch)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"max_positions", "dex_enabled"}, changed)
	assert.Equal(t, 9, c.MaxPositions)
	assert.True(t, c.DexEnabled)
}

func TestApplyPatchIgnoresUnknownAndUnchangedKeys(t *testing.T) {
	c := DefaultConfig()
	patch := map[string]json.RawMessage{
		"no_such_key":   json.RawMessage(`true`),
		"max_positions": json.RawMessage(`5`), // default, no change
	}

	changed, err := ApplyPatch(c, patch)
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, DefaultConfig().MaxPositions, c.MaxPositions)
}

func TestApplyPatchRejectsWrongType(t *testing.T) {
	c := DefaultConfig()
	before := c.MaxPositions
	patch := map[string]json.RawMessage{
		"max_positions": json.RawMessage(`"nine"`),
	}

	_, err := ApplyPatch(c, patch)
	require.Error(t, err)
	assert.Equal(t, before, c.MaxPositions, "failed patch must not mutate the config")
}

func TestApplyPatchMigratesResult(t *testing.T) {
	c := DefaultConfig()
	patch := map[string]json.RawMessage{
		"llm_provider": json.RawMessage(`"martian"`),
	}

	changed, err := ApplyPatch(c, patch)
	require.NoError(t, err)

	assert.Contains(t, changed, "llm_provider")
	assert.Equal(t, DefaultConfig().LLMProvider, c.LLMProvider,
		"invalid enum value is repaired after the merge")
}
