package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-trading-agent/config"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path)

	st := NewAgentState(config.DefaultConfig())
	st.Enabled = true
	st.Config.MaxPositions = 3
	st.Dex.PaperBalanceSol = 7.25
	st.Dex.Positions["tok1"] = &DexPosition{
		TokenAddress: "tok1",
		Symbol:       "WIF",
		Tier:         TierLottery,
		EntryPrice:   0.002,
		EntrySol:     0.1,
		EntryTime:    time.Now().UTC().Truncate(time.Second),
	}
	st.AppendLog("info", "position_opened", map[string]interface{}{"symbol": "WIF"})
	st.RecordCost(0.42, 1000, 200)

	require.NoError(t, store.Save(context.Background(), st))

	got, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.True(t, got.Enabled)
	assert.Equal(t, 3, got.Config.MaxPositions)
	assert.Equal(t, 7.25, got.Dex.PaperBalanceSol)
	require.Contains(t, got.Dex.Positions, "tok1")
	assert.Equal(t, "WIF", got.Dex.Positions["tok1"].Symbol)
	assert.Len(t, got.Logs, 1)
	assert.Equal(t, 0.42, got.Costs.TotalUSD)
	assert.Equal(t, 0.42, got.Costs.TodayUSD)
}

func TestFileStoreLoadMissingReturnsErrNoSnapshot(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestLoadOrInitFirstBootWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path)

	st, repaired, err := LoadOrInit(context.Background(), store)
	require.NoError(t, err)

	assert.False(t, st.Enabled, "fresh state starts disabled")
	assert.Empty(t, repaired)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "first boot persists the initial snapshot")
}

func TestLoadOrInitFillsMissingFieldsFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	// A snapshot from an older build: no dex book, no tick interval.
	old := `{"schema_version":1,"enabled":true,"config":{"max_positions":2,"tick_interval_ms":0}}`
	require.NoError(t, os.WriteFile(path, []byte(old), 0644))

	st, repaired, err := LoadOrInit(context.Background(), NewFileStore(path))
	require.NoError(t, err)

	assert.True(t, st.Enabled)
	assert.Equal(t, 2, st.Config.MaxPositions, "stored keys win")
	def := config.DefaultConfig()
	assert.Equal(t, def.TickIntervalMs, st.Config.TickIntervalMs, "zero interval is repaired")
	assert.Contains(t, repaired, "tick_interval_ms")
	assert.NotNil(t, st.Dex.Positions, "normalize rebuilds nil maps")
	assert.Equal(t, def.DexStartingBalanceSol, st.Dex.PaperBalanceSol,
		"missing dex book keeps the default-filled starting balance")
}

func TestNormalizeGuardsCostCounters(t *testing.T) {
	st := NewAgentState(config.DefaultConfig())
	st.Costs.TotalUSD = -1
	st.Costs.TodayUSD = -0.5
	st.Normalize()
	assert.GreaterOrEqual(t, st.Costs.TotalUSD, 0.0)
	assert.GreaterOrEqual(t, st.Costs.TodayUSD, 0.0)
}

func TestReplaceSignalCacheMergePolicy(t *testing.T) {
	st := NewAgentState(config.DefaultConfig())
	now := time.Now()

	incoming := []Signal{
		{Symbol: "STALE", Timestamp: now.Add(-25 * time.Hour), WeightedSentiment: 0.9},
		{Symbol: "WEAK", Timestamp: now, WeightedSentiment: 0.1},
		{Symbol: "BEAR", Timestamp: now, WeightedSentiment: -0.8},
		{Symbol: "BULL", Timestamp: now, WeightedSentiment: 0.5},
	}
	st.ReplaceSignalCache(incoming, now)

	require.Len(t, st.SignalCache, 3, "stale signals are dropped")
	assert.Equal(t, "BEAR", st.SignalCache[0].Symbol, "sorted by absolute sentiment")
	assert.Equal(t, "BULL", st.SignalCache[1].Symbol)
	assert.Equal(t, "WEAK", st.SignalCache[2].Symbol)
}

func TestReplaceSignalCacheCap(t *testing.T) {
	st := NewAgentState(config.DefaultConfig())
	now := time.Now()
	incoming := make([]Signal, SignalCacheCap+50)
	for i := range incoming {
		incoming[i] = Signal{Symbol: "S", Timestamp: now}
	}
	st.ReplaceSignalCache(incoming, now)
	assert.Len(t, st.SignalCache, SignalCacheCap)
}

func TestAppendLogRingBufferCap(t *testing.T) {
	st := NewAgentState(config.DefaultConfig())
	for i := 0; i < 600; i++ {
		st.AppendLog("info", "tick", nil)
	}
	assert.Len(t, st.Logs, 500)
}
