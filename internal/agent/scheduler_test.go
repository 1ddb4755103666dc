package agent

import (
	"context"
	"testing"
	"time"

	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

func TestCrisisLevel2ClosesOnlyWeakStock(t *testing.T) {
	fb := &fakeBrokerage{positions: []providers.BrokeragePosition{
		{Symbol: "LOSR", MarketValue: 950, UnrealizedPL: -50, AssetClass: "us_equity"},
		{Symbol: "WINR", MarketValue: 1100, UnrealizedPL: 100, AssetClass: "us_equity"},
		{Symbol: "BTC/USD", MarketValue: 500, UnrealizedPL: -250, AssetClass: "crypto"},
	}}
	a, st := newTestAgent(fb)
	st.Config.CrisisLevel2MinProfitHold = 2

	a.closeWeakForCrisis(context.Background(), st)

	// LOSR sits at -5%, WINR at +10%; only the loser goes. Crypto positions
	// stay with the crypto engine's own exits.
	if len(fb.calls) != 1 || fb.calls[0] != "close:LOSR" {
		t.Fatalf("calls = %v, want only close:LOSR", fb.calls)
	}
	if len(st.Crisis.ClosedDuringCrisis) != 1 || st.Crisis.ClosedDuringCrisis[0] != "LOSR" {
		t.Errorf("closedDuringCrisis = %v, want [LOSR]", st.Crisis.ClosedDuringCrisis)
	}
}

func TestCrisisLiquidationSpansStockNotCrypto(t *testing.T) {
	fb := &fakeBrokerage{positions: []providers.BrokeragePosition{
		{Symbol: "AAPL", MarketValue: 900, UnrealizedPL: -100, AssetClass: "us_equity"},
		{Symbol: "ETH/USD", MarketValue: 400, UnrealizedPL: -100, AssetClass: "crypto"},
	}}
	a, st := newTestAgent(fb)
	st.PositionEntries["AAPL"] = &state.PositionEntry{Symbol: "AAPL"}
	st.Dex.Positions["tok1"] = &state.DexPosition{
		TokenAddress: "tok1",
		Symbol:       "WIF",
		EntryPrice:   1,
		EntrySol:     0.5,
		TokenAmount:  100,
		EntryTime:    time.Now().Add(-time.Hour),
	}

	a.liquidateForCrisis(context.Background(), st, time.Now())

	if len(fb.calls) != 1 || fb.calls[0] != "close:AAPL" {
		t.Fatalf("calls = %v, want only close:AAPL", fb.calls)
	}
	if _, ok := st.PositionEntries["AAPL"]; ok {
		t.Error("liquidated symbol should leave positionEntries")
	}
	if len(st.Dex.Positions) != 0 {
		t.Error("dex book should be emptied")
	}
	if len(st.Dex.TradeHistory) != 1 || st.Dex.TradeHistory[0].ExitReason != state.ExitManual {
		t.Errorf("dex liquidation should record a manual exit, got %v", st.Dex.TradeHistory)
	}
}
