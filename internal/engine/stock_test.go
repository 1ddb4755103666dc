package engine

import (
	"context"
	"testing"
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

// fakeBrokerage records orders and serves canned assets.
type fakeBrokerage struct {
	orders    []providers.OrderRequest
	closed    []string
	assets    map[string]*providers.Asset
	orderErr  error
}

func (f *fakeBrokerage) GetAccount(ctx context.Context) (*providers.Account, error) {
	return &providers.Account{Cash: 10000, Equity: 12000}, nil
}
func (f *fakeBrokerage) GetPositions(ctx context.Context) ([]providers.BrokeragePosition, error) {
	return nil, nil
}
func (f *fakeBrokerage) GetClock(ctx context.Context) (*providers.Clock, error) {
	return &providers.Clock{IsOpen: true}, nil
}
func (f *fakeBrokerage) GetAsset(ctx context.Context, symbol string) (*providers.Asset, error) {
	if a, ok := f.assets[symbol]; ok {
		return a, nil
	}
	return &providers.Asset{Symbol: symbol, Exchange: "NASDAQ", Tradable: true}, nil
}
func (f *fakeBrokerage) CreateOrder(ctx context.Context, req providers.OrderRequest) (*providers.Order, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, req)
	return &providers.Order{ID: "order-1", Symbol: req.Symbol, Status: "accepted"}, nil
}
func (f *fakeBrokerage) ClosePosition(ctx context.Context, symbol string) error {
	f.closed = append(f.closed, symbol)
	return nil
}

func newTestEngine(broker *fakeBrokerage) *StockEngine {
	log := logging.New(&logging.Config{Level: "ERROR"})
	return NewStockEngine(broker, nil, nil, nil, nil, nil, log)
}

func newTestState() *state.AgentState {
	return state.NewAgentState(config.DefaultConfig())
}

func TestBuySizingFormula(t *testing.T) {
	broker := &fakeBrokerage{}
	e := newTestEngine(broker)
	st := newTestState()
	st.Config.PositionSizePctCash = 20
	st.Config.MaxPositionValue = 1000

	ok := e.Buy(context.Background(), st, BuyRequest{
		Symbol:     "TSLA",
		Confidence: 0.8,
		Cash:       10000,
		Reason:     "test",
	})
	if !ok {
		t.Fatal("buy should succeed")
	}
	if len(broker.orders) != 1 {
		t.Fatalf("want one order, got %d", len(broker.orders))
	}
	// min(10000 * 0.20 * 0.8, 1000) = 1000
	if broker.orders[0].Notional != 1000 {
		t.Errorf("notional should cap at max position value, got %f", broker.orders[0].Notional)
	}
	if broker.orders[0].TimeInForce != "day" {
		t.Errorf("stock orders are day orders, got %s", broker.orders[0].TimeInForce)
	}
	if _, ok := st.PositionEntries["TSLA"]; !ok {
		t.Error("successful buy should insert a position entry")
	}
}

func TestBuyBlockedPreFlight(t *testing.T) {
	broker := &fakeBrokerage{}
	e := newTestEngine(broker)
	st := newTestState()

	cases := []BuyRequest{
		{Symbol: "", Confidence: 0.8, Cash: 1000},
		{Symbol: "TSLA", Confidence: 0.8, Cash: 0},
		{Symbol: "TSLA", Confidence: 0, Cash: 1000},
		{Symbol: "TSLA", Confidence: 1.5, Cash: 1000},
	}
	for _, req := range cases {
		if e.Buy(context.Background(), st, req) {
			t.Errorf("buy should be blocked for %+v", req)
		}
	}
	if len(broker.orders) != 0 {
		t.Errorf("no orders should reach the brokerage, got %d", len(broker.orders))
	}
	if len(st.PositionEntries) != 0 {
		t.Error("blocked buys must not mutate state")
	}
}

func TestBuyBlockedByCrisis(t *testing.T) {
	broker := &fakeBrokerage{}
	e := newTestEngine(broker)
	st := newTestState()
	st.Crisis.Level = 2

	if e.Buy(context.Background(), st, BuyRequest{Symbol: "TSLA", Confidence: 0.9, Cash: 10000}) {
		t.Error("level 2 crisis should block entries")
	}

	// A manual override lifts the block.
	st.Crisis.ManualOverride = true
	st.Crisis.Level = 2
	if !e.Buy(context.Background(), st, BuyRequest{Symbol: "TSLA", Confidence: 0.9, Cash: 10000}) {
		t.Error("manual override should allow entries")
	}
}

func TestBuyCrisisLevel1HalvesSize(t *testing.T) {
	broker := &fakeBrokerage{}
	e := newTestEngine(broker)
	st := newTestState()
	st.Config.PositionSizePctCash = 10
	st.Config.MaxPositionValue = 10000
	st.Crisis.Level = 1

	if !e.Buy(context.Background(), st, BuyRequest{Symbol: "TSLA", Confidence: 1.0, Cash: 10000}) {
		t.Fatal("level 1 should still allow entries")
	}
	// 10000 * 0.10 * 1.0 * 0.5 = 500
	if broker.orders[0].Notional != 500 {
		t.Errorf("level 1 should halve size, got %f", broker.orders[0].Notional)
	}
}

func TestBuyCrisisOverrideRestoresFullSize(t *testing.T) {
	broker := &fakeBrokerage{}
	e := newTestEngine(broker)
	st := newTestState()
	st.Config.PositionSizePctCash = 10
	st.Config.MaxPositionValue = 10000
	st.Crisis.Level = 2
	st.Crisis.ManualOverride = true

	if !e.Buy(context.Background(), st, BuyRequest{Symbol: "TSLA", Confidence: 1.0, Cash: 10000}) {
		t.Fatal("override should allow the entry")
	}
	// 10000 * 0.10 * 1.0, no crisis multiplier under override
	if broker.orders[0].Notional != 1000 {
		t.Errorf("override sizes at the full multiplier, got %f", broker.orders[0].Notional)
	}
}

func TestExitPhaseCrisisLevel1TightensStop(t *testing.T) {
	broker := &fakeBrokerage{}
	e := newTestEngine(broker)
	st := newTestState()
	st.Config.StopLossPct = 8
	st.Config.CrisisLevel1StopLossPct = 4
	// -5% on a $1000 basis: inside the normal stop, past the tightened one.
	positions := []providers.BrokeragePosition{
		{Symbol: "TSLA", MarketValue: 950, UnrealizedPL: -50, AssetClass: "us_equity"},
	}

	e.exitPhase(context.Background(), st, positions)
	if len(broker.closed) != 0 {
		t.Fatalf("level 0 keeps the normal stop, closed %v", broker.closed)
	}

	st.Crisis.Level = 1
	e.exitPhase(context.Background(), st, positions)
	if len(broker.closed) != 1 || broker.closed[0] != "TSLA" {
		t.Fatalf("level 1 should close at the tightened stop, closed %v", broker.closed)
	}

	broker.closed = nil
	st.Crisis.ManualOverride = true
	e.exitPhase(context.Background(), st, positions)
	if len(broker.closed) != 0 {
		t.Errorf("override restores the normal stop, closed %v", broker.closed)
	}
}

func TestAnalystBuyRespectsMaxPositions(t *testing.T) {
	broker := &fakeBrokerage{}
	e := newTestEngine(broker)
	st := newTestState()
	st.Config.MaxPositions = 2
	positions := []providers.BrokeragePosition{
		{Symbol: "MSFT", MarketValue: 1000, AssetClass: "us_equity"},
		{Symbol: "NVDA", MarketValue: 1000, AssetClass: "us_equity"},
	}
	account := &providers.Account{Cash: 10000}
	report := &state.AnalystReport{Recommendations: []state.AnalystRecommendation{
		{Action: "BUY", Symbol: "AAPL", Confidence: 0.9, Reasoning: "strong"},
	}}

	e.ProcessRecommendations(context.Background(), st, report, account, positions)
	if len(broker.orders) != 0 {
		t.Fatalf("buy at the position cap should be skipped, got %v", broker.orders)
	}

	// A sell earlier in the report frees a slot for the buy that follows.
	report = &state.AnalystReport{Recommendations: []state.AnalystRecommendation{
		{Action: "SELL", Symbol: "MSFT", Confidence: 0.8},
		{Action: "BUY", Symbol: "AAPL", Confidence: 0.9, Reasoning: "strong"},
	}}
	e.ProcessRecommendations(context.Background(), st, report, account, positions)
	if len(broker.closed) != 1 || broker.closed[0] != "MSFT" {
		t.Fatalf("closed = %v, want [MSFT]", broker.closed)
	}
	if len(broker.orders) != 1 || broker.orders[0].Symbol != "AAPL" {
		t.Fatalf("orders = %v, want one AAPL buy", broker.orders)
	}
}

func TestEntryCandidatesRequireMinSentiment(t *testing.T) {
	e := newTestEngine(&fakeBrokerage{})
	st := newTestState()
	st.Config.MinSentimentScore = 0.3
	st.SignalResearch["AAPL"] = &state.SignalResearch{
		Verdict:    state.VerdictBuy,
		Confidence: 0.9,
	}
	st.SignalCache = []state.Signal{
		{Symbol: "AAPL", WeightedSentiment: 0.1, Timestamp: time.Now()},
	}

	if got := e.buildCandidates(st, map[string]bool{}); len(got) != 0 {
		t.Fatalf("weak sentiment should gate the candidate, got %v", got)
	}

	st.SignalCache = []state.Signal{
		{Symbol: "AAPL", WeightedSentiment: 0.5, Timestamp: time.Now()},
	}
	got := e.buildCandidates(st, map[string]bool{})
	if len(got) != 1 || got[0].symbol != "AAPL" {
		t.Fatalf("candidates = %v, want AAPL", got)
	}
}

func TestBuyBlockedOffExchange(t *testing.T) {
	broker := &fakeBrokerage{assets: map[string]*providers.Asset{
		"SKETCH": {Symbol: "SKETCH", Exchange: "OTC", Tradable: true},
	}}
	e := newTestEngine(broker)
	st := newTestState()

	if e.Buy(context.Background(), st, BuyRequest{Symbol: "SKETCH", Confidence: 0.9, Cash: 10000}) {
		t.Error("OTC symbols should be blocked")
	}
}

func TestBuyCryptoUsesGtc(t *testing.T) {
	broker := &fakeBrokerage{}
	e := newTestEngine(broker)
	st := newTestState()

	if !e.Buy(context.Background(), st, BuyRequest{
		Symbol: "BTC/USD", Confidence: 0.9, Cash: 10000, IsCrypto: true, MaxValue: 500,
	}) {
		t.Fatal("crypto buy should succeed")
	}
	if broker.orders[0].TimeInForce != "gtc" {
		t.Errorf("crypto orders are gtc, got %s", broker.orders[0].TimeInForce)
	}
	if broker.orders[0].Notional > 500 {
		t.Errorf("crypto cap should bound the notional, got %f", broker.orders[0].Notional)
	}
}

func TestBuyRejectsTinySize(t *testing.T) {
	broker := &fakeBrokerage{}
	e := newTestEngine(broker)
	st := newTestState()
	st.Config.PositionSizePctCash = 1

	if e.Buy(context.Background(), st, BuyRequest{Symbol: "TSLA", Confidence: 0.1, Cash: 100}) {
		t.Error("sub-$10 orders should be rejected")
	}
}

func TestPlPct(t *testing.T) {
	// $1100 market value with $100 unrealized on a $1000 basis = +10%.
	p := providers.BrokeragePosition{MarketValue: 1100, UnrealizedPL: 100}
	if got := plPct(p); got != 10 {
		t.Errorf("want 10%%, got %f", got)
	}
	if got := plPct(providers.BrokeragePosition{}); got != 0 {
		t.Errorf("zero basis should yield 0, got %f", got)
	}
}

func TestNormalizeCryptoSymbol(t *testing.T) {
	cases := map[string]string{
		"btcusd":  "BTC/USD",
		"ETHUSDT": "ETH/USDT",
		"SOL/USD": "SOL/USD",
		"doge":    "DOGE",
	}
	for in, want := range cases {
		if got := NormalizeCryptoSymbol(in); got != want {
			t.Errorf("%s: want %s, got %s", in, want, got)
		}
	}
}
