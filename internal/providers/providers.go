package providers

import (
	"context"
	"errors"
	"time"
)

// CallTimeout bounds every provider call. Phases apply it themselves when they
// fan out.
const CallTimeout = 10 * time.Second

// Error taxonomy. Transient errors may be retried where rate limits permit;
// permanent ones degrade the source for the tick. ErrTooNew is the chart
// provider's 400 for tokens without enough history, which means "no gate",
// not failure.
var (
	ErrTransient = errors.New("provider: transient error")
	ErrPermanent = errors.New("provider: permanent error")
	ErrTooNew    = errors.New("provider: token too new")
)

// Account is the brokerage account snapshot.
type Account struct {
	Cash        float64 `json:"cash"`
	Equity      float64 `json:"equity"`
	BuyingPower float64 `json:"buying_power"`
}

// Clock is the market clock.
type Clock struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
	Timestamp time.Time `json:"timestamp"`
}

// Asset describes a tradeable instrument.
type Asset struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Tradable bool   `json:"tradable"`
}

// OrderRequest is the order submission contract.
type OrderRequest struct {
	Symbol      string  `json:"symbol"`
	Notional    float64 `json:"notional,omitempty"`
	Qty         float64 `json:"qty,omitempty"`
	Side        string  `json:"side"` // buy, sell
	Type        string  `json:"type"` // market, limit
	TimeInForce string  `json:"time_in_force"`
	LimitPrice  float64 `json:"limit_price,omitempty"`
}

// Order is a submitted order acknowledgement.
type Order struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

// BrokeragePosition mirrors the venue's open position shape.
type BrokeragePosition struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	Side          string  `json:"side"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
	CurrentPrice  float64 `json:"current_price"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	AssetClass    string  `json:"asset_class"`
}

// Brokerage is the order/position/account provider.
type Brokerage interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]BrokeragePosition, error)
	GetClock(ctx context.Context) (*Clock, error)
	GetAsset(ctx context.Context, symbol string) (*Asset, error)
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	ClosePosition(ctx context.Context, symbol string) error
}

// Snapshot is the latest trade/quote plus previous daily bar for a symbol.
type Snapshot struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	PrevDailyClose float64 `json:"prev_daily_close"`
	DailyVolume    float64 `json:"daily_volume"`
}

// MarketData serves equity and crypto snapshots.
type MarketData interface {
	GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
	GetCryptoSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
}

// OptionContract is one row of an option chain.
type OptionContract struct {
	Symbol     string  `json:"symbol"`
	Underlying string  `json:"underlying"`
	Expiration string  `json:"expiration"` // YYYY-MM-DD
	Strike     float64 `json:"strike"`
	Type       string  `json:"type"` // call, put
}

// OptionSnapshot carries a contract's quote and greeks.
type OptionSnapshot struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Delta  float64 `json:"delta"`
	IV     float64 `json:"iv"`
}

// OptionsData serves expirations, chains, and per-contract snapshots.
type OptionsData interface {
	GetExpirations(ctx context.Context, symbol string) ([]string, error)
	GetChain(ctx context.Context, symbol, expiration string) (calls []OptionContract, puts []OptionContract, err error)
	GetOptionSnapshot(ctx context.Context, optionSymbol string) (*OptionSnapshot, error)
}

// DexPair is a raw scanner pair before tier classification.
type DexPair struct {
	ChainID       string  `json:"chain_id"`
	PairAddress   string  `json:"pair_address"`
	TokenAddress  string  `json:"token_address"`
	Symbol        string  `json:"symbol"`
	PriceUsd      float64 `json:"price_usd"`
	PriceChange5m float64 `json:"price_change_5m"`
	PriceChange1h float64 `json:"price_change_1h"`
	PriceChange6h float64 `json:"price_change_6h"`
	PriceChange24h float64 `json:"price_change_24h"`
	Volume5m      float64 `json:"volume_5m"`
	Volume1h      float64 `json:"volume_1h"`
	Volume6h      float64 `json:"volume_6h"`
	Volume24h     float64 `json:"volume_24h"`
	LiquidityUsd  float64 `json:"liquidity_usd"`
	MarketCap     float64 `json:"market_cap"`
	PairCreatedAt time.Time `json:"pair_created_at"`
	Buys1h        int     `json:"buys_1h"`
	Sells1h       int     `json:"sells_1h"`
	Buys24h       int     `json:"buys_24h"`
	Sells24h      int     `json:"sells_24h"`
	HasWebsite    bool    `json:"has_website"`
	HasTwitter    bool    `json:"has_twitter"`
	HasTelegram   bool    `json:"has_telegram"`
	BoostCount    int     `json:"boost_count"`
}

// DexScanner serves the six candidate feeds plus a batch token lookup.
type DexScanner interface {
	TrendingBoosted(ctx context.Context) ([]DexPair, error)
	LatestProfiles(ctx context.Context) ([]DexPair, error)
	LatestBoosts(ctx context.Context) ([]DexPair, error)
	CommunityTakeovers(ctx context.Context) ([]DexPair, error)
	ActiveAds(ctx context.Context) ([]DexPair, error)
	Search(ctx context.Context, term string) ([]DexPair, error)
	GetMultipleTokens(ctx context.Context, chain string, addresses []string) ([]DexPair, error)
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// DexChart serves OHLCV history for a token.
type DexChart interface {
	GetOHLCV(ctx context.Context, tokenAddress string, intervalMinutes, limit int) ([]Candle, error)
}

// MacroIndicators is the crisis monitor's input. Every field is nullable;
// a source that fails for a tick simply leaves its field nil.
type MacroIndicators struct {
	VIX               *float64 `json:"vix"`
	HYSpreadBps       *float64 `json:"hy_spread_bps"`
	YieldCurve2s10s   *float64 `json:"yield_curve_2s10s"`
	TEDSpread         *float64 `json:"ted_spread"`
	DXY               *float64 `json:"dxy"`
	USDJPY            *float64 `json:"usdjpy"`
	KREWeeklyPct      *float64 `json:"kre_weekly_pct"`
	SilverWeeklyPct   *float64 `json:"silver_weekly_pct"`
	FedBalanceWeekly  *float64 `json:"fed_balance_weekly_pct"`
	BTCWeeklyPct      *float64 `json:"btc_weekly_pct"`
	USDTPeg           *float64 `json:"usdt_peg"`
	GoldSilverRatio   *float64 `json:"gold_silver_ratio"`
	StocksAbove200MA  *float64 `json:"stocks_above_200ma_pct"`
}

// Macro fetches the crisis indicator set. Individual source failures must
// surface as nil fields, never as an error from Fetch.
type Macro interface {
	Fetch(ctx context.Context) (*MacroIndicators, error)
}

// SocialMessage is one post/message from a social feed.
type SocialMessage struct {
	Body       string    `json:"body"`
	Title      string    `json:"title,omitempty"`
	Sentiment  string    `json:"sentiment,omitempty"` // source-tagged bullish/bearish when present
	Upvotes    int       `json:"upvotes"`
	Comments   int       `json:"comments"`
	Flair      string    `json:"flair,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// StocktwitsFeed is the trending-symbols social source.
type StocktwitsFeed interface {
	Trending(ctx context.Context) ([]string, error)
	Messages(ctx context.Context, symbol string) ([]SocialMessage, error)
}

// ForumFeed is the discussion-board social source.
type ForumFeed interface {
	HotPosts(ctx context.Context, subgroup string) ([]SocialMessage, error)
}

// TwitterFeed serves breaking headlines for a symbol. Reads are budgeted per
// day by the agent.
type TwitterFeed interface {
	Headlines(ctx context.Context, symbol string) ([]string, error)
}
