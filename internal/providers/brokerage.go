package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// AlpacaClient is the reference brokerage client. It speaks the paper/live
// trading REST API and the market-data API of an Alpaca-compatible venue.
type AlpacaClient struct {
	tradeURL string
	dataURL  string
	key      string
	secret   string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker

	clockCache   *Clock
	clockFetched time.Time
}

// NewAlpacaClient builds the reference brokerage client. Empty URLs select
// the paper-trading endpoints.
func NewAlpacaClient(tradeURL, dataURL, key, secret string) *AlpacaClient {
	if tradeURL == "" {
		tradeURL = "https://paper-api.alpaca.markets"
	}
	if dataURL == "" {
		dataURL = "https://data.alpaca.markets"
	}
	return &AlpacaClient{
		tradeURL: tradeURL,
		dataURL:  dataURL,
		key:      key,
		secret:   secret,
		http:     &http.Client{Timeout: CallTimeout},
		breaker:  NewBreaker("brokerage"),
	}
}

func (c *AlpacaClient) doJSON(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode request: %w", err)
			}
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("APCA-API-KEY-ID", c.key)
		req.Header.Set("APCA-API-SECRET-KEY", c.secret)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		defer resp.Body.Close()

		if err := ClassifyStatus(resp.StatusCode); err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, url, err)
		}
		if out == nil {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", url, err)
		}
		return nil, nil
	})
	return err
}

type alpacaAccount struct {
	Cash        string `json:"cash"`
	Equity      string `json:"equity"`
	BuyingPower string `json:"buying_power"`
}

func (c *AlpacaClient) GetAccount(ctx context.Context) (*Account, error) {
	var raw alpacaAccount
	if err := c.doJSON(ctx, http.MethodGet, c.tradeURL+"/v2/account", nil, &raw); err != nil {
		return nil, err
	}
	return &Account{
		Cash:        parseFloat(raw.Cash),
		Equity:      parseFloat(raw.Equity),
		BuyingPower: parseFloat(raw.BuyingPower),
	}, nil
}

type alpacaPosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	MarketValue   string `json:"market_value"`
	UnrealizedPL  string `json:"unrealized_pl"`
	CurrentPrice  string `json:"current_price"`
	AvgEntryPrice string `json:"avg_entry_price"`
	AssetClass    string `json:"asset_class"`
}

func (c *AlpacaClient) GetPositions(ctx context.Context) ([]BrokeragePosition, error) {
	var raw []alpacaPosition
	if err := c.doJSON(ctx, http.MethodGet, c.tradeURL+"/v2/positions", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]BrokeragePosition, 0, len(raw))
	for _, p := range raw {
		out = append(out, BrokeragePosition{
			Symbol:        p.Symbol,
			Qty:           parseFloat(p.Qty),
			Side:          p.Side,
			MarketValue:   parseFloat(p.MarketValue),
			UnrealizedPL:  parseFloat(p.UnrealizedPL),
			CurrentPrice:  parseFloat(p.CurrentPrice),
			AvgEntryPrice: parseFloat(p.AvgEntryPrice),
			AssetClass:    p.AssetClass,
		})
	}
	return out, nil
}

// GetClock caches the market clock for 60 s; the scheduler calls it every
// tick.
func (c *AlpacaClient) GetClock(ctx context.Context) (*Clock, error) {
	if c.clockCache != nil && time.Since(c.clockFetched) < time.Minute {
		return c.clockCache, nil
	}
	var clock Clock
	if err := c.doJSON(ctx, http.MethodGet, c.tradeURL+"/v2/clock", nil, &clock); err != nil {
		return nil, err
	}
	c.clockCache = &clock
	c.clockFetched = time.Now()
	return &clock, nil
}

func (c *AlpacaClient) GetAsset(ctx context.Context, symbol string) (*Asset, error) {
	var asset Asset
	if err := c.doJSON(ctx, http.MethodGet, c.tradeURL+"/v2/assets/"+symbol, nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (c *AlpacaClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var order Order
	if err := c.doJSON(ctx, http.MethodPost, c.tradeURL+"/v2/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *AlpacaClient) ClosePosition(ctx context.Context, symbol string) error {
	return c.doJSON(ctx, http.MethodDelete, c.tradeURL+"/v2/positions/"+symbol, nil, nil)
}

type alpacaSnapshot struct {
	LatestTrade struct {
		Price float64 `json:"p"`
	} `json:"latestTrade"`
	PrevDailyBar struct {
		Close  float64 `json:"c"`
		Volume float64 `json:"v"`
	} `json:"prevDailyBar"`
}

func (c *AlpacaClient) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	var raw alpacaSnapshot
	url := c.dataURL + "/v2/stocks/" + symbol + "/snapshot"
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return nil, err
	}
	return &Snapshot{
		Symbol:         symbol,
		Price:          raw.LatestTrade.Price,
		PrevDailyClose: raw.PrevDailyBar.Close,
		DailyVolume:    raw.PrevDailyBar.Volume,
	}, nil
}

func (c *AlpacaClient) GetCryptoSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	var raw struct {
		Snapshots map[string]alpacaSnapshot `json:"snapshots"`
	}
	url := c.dataURL + "/v1beta3/crypto/us/snapshots?symbols=" + symbol
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return nil, err
	}
	snap, ok := raw.Snapshots[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no snapshot for %s", ErrPermanent, symbol)
	}
	return &Snapshot{
		Symbol:         symbol,
		Price:          snap.LatestTrade.Price,
		PrevDailyClose: snap.PrevDailyBar.Close,
		DailyVolume:    snap.PrevDailyBar.Volume,
	}, nil
}

type alpacaExpirations struct {
	Expirations []string `json:"expirations"`
}

func (c *AlpacaClient) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	var raw alpacaExpirations
	url := c.tradeURL + "/v2/options/expirations/" + symbol
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return nil, err
	}
	return raw.Expirations, nil
}

func (c *AlpacaClient) GetChain(ctx context.Context, symbol, expiration string) ([]OptionContract, []OptionContract, error) {
	var raw struct {
		Contracts []struct {
			Symbol string  `json:"symbol"`
			Strike float64 `json:"strike_price"`
			Type   string  `json:"type"`
		} `json:"option_contracts"`
	}
	url := c.tradeURL + "/v2/options/contracts?underlying_symbols=" + symbol + "&expiration_date=" + expiration
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return nil, nil, err
	}
	var calls, puts []OptionContract
	for _, ct := range raw.Contracts {
		contract := OptionContract{
			Symbol:     ct.Symbol,
			Underlying: symbol,
			Expiration: expiration,
			Strike:     ct.Strike,
			Type:       ct.Type,
		}
		if ct.Type == "call" {
			calls = append(calls, contract)
		} else {
			puts = append(puts, contract)
		}
	}
	return calls, puts, nil
}

func (c *AlpacaClient) GetOptionSnapshot(ctx context.Context, optionSymbol string) (*OptionSnapshot, error) {
	var raw struct {
		LatestQuote struct {
			Bid float64 `json:"bp"`
			Ask float64 `json:"ap"`
		} `json:"latestQuote"`
		Greeks struct {
			Delta float64 `json:"delta"`
		} `json:"greeks"`
		IV float64 `json:"impliedVolatility"`
	}
	url := c.dataURL + "/v1beta1/options/snapshots/" + optionSymbol
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return nil, err
	}
	return &OptionSnapshot{
		Symbol: optionSymbol,
		Bid:    raw.LatestQuote.Bid,
		Ask:    raw.LatestQuote.Ask,
		Delta:  raw.Greeks.Delta,
		IV:     raw.IV,
	}, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
