package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// dexScannerMinGap is the scanner's request throttle.
const dexScannerMinGap = 1100 * time.Millisecond

// DexScreenerClient is the reference DEX scanner client. All feeds resolve
// through the public pairs API; requests share one throttle and one breaker.
type DexScreenerClient struct {
	baseURL  string
	http     *http.Client
	throttle *Throttle
	breaker  interface {
		Execute(func() (interface{}, error)) (interface{}, error)
	}
}

// NewDexScreenerClient builds the reference scanner client.
func NewDexScreenerClient(baseURL string) *DexScreenerClient {
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}
	return &DexScreenerClient{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: CallTimeout},
		throttle: NewThrottle(dexScannerMinGap),
		breaker:  NewBreaker("dex-scanner"),
	}
}

type dsPair struct {
	ChainID     string `json:"chainId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd    string `json:"priceUsd"`
	PriceChange struct {
		M5  float64 `json:"m5"`
		H1  float64 `json:"h1"`
		H6  float64 `json:"h6"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		M5  float64 `json:"m5"`
		H1  float64 `json:"h1"`
		H6  float64 `json:"h6"`
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"` // epoch millis
	Txns          struct {
		H1 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h1"`
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	Info *struct {
		Websites []struct {
			URL string `json:"url"`
		} `json:"websites"`
		Socials []struct {
			Type string `json:"type"`
		} `json:"socials"`
	} `json:"info"`
	Boosts *struct {
		Active int `json:"active"`
	} `json:"boosts"`
}

func (p dsPair) toPair() DexPair {
	out := DexPair{
		ChainID:        p.ChainID,
		PairAddress:    p.PairAddress,
		TokenAddress:   p.BaseToken.Address,
		Symbol:         p.BaseToken.Symbol,
		PriceUsd:       parseFloat(p.PriceUsd),
		PriceChange5m:  p.PriceChange.M5,
		PriceChange1h:  p.PriceChange.H1,
		PriceChange6h:  p.PriceChange.H6,
		PriceChange24h: p.PriceChange.H24,
		Volume5m:       p.Volume.M5,
		Volume1h:       p.Volume.H1,
		Volume6h:       p.Volume.H6,
		Volume24h:      p.Volume.H24,
		LiquidityUsd:   p.Liquidity.Usd,
		MarketCap:      p.MarketCap,
		Buys1h:         p.Txns.H1.Buys,
		Sells1h:        p.Txns.H1.Sells,
		Buys24h:        p.Txns.H24.Buys,
		Sells24h:       p.Txns.H24.Sells,
	}
	if p.PairCreatedAt > 0 {
		out.PairCreatedAt = time.UnixMilli(p.PairCreatedAt)
	}
	if p.Info != nil {
		out.HasWebsite = len(p.Info.Websites) > 0
		for _, s := range p.Info.Socials {
			switch strings.ToLower(s.Type) {
			case "twitter":
				out.HasTwitter = true
			case "telegram":
				out.HasTelegram = true
			}
		}
	}
	if p.Boosts != nil {
		out.BoostCount = p.Boosts.Active
	}
	return out
}

func (c *DexScreenerClient) getPairs(ctx context.Context, path string) ([]DexPair, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: throttle: %v", ErrTransient, err)
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		defer resp.Body.Close()
		if err := ClassifyStatus(resp.StatusCode); err != nil {
			return nil, fmt.Errorf("GET %s: %w", path, err)
		}

		// The API returns either a bare array or {"pairs": [...]}.
		var envelope struct {
			Pairs []dsPair `json:"pairs"`
		}
		dec := json.NewDecoder(resp.Body)
		if err := dec.Decode(&envelope); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out := make([]DexPair, 0, len(envelope.Pairs))
		for _, p := range envelope.Pairs {
			out = append(out, p.toPair())
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]DexPair), nil
}

func (c *DexScreenerClient) TrendingBoosted(ctx context.Context) ([]DexPair, error) {
	return c.getPairs(ctx, "/token-boosts/top/v1")
}

func (c *DexScreenerClient) LatestProfiles(ctx context.Context) ([]DexPair, error) {
	return c.getPairs(ctx, "/token-profiles/latest/v1")
}

func (c *DexScreenerClient) LatestBoosts(ctx context.Context) ([]DexPair, error) {
	return c.getPairs(ctx, "/token-boosts/latest/v1")
}

func (c *DexScreenerClient) CommunityTakeovers(ctx context.Context) ([]DexPair, error) {
	return c.getPairs(ctx, "/community-takeovers/latest/v1")
}

func (c *DexScreenerClient) ActiveAds(ctx context.Context) ([]DexPair, error) {
	return c.getPairs(ctx, "/token-ads/active/v1")
}

func (c *DexScreenerClient) Search(ctx context.Context, term string) ([]DexPair, error) {
	return c.getPairs(ctx, "/latest/dex/search?q="+url.QueryEscape(term))
}

func (c *DexScreenerClient) GetMultipleTokens(ctx context.Context, chain string, addresses []string) ([]DexPair, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	return c.getPairs(ctx, "/tokens/v1/"+chain+"/"+strings.Join(addresses, ","))
}
