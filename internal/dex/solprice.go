package dex

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	solPriceTTL      = 5 * time.Minute
	solPriceFallback = 200.0
)

// SolPriceCache serves the SOL/USD rate with a 5-minute TTL and a fixed
// fallback when every fetch fails. The scheduler reads it once per tick so
// all DEX math in a tick shares one rate.
type SolPriceCache struct {
	url  string
	http *http.Client

	mu      sync.Mutex
	price   float64
	fetched time.Time
}

func NewSolPriceCache() *SolPriceCache {
	return &SolPriceCache{
		url:  "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd",
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Get returns the cached rate, refreshing when the TTL expired. It never
// returns zero.
func (c *SolPriceCache) Get(ctx context.Context) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.price > 0 && time.Since(c.fetched) < solPriceTTL {
		return c.price
	}
	if price, ok := c.fetch(ctx); ok {
		c.price = price
		c.fetched = time.Now()
		return price
	}
	if c.price > 0 {
		return c.price
	}
	return solPriceFallback
}

func (c *SolPriceCache) fetch(ctx context.Context) (float64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	var body struct {
		Solana struct {
			USD float64 `json:"usd"`
		} `json:"solana"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false
	}
	if body.Solana.USD <= 0 {
		return 0, false
	}
	return body.Solana.USD, true
}
