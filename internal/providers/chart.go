package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const chartMinGap = 2500 * time.Millisecond

// chart429Backoffs are the waits between retries after a rate-limit response.
var chart429Backoffs = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

// GeckoChartClient is the reference OHLCV provider. A 400 means the token has
// no chart history yet and maps to ErrTooNew so callers skip the gate instead
// of rejecting the candidate.
type GeckoChartClient struct {
	baseURL  string
	network  string
	http     *http.Client
	throttle *Throttle
}

// NewGeckoChartClient builds the reference chart client.
func NewGeckoChartClient(baseURL, network string) *GeckoChartClient {
	if baseURL == "" {
		baseURL = "https://api.geckoterminal.com/api/v2"
	}
	if network == "" {
		network = "solana"
	}
	return &GeckoChartClient{
		baseURL:  baseURL,
		network:  network,
		http:     &http.Client{Timeout: CallTimeout},
		throttle: NewThrottle(chartMinGap),
	}
}

func (c *GeckoChartClient) GetOHLCV(ctx context.Context, tokenAddress string, intervalMinutes, limit int) ([]Candle, error) {
	url := fmt.Sprintf("%s/networks/%s/pools/%s/ohlcv/minute?aggregate=%d&limit=%d",
		c.baseURL, c.network, tokenAddress, intervalMinutes, limit)

	var lastErr error
	for attempt := 0; attempt <= len(chart429Backoffs); attempt++ {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: throttle: %v", ErrTransient, err)
		}
		candles, retryable, err := c.fetch(ctx, url)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if !retryable || attempt == len(chart429Backoffs) {
			break
		}
		select {
		case <-time.After(chart429Backoffs[attempt]):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
		}
	}
	return nil, lastErr
}

func (c *GeckoChartClient) fetch(ctx context.Context, url string) ([]Candle, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: status 429", ErrTransient)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, false, ErrTooNew
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode >= 500, ClassifyStatus(resp.StatusCode)
	}

	// Each row is [epochSec, open, high, low, close, volume].
	var raw struct {
		Data struct {
			Attributes struct {
				OHLCVList [][]float64 `json:"ohlcv_list"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, false, fmt.Errorf("decode ohlcv: %w", err)
	}

	rows := raw.Data.Attributes.OHLCVList
	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, Candle{
			Timestamp: time.Unix(int64(row[0]), 0),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	// API returns newest-first; callers want chronological order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, false, nil
}
