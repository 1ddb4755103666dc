package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
)

// MacroClient fetches the crisis indicators from a macro-data aggregator.
// Every indicator endpoint returns {"value": <number>}; a failed or missing
// indicator becomes a nil field, never an error, so one dead source cannot
// blind the whole monitor.
type MacroClient struct {
	baseURL string
	http    *http.Client
}

// NewMacroClient builds the reference macro-data client.
func NewMacroClient(baseURL string) *MacroClient {
	return &MacroClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: CallTimeout},
	}
}

var macroEndpoints = map[string]string{
	"vix":                    "/v1/indicators/vix",
	"hy_spread_bps":          "/v1/indicators/hy-spread",
	"yield_curve_2s10s":      "/v1/indicators/yield-curve-2s10s",
	"ted_spread":             "/v1/indicators/ted-spread",
	"dxy":                    "/v1/indicators/dxy",
	"usdjpy":                 "/v1/indicators/usdjpy",
	"kre_weekly_pct":         "/v1/indicators/kre-weekly",
	"silver_weekly_pct":      "/v1/indicators/silver-weekly",
	"fed_balance_weekly_pct": "/v1/indicators/fed-balance-weekly",
	"btc_weekly_pct":         "/v1/indicators/btc-weekly",
	"usdt_peg":               "/v1/indicators/usdt-peg",
	"gold_silver_ratio":      "/v1/indicators/gold-silver-ratio",
	"stocks_above_200ma_pct": "/v1/indicators/breadth-200ma",
}

// Fetch pulls all indicators in parallel.
func (c *MacroClient) Fetch(ctx context.Context) (*MacroIndicators, error) {
	values := make(map[string]*float64, len(macroEndpoints))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, path := range macroEndpoints {
		wg.Add(1)
		go func(name, path string) {
			defer wg.Done()
			v := c.fetchOne(ctx, path)
			mu.Lock()
			values[name] = v
			mu.Unlock()
		}(name, path)
	}
	wg.Wait()

	return &MacroIndicators{
		VIX:              values["vix"],
		HYSpreadBps:      values["hy_spread_bps"],
		YieldCurve2s10s:  values["yield_curve_2s10s"],
		TEDSpread:        values["ted_spread"],
		DXY:              values["dxy"],
		USDJPY:           values["usdjpy"],
		KREWeeklyPct:     values["kre_weekly_pct"],
		SilverWeeklyPct:  values["silver_weekly_pct"],
		FedBalanceWeekly: values["fed_balance_weekly_pct"],
		BTCWeeklyPct:     values["btc_weekly_pct"],
		USDTPeg:          values["usdt_peg"],
		GoldSilverRatio:  values["gold_silver_ratio"],
		StocksAbove200MA: values["stocks_above_200ma_pct"],
	}, nil
}

func (c *MacroClient) fetchOne(ctx context.Context, path string) *float64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}
	return body.Value
}
