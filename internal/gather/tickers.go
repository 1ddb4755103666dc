package gather

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
)

// Cashtags are 1-5 uppercase letters; bare symbols need 2-5 letters plus a
// trading keyword nearby, which the caller checks via contextWords.
var (
	cashtagRe = regexp.MustCompile(`\$([A-Z]{1,5})\b`)
	bareRe    = regexp.MustCompile(`\b([A-Z]{2,5})\b`)
)

var contextWords = []string{
	"calls", "puts", "shares", "stock", "buy", "sell", "long", "short",
	"moon", "squeeze", "earnings", "dd", "yolo", "position", "strike",
	"target", "bullish", "bearish",
}

// builtinBlacklist is common all-caps noise that matches the bare-symbol
// pattern but is never a ticker in this context.
var builtinBlacklist = map[string]bool{
	"A": true, "I": true, "DD": true, "CEO": true, "CFO": true, "IPO": true,
	"ATH": true, "ATL": true, "FDA": true, "SEC": true, "USA": true,
	"USD": true, "EOD": true, "EOW": true, "IMO": true, "TLDR": true,
	"YOLO": true, "FOMO": true, "WSB": true, "ETF": true, "AI": true,
	"EV": true, "PE": true, "EPS": true, "GDP": true, "CPI": true,
	"FED": true, "OTM": true, "ITM": true, "IV": true, "THE": true,
	"AND": true, "FOR": true, "ALL": true, "NOT": true, "ARE": true,
	"YOU": true, "CAN": true, "HAS": true, "NEW": true, "NOW": true,
	"ONE": true, "OUT": true, "BIG": true, "LOL": true, "WTF": true,
	"API": true, "RIP": true, "TA": true, "PT": true, "HOLD": true,
	"BUY": true, "SELL": true, "CALL": true, "PUT": true, "GAIN": true,
	"LOSS": true, "NEWS": true, "EDIT": true, "MOON": true, "PUMP": true,
	"DUMP": true, "RED": true, "IT": true, "ON": true, "UP": true,
	"SO": true, "TO": true, "BE": true, "MY": true, "IF": true,
	"DO": true, "GO": true, "AT": true, "OR": true, "IS": true,
}

// ExtractTickers pulls candidate symbols from a post. Cashtags always count;
// bare uppercase words need a trading keyword somewhere in the text.
func ExtractTickers(text string, userBlacklist []string) []string {
	blocked := func(sym string) bool {
		if builtinBlacklist[sym] {
			return true
		}
		for _, b := range userBlacklist {
			if strings.EqualFold(b, sym) {
				return true
			}
		}
		return false
	}

	seen := map[string]bool{}
	var out []string
	add := func(sym string) {
		if !seen[sym] && !blocked(sym) {
			seen[sym] = true
			out = append(out, sym)
		}
	}

	for _, m := range cashtagRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	lower := strings.ToLower(text)
	hasContext := false
	for _, w := range contextWords {
		if strings.Contains(lower, w) {
			hasContext = true
			break
		}
	}
	if hasContext {
		for _, m := range bareRe.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	}
	return out
}

// TickerCache validates unknown symbols through two tiers: the SEC common
// tickers file refreshed daily, then a per-symbol brokerage asset lookup whose
// result (either way) is cached.
type TickerCache struct {
	brokerage providers.Brokerage
	secURL    string
	http      *http.Client
	log       *logging.Logger

	mu         sync.Mutex
	secSet     map[string]bool
	secFetched time.Time
	lookups    map[string]bool
}

func NewTickerCache(brokerage providers.Brokerage, log *logging.Logger) *TickerCache {
	return &TickerCache{
		brokerage: brokerage,
		secURL:    "https://www.sec.gov/files/company_tickers.json",
		http:      &http.Client{Timeout: providers.CallTimeout},
		log:       log.WithComponent("ticker-cache"),
		lookups:   map[string]bool{},
	}
}

// IsValid reports whether the symbol is a real tradeable ticker.
func (c *TickerCache) IsValid(ctx context.Context, symbol string) bool {
	c.mu.Lock()
	if time.Since(c.secFetched) > 24*time.Hour {
		c.mu.Unlock()
		c.refreshSEC(ctx)
		c.mu.Lock()
	}
	if c.secSet[symbol] {
		c.mu.Unlock()
		return true
	}
	if cached, ok := c.lookups[symbol]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	valid := false
	if c.brokerage != nil {
		asset, err := c.brokerage.GetAsset(ctx, symbol)
		if err == nil && asset != nil && asset.Tradable {
			valid = true
		}
	}
	c.mu.Lock()
	c.lookups[symbol] = valid
	c.mu.Unlock()
	return valid
}

func (c *TickerCache) refreshSEC(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.secURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", "social-trading-agent admin@example.com")
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("sec_ticker_refresh_failed", "error", err.Error())
		c.markRefreshed(nil)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("sec_ticker_refresh_failed", "status", resp.StatusCode)
		c.markRefreshed(nil)
		return
	}

	var raw map[string]struct {
		Ticker string `json:"ticker"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.log.Warn("sec_ticker_decode_failed", "error", err.Error())
		c.markRefreshed(nil)
		return
	}
	set := make(map[string]bool, len(raw))
	for _, row := range raw {
		set[strings.ToUpper(row.Ticker)] = true
	}
	c.log.Info("sec_tickers_refreshed", "count", len(set))
	c.markRefreshed(set)
}

// markRefreshed stamps the attempt even on failure so a dead SEC endpoint is
// retried daily, not every message.
func (c *TickerCache) markRefreshed(set map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set != nil {
		c.secSet = set
	}
	c.secFetched = time.Now()
}
