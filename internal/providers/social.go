package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StocktwitsClient is the reference trending-symbols feed. Blocked (403)
// responses are permanent for the tick; the gatherer degrades the source
// instead of failing the phase.
type StocktwitsClient struct {
	baseURL  string
	http     *http.Client
	throttle *Throttle
}

func NewStocktwitsClient(baseURL string) *StocktwitsClient {
	if baseURL == "" {
		baseURL = "https://api.stocktwits.com/api/2"
	}
	return &StocktwitsClient{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: CallTimeout},
		throttle: NewThrottle(time.Second),
	}
}

func (c *StocktwitsClient) Trending(ctx context.Context) ([]string, error) {
	var raw struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
		} `json:"symbols"`
	}
	if err := c.getJSON(ctx, "/trending/symbols.json", &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw.Symbols))
	for _, s := range raw.Symbols {
		out = append(out, s.Symbol)
	}
	return out, nil
}

func (c *StocktwitsClient) Messages(ctx context.Context, symbol string) ([]SocialMessage, error) {
	var raw struct {
		Messages []struct {
			Body     string `json:"body"`
			Entities struct {
				Sentiment *struct {
					Basic string `json:"basic"`
				} `json:"sentiment"`
			} `json:"entities"`
			Likes struct {
				Total int `json:"total"`
			} `json:"likes"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"messages"`
	}
	if err := c.getJSON(ctx, "/streams/symbol/"+symbol+".json", &raw); err != nil {
		return nil, err
	}
	out := make([]SocialMessage, 0, len(raw.Messages))
	for _, m := range raw.Messages {
		msg := SocialMessage{
			Body:      m.Body,
			Upvotes:   m.Likes.Total,
			CreatedAt: m.CreatedAt,
		}
		if m.Entities.Sentiment != nil {
			msg.Sentiment = m.Entities.Sentiment.Basic
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *StocktwitsClient) getJSON(ctx context.Context, path string, out interface{}) error {
	if err := c.throttle.Wait(ctx); err != nil {
		return fmt.Errorf("%w: throttle: %v", ErrTransient, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if err := ClassifyStatus(resp.StatusCode); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ForumClient is the reference discussion-board feed (Reddit-style listing
// JSON).
type ForumClient struct {
	baseURL  string
	http     *http.Client
	throttle *Throttle
}

func NewForumClient(baseURL string) *ForumClient {
	if baseURL == "" {
		baseURL = "https://www.reddit.com"
	}
	return &ForumClient{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: CallTimeout},
		throttle: NewThrottle(2 * time.Second),
	}
}

func (c *ForumClient) HotPosts(ctx context.Context, subgroup string) ([]SocialMessage, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: throttle: %v", ErrTransient, err)
	}
	url := fmt.Sprintf("%s/r/%s/hot.json?limit=25", c.baseURL, subgroup)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "social-trading-agent/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if err := ClassifyStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	var raw struct {
		Data struct {
			Children []struct {
				Data struct {
					Title       string  `json:"title"`
					Selftext    string  `json:"selftext"`
					Score       int     `json:"score"`
					NumComments int     `json:"num_comments"`
					Flair       string  `json:"link_flair_text"`
					CreatedUTC  float64 `json:"created_utc"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	out := make([]SocialMessage, 0, len(raw.Data.Children))
	for _, child := range raw.Data.Children {
		d := child.Data
		out = append(out, SocialMessage{
			Title:     d.Title,
			Body:      d.Selftext,
			Upvotes:   d.Score,
			Comments:  d.NumComments,
			Flair:     d.Flair,
			CreatedAt: time.Unix(int64(d.CreatedUTC), 0),
		})
	}
	return out, nil
}

// TwitterClient serves breaking headlines through a twitterapi.io-compatible
// search endpoint. Reads are expensive; the agent budgets them per day.
type TwitterClient struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	throttle *Throttle
}

func NewTwitterClient(baseURL, apiKey string) *TwitterClient {
	if baseURL == "" {
		baseURL = "https://api.twitterapi.io"
	}
	return &TwitterClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: CallTimeout},
		throttle: NewThrottle(2 * time.Second),
	}
}

func (c *TwitterClient) Headlines(ctx context.Context, symbol string) ([]string, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: throttle: %v", ErrTransient, err)
	}
	url := fmt.Sprintf("%s/twitter/tweet/advanced_search?queryType=Top&query=$%s", c.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if err := ClassifyStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	var raw struct {
		Tweets []struct {
			Text string `json:"text"`
		} `json:"tweets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tweets: %w", err)
	}
	out := make([]string, 0, len(raw.Tweets))
	for _, t := range raw.Tweets {
		out = append(out, t.Text)
	}
	return out, nil
}
