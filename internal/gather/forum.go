package gather

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

// ForumGatherer extracts tickers from hot discussion-board posts and scores
// them with the lexicon plus decay/engagement/flair weighting.
type ForumGatherer struct {
	feed    providers.ForumFeed
	tickers *TickerCache
	log     *logging.Logger
}

func NewForumGatherer(feed providers.ForumFeed, tickers *TickerCache, log *logging.Logger) *ForumGatherer {
	return &ForumGatherer{feed: feed, tickers: tickers, log: log.WithComponent("gather-forum")}
}

func (g *ForumGatherer) Name() string { return "forum" }

// tickerAgg accumulates per-ticker evidence across posts and subgroups.
type tickerAgg struct {
	weightedSum float64
	rawSum      float64
	posts       int
	upvotes     int
	comments    int
	bestFlair   string
	freshest    time.Time
	subgroups   map[string]bool
}

func (g *ForumGatherer) Gather(ctx context.Context, cfg *config.AgentConfig) ([]state.Signal, error) {
	now := time.Now()
	aggs := map[string]*tickerAgg{}

	for _, subgroup := range cfg.ForumSubgroups {
		posts, err := g.feed.HotPosts(ctx, subgroup)
		if err != nil {
			g.log.Warn("subgroup_failed", "subgroup", subgroup, "error", err.Error())
			continue
		}
		for _, post := range posts {
			g.scorePost(ctx, subgroup, post, cfg, now, aggs)
		}
	}

	signals := make([]state.Signal, 0, len(aggs))
	for symbol, agg := range aggs {
		subs := make([]string, 0, len(agg.subgroups))
		for s := range agg.subgroups {
			subs = append(subs, s)
		}
		sort.Strings(subs)
		signals = append(signals, state.Signal{
			Symbol:            symbol,
			Source:            g.Name(),
			Sentiment:         agg.rawSum / float64(agg.posts),
			WeightedSentiment: agg.weightedSum / float64(agg.posts),
			Volume:            agg.posts,
			Upvotes:           agg.upvotes,
			Timestamp:         now,
			Reason:            fmt.Sprintf("%d posts in %s, best flair %q", agg.posts, strings.Join(subs, ","), agg.bestFlair),
		})
	}
	return signals, nil
}

func (g *ForumGatherer) scorePost(ctx context.Context, subgroup string, post providers.SocialMessage, cfg *config.AgentConfig, now time.Time, aggs map[string]*tickerAgg) {
	text := post.Title + " " + post.Body
	tickers := ExtractTickers(text, cfg.TickerBlacklist)
	if len(tickers) == 0 {
		return
	}

	raw := scoreText(text)
	quality := timeDecay(post.CreatedAt, now) *
		engagementMultiplier(post.Upvotes, post.Comments) *
		flairMultiplier(post.Flair) *
		cfg.SourceWeightForum
	weighted := raw * quality

	for _, symbol := range tickers {
		if !g.tickers.IsValid(ctx, symbol) {
			continue
		}
		agg, ok := aggs[symbol]
		if !ok {
			agg = &tickerAgg{subgroups: map[string]bool{}}
			aggs[symbol] = agg
		}
		agg.rawSum += raw
		agg.weightedSum += weighted
		agg.posts++
		agg.upvotes += post.Upvotes
		agg.comments += post.Comments
		agg.subgroups[subgroup] = true
		if flairRank(post.Flair) > flairRank(agg.bestFlair) {
			agg.bestFlair = post.Flair
		}
		if post.CreatedAt.After(agg.freshest) {
			agg.freshest = post.CreatedAt
		}
	}
}
