package dex

import (
	"context"
	"sort"
	"strings"
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/logging"
	"social-trading-agent/internal/providers"
	"social-trading-agent/internal/state"
)

// searchSeeds are the fixed free-text scanner queries.
var searchSeeds = []string{"pump", "moon", "sol", "meme"}

// Scanner unions the candidate feeds, classifies tiers, and scores momentum.
type Scanner struct {
	provider providers.DexScanner
	log      *logging.Logger
}

func NewScanner(provider providers.DexScanner, log *logging.Logger) *Scanner {
	return &Scanner{provider: provider, log: log.WithComponent("dex-scanner")}
}

// Scan pulls all feeds and returns scored candidates, strongest momentum
// first. Failed feeds degrade silently; the union of the rest still counts.
func (s *Scanner) Scan(ctx context.Context, cfg *config.AgentConfig) []state.DexMomentumSignal {
	type feed struct {
		name string
		call func(context.Context) ([]providers.DexPair, error)
	}
	feeds := []feed{
		{"trending_boosted", s.provider.TrendingBoosted},
		{"latest_profiles", s.provider.LatestProfiles},
		{"latest_boosts", s.provider.LatestBoosts},
		{"community_takeovers", s.provider.CommunityTakeovers},
		{"active_ads", s.provider.ActiveAds},
	}
	for _, seed := range searchSeeds {
		seed := seed
		feeds = append(feeds, feed{"search:" + seed, func(ctx context.Context) ([]providers.DexPair, error) {
			return s.provider.Search(ctx, seed)
		}})
	}

	// Feeds share a throttled client, so they run sequentially.
	seen := map[string]bool{}
	var pairs []providers.DexPair
	for _, f := range feeds {
		batch, err := f.call(ctx)
		if err != nil {
			s.log.Debug("feed_failed", "feed", f.name, "error", err.Error())
			continue
		}
		for _, p := range batch {
			if p.TokenAddress == "" || seen[p.TokenAddress] {
				continue
			}
			seen[p.TokenAddress] = true
			pairs = append(pairs, p)
		}
	}

	now := time.Now()
	var signals []state.DexMomentumSignal
	for _, pair := range pairs {
		if sig, ok := Classify(pair, cfg, now); ok {
			signals = append(signals, sig)
		}
	}
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].MomentumScore > signals[j].MomentumScore
	})
	s.log.Info("scan_complete", "pairs", len(pairs), "candidates", len(signals))
	return signals
}

// Classify applies the tier windows, per-tier liquidity/volume floors, and
// the honeypot gate. The most conservative qualifying tier wins.
func Classify(pair providers.DexPair, cfg *config.AgentConfig, now time.Time) (state.DexMomentumSignal, bool) {
	if !strings.EqualFold(pair.ChainID, "solana") || pair.PairCreatedAt.IsZero() {
		return state.DexMomentumSignal{}, false
	}
	if pair.PriceUsd <= 0 {
		return state.DexMomentumSignal{}, false
	}

	age := now.Sub(pair.PairCreatedAt)
	ageHours := age.Hours()
	ageDays := ageHours / 24

	sig := state.DexMomentumSignal{
		TokenAddress:   pair.TokenAddress,
		PairAddress:    pair.PairAddress,
		Symbol:         pair.Symbol,
		PriceUsd:       pair.PriceUsd,
		PriceChange5m:  pair.PriceChange5m,
		PriceChange1h:  pair.PriceChange1h,
		PriceChange6h:  pair.PriceChange6h,
		PriceChange24h: pair.PriceChange24h,
		Volume5m:       pair.Volume5m,
		Volume1h:       pair.Volume1h,
		Volume6h:       pair.Volume6h,
		Volume24h:      pair.Volume24h,
		LiquidityUsd:   pair.LiquidityUsd,
		MarketCap:      pair.MarketCap,
		AgeHours:       ageHours,
		AgeDays:        ageDays,
		BuyRatio1h:     buyRatio(pair.Buys1h, pair.Sells1h),
		BuyRatio24h:    buyRatio(pair.Buys24h, pair.Sells24h),
		TxnCount24h:    pair.Buys24h + pair.Sells24h,
		Sells24h:       pair.Sells24h,
		LegitimacySignals: state.LegitimacySignals{
			HasWebsite:  pair.HasWebsite,
			HasTwitter:  pair.HasTwitter,
			HasTelegram: pair.HasTelegram,
			BoostCount:  pair.BoostCount,
			SellsExist:  pair.Sells24h > 0,
		},
	}
	sig.LegitimacyScore = LegitimacyScore(sig.LegitimacySignals)

	tier, ok := classifyTier(&sig, cfg, ageHours)
	if !ok {
		return state.DexMomentumSignal{}, false
	}
	sig.Tier = tier
	sig.MomentumScore = MomentumScore(&sig)
	return sig, true
}

func buyRatio(buys, sells int) float64 {
	total := buys + sells
	if total == 0 {
		return 0.5
	}
	return float64(buys) / float64(total)
}

// classifyTier collects every tier the pair qualifies for and picks the
// highest-priority one.
func classifyTier(sig *state.DexMomentumSignal, cfg *config.AgentConfig, ageHours float64) (state.Tier, bool) {
	var best state.Tier
	consider := func(t state.Tier) {
		if state.TierPriority(t) > state.TierPriority(best) {
			best = t
		}
	}

	if cfg.DexMicrosprayEnabled &&
		ageHours >= 0.5 && ageHours < 2 &&
		sig.LiquidityUsd >= cfg.DexMicrosprayMinLiquidity &&
		sig.Volume24h >= cfg.DexMicrosprayMinVolume &&
		sig.Sells24h >= 3 {
		consider(state.TierMicrospray)
	}
	if cfg.DexBreakoutEnabled &&
		ageHours >= 2 && ageHours < 6 &&
		sig.PriceChange5m >= cfg.DexBreakoutMin5mPump &&
		sig.LiquidityUsd >= cfg.DexBreakoutMinLiquidity &&
		sig.Volume24h >= cfg.DexBreakoutMinVolume &&
		sig.Sells24h >= 5 {
		consider(state.TierBreakout)
	}
	if cfg.DexLotteryEnabled &&
		ageHours >= 1 && ageHours < 6 &&
		sig.PriceChange1h >= cfg.DexLotteryMin1hChange &&
		sig.LiquidityUsd >= cfg.DexLotteryMinLiquidity &&
		sig.Volume24h >= cfg.DexLotteryMinVolume &&
		sig.Sells24h >= 5 {
		consider(state.TierLottery)
	}
	if cfg.DexEarlyEnabled &&
		ageHours >= 6 && ageHours < 72 &&
		sig.LegitimacyScore >= cfg.DexEarlyMinLegitimacy &&
		sig.LiquidityUsd >= cfg.DexEarlyMinLiquidity &&
		sig.Volume24h >= cfg.DexEarlyMinVolume &&
		sig.Sells24h >= 10 {
		consider(state.TierEarly)
	}
	maxAgeHours := cfg.DexMaxAgeDays * 24
	if maxAgeHours <= 0 {
		maxAgeHours = 14 * 24
	}
	if cfg.DexEstablishedEnabled &&
		ageHours >= 72 && ageHours < maxAgeHours &&
		sig.LiquidityUsd >= cfg.DexEstablishedMinLiquidity &&
		sig.Volume24h >= cfg.DexEstablishedMinVolume &&
		sig.Sells24h >= 10 {
		consider(state.TierEstablished)
	}

	if best == "" {
		return "", false
	}
	return best, true
}
