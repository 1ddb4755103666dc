package engine

import (
	"fmt"
	"math"
	"time"

	"social-trading-agent/config"
	"social-trading-agent/internal/state"
)

// stalenessInput gathers everything the score needs about one position.
type stalenessInput struct {
	HoldTime          time.Duration
	PlPct             float64
	EntrySocialVolume int
	CurrentVolume     int
	LastMention       time.Time // zero when the symbol has no cached signal
	Now               time.Time
}

// analyzeStaleness scores a held position 0-100. The score never fires before
// stale_min_hold_hours of hold time.
func analyzeStaleness(cfg *config.AgentConfig, in stalenessInput) *state.StalenessAnalysis {
	analysis := &state.StalenessAnalysis{Timestamp: in.Now}

	holdHours := in.HoldTime.Hours()
	if holdHours < cfg.StaleMinHoldHours {
		return analysis
	}
	holdDays := holdHours / 24

	var score float64
	var reasons []string

	// Time component, up to 40, linear between mid and max hold days.
	if holdDays > cfg.StaleMidHoldDays {
		span := cfg.StaleMaxHoldDays - cfg.StaleMidHoldDays
		frac := 1.0
		if span > 0 {
			frac = (holdDays - cfg.StaleMidHoldDays) / span
		}
		if frac > 1 {
			frac = 1
		}
		pts := frac * 40
		score += pts
		reasons = append(reasons, fmt.Sprintf("held %.1f days (+%.0f)", holdDays, pts))
	}

	// Price-action component, up to 30.
	if in.PlPct < 0 {
		pts := math.Min(30, math.Abs(in.PlPct)*3)
		score += pts
		reasons = append(reasons, fmt.Sprintf("underwater %.1f%% (+%.0f)", in.PlPct, pts))
	} else if in.PlPct < cfg.StaleMinGainPct && holdDays > cfg.StaleMidHoldDays {
		score += 15
		reasons = append(reasons, fmt.Sprintf("small gain %.1f%% past mid hold (+15)", in.PlPct))
	}

	// Social volume decay, up to 30.
	if in.EntrySocialVolume > 0 && float64(in.CurrentVolume) <= cfg.StaleSocialVolDecay*float64(in.EntrySocialVolume) {
		score += 30
		reasons = append(reasons, fmt.Sprintf("social volume %d vs %d at entry (+30)", in.CurrentVolume, in.EntrySocialVolume))
	}

	// No-mention component: a symbol absent from the cache for long enough
	// adds the remaining budget up to 15.
	if cfg.StaleNoMentionHours > 0 {
		var silentHours float64
		if in.LastMention.IsZero() {
			silentHours = holdHours
		} else {
			silentHours = in.Now.Sub(in.LastMention).Hours()
		}
		if silentHours >= cfg.StaleNoMentionHours {
			pts := math.Min(silentHours/cfg.StaleNoMentionHours*15, 15)
			if score+pts > 100 {
				pts = 100 - score
			}
			score += pts
			reasons = append(reasons, fmt.Sprintf("no mentions for %.0fh (+%.0f)", silentHours, pts))
		}
	}

	if score > 100 {
		score = 100
	}
	analysis.Score = score
	analysis.Reasons = reasons
	analysis.IsStale = score >= 70 ||
		(holdDays >= cfg.StaleMaxHoldDays && in.PlPct < cfg.StaleMinGainPct)
	return analysis
}
