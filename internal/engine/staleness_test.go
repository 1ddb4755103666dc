package engine

import (
	"testing"
	"time"

	"social-trading-agent/config"
)

func TestStalenessNeverFiresBeforeMinHold(t *testing.T) {
	cfg := config.DefaultConfig()
	a := analyzeStaleness(cfg, stalenessInput{
		HoldTime:          12 * time.Hour,
		PlPct:             -9,
		EntrySocialVolume: 100,
		CurrentVolume:     0,
		Now:               time.Now(),
	})
	if a.Score != 0 || a.IsStale {
		t.Errorf("before min hold hours nothing should score, got %.0f stale=%v", a.Score, a.IsStale)
	}
}

func TestStalenessTimeComponentLinear(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()

	// Halfway between mid (3d) and max (7d) hold: 5 days = 20 time points.
	a := analyzeStaleness(cfg, stalenessInput{
		HoldTime:    5 * 24 * time.Hour,
		PlPct:       10,
		LastMention: now,
		Now:         now,
	})
	if a.Score != 20 {
		t.Errorf("5-day hold should score 20 time points, got %.0f", a.Score)
	}

	// At max hold the time component saturates at 40.
	a = analyzeStaleness(cfg, stalenessInput{
		HoldTime:    10 * 24 * time.Hour,
		PlPct:       10,
		LastMention: now,
		Now:         now,
	})
	if a.Score != 40 {
		t.Errorf("past max hold should cap at 40 time points, got %.0f", a.Score)
	}
}

func TestStalenessLoserScoresStale(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()

	// 7 days underwater with dead social volume: 40 + 30 + 30 >= 70.
	a := analyzeStaleness(cfg, stalenessInput{
		HoldTime:          7 * 24 * time.Hour,
		PlPct:             -10,
		EntrySocialVolume: 100,
		CurrentVolume:     10,
		LastMention:       now,
		Now:               now,
	})
	if !a.IsStale {
		t.Errorf("deep loser should be stale, score %.0f reasons %v", a.Score, a.Reasons)
	}
	if a.Score > 100 {
		t.Errorf("score must cap at 100, got %.0f", a.Score)
	}
}

func TestStalenessMaxHoldSmallGain(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()

	// Held past max days with a gain below the minimum: stale regardless of score.
	a := analyzeStaleness(cfg, stalenessInput{
		HoldTime:    8 * 24 * time.Hour,
		PlPct:       1,
		LastMention: now,
		Now:         now,
	})
	if !a.IsStale {
		t.Errorf("max-hold small gain should be stale, score %.0f", a.Score)
	}

	// Same hold with a healthy gain is not stale by that rule.
	a = analyzeStaleness(cfg, stalenessInput{
		HoldTime:    8 * 24 * time.Hour,
		PlPct:       15,
		LastMention: now,
		Now:         now,
	})
	if a.IsStale {
		t.Errorf("max-hold winner should not be forced stale, score %.0f", a.Score)
	}
}

func TestStalenessNoMentionComponent(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()

	silent := analyzeStaleness(cfg, stalenessInput{
		HoldTime:    2 * 24 * time.Hour,
		PlPct:       5,
		LastMention: now.Add(-24 * time.Hour),
		Now:         now,
	})
	mentioned := analyzeStaleness(cfg, stalenessInput{
		HoldTime:    2 * 24 * time.Hour,
		PlPct:       5,
		LastMention: now.Add(-time.Hour),
		Now:         now,
	})
	if silent.Score <= mentioned.Score {
		t.Errorf("silence should add staleness: silent %.0f vs mentioned %.0f", silent.Score, mentioned.Score)
	}
}
