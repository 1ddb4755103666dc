package gather

import (
	"math"
	"strings"
	"time"
)

const decayHalfLifeMinutes = 120.0

// timeDecay down-weights old posts with a 2 h half-life, floored so even a
// day-old post keeps some weight.
func timeDecay(createdAt, now time.Time) float64 {
	ageMinutes := now.Sub(createdAt).Minutes()
	if ageMinutes < 0 {
		ageMinutes = 0
	}
	decay := math.Pow(0.5, ageMinutes/decayHalfLifeMinutes)
	if decay < 0.2 {
		return 0.2
	}
	if decay > 1.0 {
		return 1.0
	}
	return decay
}

func upvoteMultiplier(upvotes int) float64 {
	switch {
	case upvotes >= 1000:
		return 1.5
	case upvotes >= 500:
		return 1.3
	case upvotes >= 200:
		return 1.2
	case upvotes >= 100:
		return 1.1
	case upvotes >= 50:
		return 1.0
	default:
		return 0.8
	}
}

func commentMultiplier(comments int) float64 {
	switch {
	case comments >= 500:
		return 1.5
	case comments >= 200:
		return 1.3
	case comments >= 100:
		return 1.2
	case comments >= 50:
		return 1.1
	case comments >= 20:
		return 1.0
	default:
		return 0.8
	}
}

func engagementMultiplier(upvotes, comments int) float64 {
	return (upvoteMultiplier(upvotes) + commentMultiplier(comments)) / 2
}

var flairMultipliers = map[string]float64{
	"dd":               1.5,
	"due diligence":    1.5,
	"ta":               1.3,
	"technical analysis": 1.3,
	"news":             1.2,
	"catalyst":         1.2,
	"discussion":       1.0,
	"daily discussion": 0.7,
	"yolo":             0.6,
	"gain":             0.5,
	"loss":             0.5,
	"meme":             0.4,
	"shitpost":         0.3,
}

func flairMultiplier(flair string) float64 {
	if m, ok := flairMultipliers[strings.ToLower(strings.TrimSpace(flair))]; ok {
		return m
	}
	return 1.0
}

// flairRank orders flairs for "best flair wins" aggregation. An absent flair
// ranks below every real one.
func flairRank(flair string) float64 {
	if strings.TrimSpace(flair) == "" {
		return 0
	}
	return flairMultiplier(flair)
}

var bullishWords = []string{
	"moon", "rocket", "calls", "bullish", "buy", "long", "yolo", "squeeze",
	"breakout", "undervalued", "rally", "gap up", "all in", "diamond hands",
	"to the moon", "pump", "green", "tendies", "print", "rip",
}

var bearishWords = []string{
	"puts", "bearish", "sell", "short", "crash", "dump", "overvalued",
	"bagholding", "bag holder", "drill", "tank", "red", "rug", "collapse",
	"bubble", "gap down",
}

// scoreText assigns a lexicon sentiment in [-1,+1] from keyword hits.
func scoreText(text string) float64 {
	lower := strings.ToLower(text)
	var bull, bear int
	for _, w := range bullishWords {
		if strings.Contains(lower, w) {
			bull++
		}
	}
	for _, w := range bearishWords {
		if strings.Contains(lower, w) {
			bear++
		}
	}
	total := bull + bear
	if total == 0 {
		return 0
	}
	score := float64(bull-bear) / float64(total)
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}
