package gather

import (
	"math"
	"testing"
	"time"
)

// TestTimeDecay tests the half-life curve and its clamps
func TestTimeDecay(t *testing.T) {
	now := time.Now()

	fresh := timeDecay(now, now)
	if fresh != 1.0 {
		t.Errorf("fresh post should have decay 1.0, got %f", fresh)
	}

	halfLife := timeDecay(now.Add(-120*time.Minute), now)
	if math.Abs(halfLife-0.5) > 0.001 {
		t.Errorf("post at half-life should decay to 0.5, got %f", halfLife)
	}

	ancient := timeDecay(now.Add(-48*time.Hour), now)
	if ancient != 0.2 {
		t.Errorf("old post should clamp to floor 0.2, got %f", ancient)
	}

	future := timeDecay(now.Add(time.Hour), now)
	if future != 1.0 {
		t.Errorf("future timestamp should clamp to 1.0, got %f", future)
	}
}

func TestEngagementMultiplier(t *testing.T) {
	// 1000 upvotes (1.5) + 500 comments (1.5) averages to 1.5
	if m := engagementMultiplier(1000, 500); m != 1.5 {
		t.Errorf("max engagement should be 1.5, got %f", m)
	}
	// 10 upvotes (0.8) + 5 comments (0.8) averages to 0.8
	if m := engagementMultiplier(10, 5); m != 0.8 {
		t.Errorf("low engagement should be 0.8, got %f", m)
	}
	if m := engagementMultiplier(100, 20); math.Abs(m-1.05) > 0.001 {
		t.Errorf("mixed engagement should average brackets, got %f", m)
	}
}

func TestFlairMultiplier(t *testing.T) {
	cases := map[string]float64{
		"DD":        1.5,
		"dd":        1.5,
		"TA":        1.3,
		"News":      1.2,
		"YOLO":      0.6,
		"Meme":      0.4,
		"Shitpost":  0.3,
		"Something": 1.0,
		"":          1.0,
	}
	for flair, want := range cases {
		if got := flairMultiplier(flair); got != want {
			t.Errorf("flair %q: want %f, got %f", flair, want, got)
		}
	}
}

func TestScoreText(t *testing.T) {
	if s := scoreText("TSLA to the moon, buying calls"); s <= 0 {
		t.Errorf("bullish text should score positive, got %f", s)
	}
	if s := scoreText("this stock is going to crash, puts printing"); s >= 0 {
		t.Errorf("bearish text should score negative, got %f", s)
	}
	if s := scoreText("the quarterly report comes out thursday"); s != 0 {
		t.Errorf("neutral text should score zero, got %f", s)
	}
}
