package gather

import (
	"testing"
)

func contains(list []string, sym string) bool {
	for _, s := range list {
		if s == sym {
			return true
		}
	}
	return false
}

func TestExtractTickersCashtag(t *testing.T) {
	got := ExtractTickers("loading up on $TSLA and $NVDA before earnings", nil)
	if !contains(got, "TSLA") || !contains(got, "NVDA") {
		t.Errorf("cashtags should always extract, got %v", got)
	}
}

func TestExtractTickersBareNeedsContext(t *testing.T) {
	// No trading keyword: bare uppercase words stay out.
	got := ExtractTickers("GME is a fun company", nil)
	if contains(got, "GME") {
		t.Errorf("bare symbol without context should not extract, got %v", got)
	}

	got = ExtractTickers("buying GME calls tomorrow", nil)
	if !contains(got, "GME") {
		t.Errorf("bare symbol with trading context should extract, got %v", got)
	}
}

func TestExtractTickersBlacklists(t *testing.T) {
	got := ExtractTickers("$CEO said YOLO on $TSLA calls", nil)
	if contains(got, "CEO") || contains(got, "YOLO") {
		t.Errorf("built-in blacklist should apply, got %v", got)
	}
	if !contains(got, "TSLA") {
		t.Errorf("non-blacklisted cashtag should survive, got %v", got)
	}

	got = ExtractTickers("$TSLA calls", []string{"tsla"})
	if contains(got, "TSLA") {
		t.Errorf("user blacklist should apply case-insensitively, got %v", got)
	}
}

func TestExtractTickersDedup(t *testing.T) {
	got := ExtractTickers("$TSLA $TSLA buy TSLA calls", nil)
	count := 0
	for _, s := range got {
		if s == "TSLA" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("symbol should appear once, got %v", got)
	}
}

func TestExtractTickersLength(t *testing.T) {
	got := ExtractTickers("$TOOLONG $A $AB calls", nil)
	if contains(got, "TOOLONG") {
		t.Errorf("6+ letter cashtag should not match, got %v", got)
	}
	if !contains(got, "AB") {
		t.Errorf("2-letter cashtag should match, got %v", got)
	}
}
