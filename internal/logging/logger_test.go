package logging

import (
	"errors"
	"testing"
)

func TestHookReceivesFields(t *testing.T) {
	log := New(&Config{Level: "INFO", Output: "stderr", JSONFormat: true})
	var gotLevel, gotEvent string
	var gotFields map[string]interface{}
	log.SetHook(func(level, event string, fields map[string]interface{}) {
		gotLevel, gotEvent, gotFields = level, event, fields
	})

	log.WithComponent("dex").Info("position_opened", "symbol", "BONK", "size_sol", 0.5)

	if gotLevel != "INFO" || gotEvent != "position_opened" {
		t.Fatalf("hook saw %s/%s", gotLevel, gotEvent)
	}
	if gotFields["symbol"] != "BONK" {
		t.Errorf("fields = %v", gotFields)
	}
}

func TestHookSharedWithDerivedLoggers(t *testing.T) {
	log := New(&Config{Level: "INFO", Output: "stderr", JSONFormat: true})
	derived := log.WithComponent("api").WithField("request_id", "r1")

	var calls int
	log.SetHook(func(string, string, map[string]interface{}) { calls++ })

	derived.Warn("slow_request")
	if calls != 1 {
		t.Errorf("derived logger should share the root hook, got %d calls", calls)
	}
}

func TestLevelFiltersHook(t *testing.T) {
	log := New(&Config{Level: "ERROR", Output: "stderr", JSONFormat: true})
	var calls int
	log.SetHook(func(string, string, map[string]interface{}) { calls++ })

	log.Info("ignored")
	log.Debug("ignored")
	log.Error("kept", "error", errors.New("boom"))

	if calls != 1 {
		t.Errorf("only the error should reach the hook, got %d", calls)
	}
}

func TestErrorValuesFlattened(t *testing.T) {
	log := New(&Config{Level: "INFO", Output: "stderr", JSONFormat: true})
	var fields map[string]interface{}
	log.SetHook(func(_, _ string, f map[string]interface{}) { fields = f })

	log.Error("fetch_failed", "error", errors.New("timeout"))
	if fields["error"] != "timeout" {
		t.Errorf("error field = %v, want flattened message", fields["error"])
	}
}
