package api

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
)

var (
	metricsOnce sync.Once

	tradeEntries *prometheus.CounterVec
	tradeExits   *prometheus.CounterVec
	crisisLevel  prometheus.Gauge
	killSwitches prometheus.Counter
	logMessages  *prometheus.CounterVec
)

func initMetrics() {
	tradeEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_agent",
		Name:      "trade_entries_total",
		Help:      "Trade entries by venue.",
	}, []string{"venue"})
	tradeExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_agent",
		Name:      "trade_exits_total",
		Help:      "Trade exits by venue and reason.",
	}, []string{"venue", "reason"})
	crisisLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trading_agent",
		Name:      "crisis_level",
		Help:      "Current crisis level, 0 to 3.",
	})
	killSwitches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trading_agent",
		Name:      "kill_switch_total",
		Help:      "Kill switch activations.",
	})
	logMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trading_agent",
		Name:      "log_messages_total",
		Help:      "Warn and error log entries by level.",
	}, []string{"level"})
}

// LogHook returns a logging hook that counts warn and error entries, so
// alerting can key off the metric without scraping log output.
func LogHook() logging.Hook {
	metricsOnce.Do(initMetrics)
	return func(level, _ string, _ map[string]interface{}) {
		switch level {
		case "WARN", "ERROR":
			logMessages.WithLabelValues(level).Inc()
		}
	}
}

// registerMetricsSinks feeds the prometheus collectors from bus events.
// Registration is process-wide, so the collectors are created once even when
// tests build several servers.
func registerMetricsSinks(bus *events.Bus) {
	metricsOnce.Do(initMetrics)

	bus.Subscribe(events.KindTradeEntry, func(ev events.AlertEvent) {
		tradeEntries.WithLabelValues(payloadString(ev, "venue")).Inc()
	})
	bus.Subscribe(events.KindTradeExit, func(ev events.AlertEvent) {
		tradeExits.WithLabelValues(payloadString(ev, "venue"), payloadString(ev, "reason")).Inc()
	})
	bus.Subscribe(events.KindCrisisLevelChange, func(ev events.AlertEvent) {
		if to, ok := ev.Payload["to"].(int); ok {
			crisisLevel.Set(float64(to))
		}
	})
	bus.Subscribe(events.KindKillSwitch, func(events.AlertEvent) {
		killSwitches.Inc()
	})
}

func payloadString(ev events.AlertEvent, key string) string {
	if v, ok := ev.Payload[key].(string); ok {
		return v
	}
	return "unknown"
}
