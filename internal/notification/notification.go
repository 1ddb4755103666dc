package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
)

// Sink delivers alert events somewhere. Delivery is best-effort and must not
// block; the manager already runs off the scheduler goroutine.
type Sink interface {
	Send(event events.AlertEvent) error
	Name() string
	IsEnabled() bool
}

// Manager fans alert events out to the configured sinks.
type Manager struct {
	sinks []Sink
	log   *logging.Logger
}

// NewManager creates a notification manager and subscribes it to the bus.
func NewManager(bus *events.Bus, log *logging.Logger) *Manager {
	m := &Manager{log: log.WithComponent("notify")}
	bus.SubscribeAll(m.dispatch)
	return m
}

// AddSink adds a delivery sink
func (m *Manager) AddSink(s Sink) {
	m.sinks = append(m.sinks, s)
}

func (m *Manager) dispatch(event events.AlertEvent) {
	for _, s := range m.sinks {
		if !s.IsEnabled() {
			continue
		}
		if err := s.Send(event); err != nil {
			m.log.Warn("alert delivery failed", "sink", s.Name(), "kind", string(event.Kind), "error", err)
		}
	}
}

// LogSink writes alerts to the structured log. Always enabled; it is what
// makes alert events visible without any external transport configured.
type LogSink struct {
	log *logging.Logger
}

func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("alerts")}
}

func (s *LogSink) Name() string    { return "log" }
func (s *LogSink) IsEnabled() bool { return true }

func (s *LogSink) Send(event events.AlertEvent) error {
	s.log.Info(string(event.Kind), "event_id", event.ID, "payload", event.Payload)
	return nil
}

// WebhookSink POSTs the raw alert event as JSON to a configured URL. The
// receiving side owns formatting and any further rate limiting.
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookSink) Name() string    { return "webhook" }
func (s *WebhookSink) IsEnabled() bool { return s.url != "" }

func (s *WebhookSink) Send(event events.AlertEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
