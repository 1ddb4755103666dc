package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an alert event.
type Kind string

const (
	KindTradeEntry       Kind = "trade_entry"
	KindTradeExit        Kind = "trade_exit"
	KindCrisisLevelChange Kind = "crisis_level_change"
	KindKillSwitch       Kind = "kill_switch"
)

// AlertEvent is the single event shape the core emits. Transport-specific
// formatting and delivery live behind the sinks.
type AlertEvent struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// Subscriber is a function that handles events
type Subscriber func(AlertEvent)

// crisisAlertMinGap rate-limits crisis transition alerts per level.
const crisisAlertMinGap = 5 * time.Minute

// Bus fans alert events out to subscribers. Subscribers run on their own
// goroutines so a slow sink never blocks the scheduler.
type Bus struct {
	mu              sync.RWMutex
	subscribers     map[Kind][]Subscriber
	allSubs         []Subscriber
	lastCrisisAlert map[int]time.Time
}

// NewBus creates a new alert event bus
func NewBus() *Bus {
	return &Bus{
		subscribers:     make(map[Kind][]Subscriber),
		lastCrisisAlert: make(map[int]time.Time),
	}
}

// Subscribe registers a subscriber for a specific event kind
func (b *Bus) Subscribe(kind Kind, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], sub)
}

// SubscribeAll registers a subscriber for every event
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(event AlertEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Kind] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishTradeEntry emits a trade entry alert.
func (b *Bus) PublishTradeEntry(venue, symbol string, size float64, reason string) {
	b.Publish(AlertEvent{
		Kind: KindTradeEntry,
		Payload: map[string]interface{}{
			"venue":  venue,
			"symbol": symbol,
			"size":   size,
			"reason": reason,
		},
	})
}

// PublishTradeExit emits a trade exit alert.
func (b *Bus) PublishTradeExit(venue, symbol string, pnlPct float64, reason string) {
	b.Publish(AlertEvent{
		Kind: KindTradeExit,
		Payload: map[string]interface{}{
			"venue":   venue,
			"symbol":  symbol,
			"pnl_pct": pnlPct,
			"reason":  reason,
		},
	})
}

// PublishCrisisLevelChange emits a level-transition alert, rate-limited to
// one per level per five minutes.
func (b *Bus) PublishCrisisLevelChange(from, to int, triggered []string) {
	b.mu.Lock()
	if last, ok := b.lastCrisisAlert[to]; ok && time.Since(last) < crisisAlertMinGap {
		b.mu.Unlock()
		return
	}
	b.lastCrisisAlert[to] = time.Now()
	b.mu.Unlock()

	b.Publish(AlertEvent{
		Kind: KindCrisisLevelChange,
		Payload: map[string]interface{}{
			"from":      from,
			"to":        to,
			"triggered": triggered,
			"summary":   fmt.Sprintf("crisis level %d -> %d", from, to),
		},
	})
}

// PublishKillSwitch emits the kill-switch alert.
func (b *Bus) PublishKillSwitch() {
	b.Publish(AlertEvent{Kind: KindKillSwitch, Payload: map[string]interface{}{}})
}
