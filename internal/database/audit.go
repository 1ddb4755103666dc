// Package database is the optional Postgres audit mirror. The snapshot in
// Redis or on disk stays the source of truth; these tables are append-only
// history for analysis, so every write failure is logged and dropped.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"social-trading-agent/internal/events"
	"social-trading-agent/internal/logging"
)

const writeTimeout = 5 * time.Second

// Audit owns the connection pool and the event sink.
type Audit struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// NewAudit connects the pool and verifies the link with a ping.
func NewAudit(ctx context.Context, dsn string, log *logging.Logger) (*Audit, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse audit dsn: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create audit pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	return &Audit{pool: pool, log: log.WithComponent("audit")}, nil
}

func (a *Audit) Close() {
	a.pool.Close()
}

// EnsureSchema creates the audit tables if they are missing.
func (a *Audit) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS agent_events (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	occurred   TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS agent_events_kind_idx ON agent_events (kind, occurred);

CREATE TABLE IF NOT EXISTS trade_events (
	id         TEXT PRIMARY KEY,
	venue      TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	size       DOUBLE PRECISION,
	pnl_pct    DOUBLE PRECISION,
	reason     TEXT,
	occurred   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trade_events_symbol_idx ON trade_events (venue, symbol, occurred);
`
	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Attach subscribes the mirror to the alert bus. Sinks run on the bus's own
// goroutines so a slow database never stalls a tick.
func (a *Audit) Attach(bus *events.Bus) {
	bus.SubscribeAll(a.recordEvent)
	bus.Subscribe(events.KindTradeEntry, func(ev events.AlertEvent) { a.recordTrade(ev, "entry") })
	bus.Subscribe(events.KindTradeExit, func(ev events.AlertEvent) { a.recordTrade(ev, "exit") })
}

func (a *Audit) recordEvent(ev events.AlertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		a.log.Error("audit_payload_marshal_failed", "kind", string(ev.Kind), "error", err.Error())
		return
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO agent_events (id, kind, occurred, payload) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, string(ev.Kind), ev.Timestamp, payload)
	if err != nil {
		a.log.Error("audit_event_write_failed", "kind", string(ev.Kind), "error", err.Error())
	}
}

func (a *Audit) recordTrade(ev events.AlertEvent, side string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := a.pool.Exec(ctx,
		`INSERT INTO trade_events (id, venue, symbol, side, size, pnl_pct, reason, occurred)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID,
		payloadStr(ev, "venue"),
		payloadStr(ev, "symbol"),
		side,
		payloadFloat(ev, "size"),
		payloadFloat(ev, "pnl_pct"),
		payloadStr(ev, "reason"),
		ev.Timestamp)
	if err != nil {
		a.log.Error("audit_trade_write_failed", "symbol", payloadStr(ev, "symbol"), "error", err.Error())
	}
}

func payloadStr(ev events.AlertEvent, key string) string {
	if v, ok := ev.Payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadFloat(ev events.AlertEvent, key string) float64 {
	if v, ok := ev.Payload[key].(float64); ok {
		return v
	}
	return 0
}
