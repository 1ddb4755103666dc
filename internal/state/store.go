package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"social-trading-agent/config"
)

// stateKey is the single opaque key the snapshot lives under. Writes are
// atomic and last-writer-wins is fine because the agent is the only writer.
const stateKey = "state"

// Store persists the AgentState snapshot.
type Store interface {
	Load(ctx context.Context) (*AgentState, error)
	Save(ctx context.Context, s *AgentState) error
	Close() error
}

// ErrNoSnapshot is returned by Load when no snapshot exists yet.
var ErrNoSnapshot = errors.New("state: no snapshot")

// LoadOrInit loads the snapshot through the store and applies the migration
// policy, or writes a fresh default state on first boot. Returns the state and
// the list of repaired config keys.
func LoadOrInit(ctx context.Context, store Store) (*AgentState, []string, error) {
	s, err := store.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		s = NewAgentState(config.DefaultConfig())
		if err := store.Save(ctx, s); err != nil {
			return nil, nil, fmt.Errorf("write initial snapshot: %w", err)
		}
		return s, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	repaired := config.Migrate(&s.Config)
	s.Normalize()
	return s, repaired, nil
}

// decodeSnapshot overlays stored JSON on top of a default state so any field
// missing from an older snapshot keeps its default (the default-fill
// migration). Unknown stored keys are ignored by encoding/json.
func decodeSnapshot(raw []byte) (*AgentState, error) {
	s := NewAgentState(config.DefaultConfig())
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("decode state snapshot: %w", err)
	}
	return s, nil
}

// RedisStore keeps the snapshot under one Redis key.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Load(ctx context.Context) (*AgentState, error) {
	raw, err := r.client.Get(ctx, stateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", stateKey, err)
	}
	return decodeSnapshot(raw)
}

func (r *RedisStore) Save(ctx context.Context, s *AgentState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state snapshot: %w", err)
	}
	if err := r.client.Set(ctx, stateKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", stateKey, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// FileStore is the fallback snapshot store when Redis is disabled. Writes go
// through a temp file and rename so a crash never leaves a partial snapshot.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(_ context.Context) (*AgentState, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return decodeSnapshot(raw)
}

func (f *FileStore) Save(_ context.Context, s *AgentState) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state snapshot: %w", err)
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }
