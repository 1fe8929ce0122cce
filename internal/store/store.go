package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"optionchain/internal/config"
	"optionchain/internal/provider"
	"optionchain/internal/store/postgres"
	"optionchain/internal/store/redisstore"
)

// Store is an append-only log of snapshots.
//
// Append stamps the snapshot with the store's own clock and that stamp is what
// Latest orders by and returns as Timestamp. Latest returns (nil, nil) when empty.
type Store interface {
	Append(ctx context.Context, snap provider.Snapshot) (string, error)
	Latest(ctx context.Context) (*provider.Snapshot, error)
	Close() error
}

var ErrUnknownDriver = errors.New("unknown store driver")

// Open builds the configured backend.
func Open(ctx context.Context, cfg config.Store, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Driver {
	case "", "memory":
		log.Info("using in-memory store")
		return NewMemory(), nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		log.Info("using postgres store", zap.String("table", cfg.Table))
		return s, nil
	case "redis":
		s, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		log.Info("using redis store", zap.String("addr", cfg.RedisAddr), zap.String("key", cfg.RedisKey))
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

type record struct {
	id   string
	snap provider.Snapshot
}

// Memory keeps snapshots in process. Used for development and tests.
type Memory struct {
	Now func() time.Time

	mu      sync.RWMutex
	records []record
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(ctx context.Context, snap provider.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	stored := snap.Clone()
	stored.Timestamp = now().UTC()
	id := uuid.NewString()

	m.mu.Lock()
	m.records = append(m.records, record{id: id, snap: stored})
	m.mu.Unlock()
	return id, nil
}

// Latest returns the newest snapshot by stored timestamp; ties go to the later append.
func (m *Memory) Latest(ctx context.Context) (*provider.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return nil, nil
	}
	best := 0
	for i := 1; i < len(m.records); i++ {
		if !m.records[i].snap.Timestamp.Before(m.records[best].snap.Timestamp) {
			best = i
		}
	}
	out := m.records[best].snap.Clone()
	return &out, nil
}

// Len reports how many snapshots were appended.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) Close() error { return nil }
