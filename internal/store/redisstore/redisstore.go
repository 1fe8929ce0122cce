package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"optionchain/internal/provider"
)

const DefaultKey = "optionchain:snapshots"

type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string // sorted set holding the log
}

// Store appends snapshots to a sorted set scored by the Redis server clock in
// microseconds.
type Store struct {
	client redis.UniversalClient
	key    string
}

// entry is the sorted-set member.
type entry struct {
	ID         string            `json:"id"`
	CapturedAt time.Time         `json:"capturedAt"`
	Snapshot   provider.Snapshot `json:"snapshot"`
}

func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, opts.Key), nil
}

// New wraps an existing client. The Store owns client afterwards.
func New(client redis.UniversalClient, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

func (s *Store) Append(ctx context.Context, snap provider.Snapshot) (string, error) {
	now, err := s.client.Time(ctx).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read redis time: %w", err)
	}
	e := entry{ID: uuid.NewString(), CapturedAt: now.UTC(), Snapshot: snap}
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	z := redis.Z{
		Score:  float64(now.UnixMicro()),
		Member: data,
	}
	if err := s.client.ZAdd(ctx, s.key, z).Err(); err != nil {
		return "", fmt.Errorf("failed to add snapshot: %w", err)
	}
	return e.ID, nil
}

func (s *Store) Latest(ctx context.Context) (*provider.Snapshot, error) {
	members, err := s.client.ZRevRange(ctx, s.key, 0, 0).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	var e entry
	if err := json.Unmarshal([]byte(members[0]), &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	snap := e.Snapshot
	snap.Timestamp = e.CapturedAt
	return &snap, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
