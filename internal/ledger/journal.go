package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rentguard/pkg/platform/sentinel"
)

// Journal remembers committed receipts by idempotency key.
type Journal interface {
	// Get returns sentinel.ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) (*Receipt, error)
	// PutIfAbsent stores r unless key is taken and returns whichever receipt
	// the journal holds afterwards.
	PutIfAbsent(ctx context.Context, key string, r *Receipt) (*Receipt, error)
}

type MemoryJournal struct {
	mu       sync.Mutex
	receipts map[string]Receipt
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{receipts: make(map[string]Receipt)}
}

func (j *MemoryJournal) Get(_ context.Context, key string) (*Receipt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.receipts[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (j *MemoryJournal) PutIfAbsent(_ context.Context, key string, r *Receipt) (*Receipt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if existing, ok := j.receipts[key]; ok {
		return &existing, nil
	}
	j.receipts[key] = *r
	out := *r
	return &out, nil
}

const redisJournalPrefix = "rentguard:ledger:"

// RedisJournal shares receipts across instances using SETNX.
type RedisJournal struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisJournal keeps receipts for ttl; zero keeps them forever.
func NewRedisJournal(client *redis.Client, ttl time.Duration) *RedisJournal {
	return &RedisJournal{client: client, ttl: ttl}
}

func (j *RedisJournal) Get(ctx context.Context, key string) (*Receipt, error) {
	raw, err := j.client.Get(ctx, redisJournalPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode receipt %s: %w", key, err)
	}
	return &r, nil
}

func (j *RedisJournal) PutIfAbsent(ctx context.Context, key string, r *Receipt) (*Receipt, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode receipt %s: %w", key, err)
	}
	ok, err := j.client.SetNX(ctx, redisJournalPrefix+key, raw, j.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if ok {
		out := *r
		return &out, nil
	}
	return j.Get(ctx, key)
}
