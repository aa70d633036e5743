package cart

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxUpdateAttempts bounds optimistic retries. A failed attempt means another writer committed.
const maxUpdateAttempts = 16

// MemoryPersister keeps carts in process memory.
type MemoryPersister struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

// NewMemoryPersister creates an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{carts: make(map[string][]byte)}
}

func (p *MemoryPersister) Load(_ context.Context, owner string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.carts[owner]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (p *MemoryPersister) Save(_ context.Context, owner string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.carts[owner] = append([]byte(nil), data...)
	return nil
}

func (p *MemoryPersister) Delete(_ context.Context, owner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.carts, owner)
	return nil
}

// Update runs fn under the persister lock.
func (p *MemoryPersister) Update(_ context.Context, owner string, fn UpdateFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.carts[owner]
	if ok {
		current = append([]byte(nil), current...)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		delete(p.carts, owner)
		return nil
	}
	p.carts[owner] = append([]byte(nil), next...)
	return nil
}

// RedisPersister stores carts as JSON under cart:<owner> with a jittered TTL.
type RedisPersister struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

// NewRedisPersister creates a redis-backed persister. A non-positive ttl defaults to 7 days.
func NewRedisPersister(client redis.UniversalClient, ttl time.Duration) *RedisPersister {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisPersister{client: client, baseTTL: ttl}
}

func (p *RedisPersister) Load(ctx context.Context, owner string) ([]byte, error) {
	data, err := p.client.Get(ctx, cacheKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (p *RedisPersister) Save(ctx context.Context, owner string, data []byte) error {
	if err := p.client.Set(ctx, cacheKey(owner), data, p.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context, owner string) error {
	if err := p.client.Del(ctx, cacheKey(owner)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Update applies fn to the stored cart inside WATCH/MULTI and retries when another
// writer changed the key in between.
func (p *RedisPersister) Update(ctx context.Context, owner string, fn UpdateFunc) error {
	key := cacheKey(owner)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get failed: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, next, p.ttl())
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := p.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}

	return ErrConflict
}

func (p *RedisPersister) ttl() time.Duration {
	jitter := time.Duration(rand.Intn(60)) * time.Minute
	return p.baseTTL + jitter
}

func cacheKey(owner string) string {
	return fmt.Sprintf("cart:%s", owner)
}
