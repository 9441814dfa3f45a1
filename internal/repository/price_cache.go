package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/infrastructure/redis"
	"github.com/yourorg/staybook/internal/reliability/circuitbreaker"
	"github.com/yourorg/staybook/pkg/cache"
)

// ErrCacheUnavailable is returned while the cache circuit is open.
var ErrCacheUnavailable = errors.New("price cache unavailable")

func priceKey(propertyID, viewerID string) string {
	if viewerID == "" {
		return fmt.Sprintf("price:%s", propertyID)
	}
	return fmt.Sprintf("price:%s:%s", propertyID, viewerID)
}

// RedisPriceCache implements domain.PriceCache on Redis. Entries are
// JSON blobs with a TTL; a missing entry means the scheduler has not
// resolved the pair yet and returns ErrNotFound.
type RedisPriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPriceCache creates a price cache over the shared Redis client.
func NewRedisPriceCache(client *redis.Client, ttl time.Duration) *RedisPriceCache {
	return &RedisPriceCache{client: client, ttl: ttl}
}

func (c *RedisPriceCache) Set(ctx context.Context, price *domain.EffectivePrice) error {
	data, err := json.Marshal(price)
	if err != nil {
		return fmt.Errorf("failed to marshal effective price: %w", err)
	}
	if err := c.client.Set(ctx, priceKey(price.PropertyID, price.ViewerID), data, c.ttl); err != nil {
		return fmt.Errorf("failed to cache effective price: %w", err)
	}
	return nil
}

func (c *RedisPriceCache) Get(ctx context.Context, propertyID, viewerID string) (*domain.EffectivePrice, error) {
	data, err := c.client.Get(ctx, priceKey(propertyID, viewerID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read effective price: %w", err)
	}

	var price domain.EffectivePrice
	if err := json.Unmarshal([]byte(data), &price); err != nil {
		return nil, fmt.Errorf("failed to unmarshal effective price: %w", err)
	}
	return &price, nil
}

// GuardedPriceCache wraps a PriceCache with a circuit breaker so a
// failing Redis fast-fails instead of stacking timeouts; price reads
// then fall back to direct resolution.
type GuardedPriceCache struct {
	inner   domain.PriceCache
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedPriceCache wraps inner with the given breaker.
func NewGuardedPriceCache(inner domain.PriceCache, breaker *circuitbreaker.CircuitBreaker) *GuardedPriceCache {
	return &GuardedPriceCache{inner: inner, breaker: breaker}
}

func (c *GuardedPriceCache) Set(ctx context.Context, price *domain.EffectivePrice) error {
	if !c.breaker.AllowRequest() {
		return ErrCacheUnavailable
	}
	if err := c.inner.Set(ctx, price); err != nil {
		c.breaker.RecordFailure()
		return err
	}
	c.breaker.RecordSuccess()
	return nil
}

func (c *GuardedPriceCache) Get(ctx context.Context, propertyID, viewerID string) (*domain.EffectivePrice, error) {
	if !c.breaker.AllowRequest() {
		return nil, ErrCacheUnavailable
	}
	price, err := c.inner.Get(ctx, propertyID, viewerID)
	if err != nil {
		// A miss is a healthy answer, not a dependency failure.
		if errors.Is(err, domain.ErrNotFound) {
			c.breaker.RecordSuccess()
			return nil, err
		}
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return price, nil
}

// MemoryPriceCache is the in-process fallback used when Redis is not
// configured. Single-node only.
type MemoryPriceCache struct {
	cache *cache.Cache[domain.EffectivePrice]
	ttl   time.Duration
}

// NewMemoryPriceCache creates an in-memory price cache.
func NewMemoryPriceCache(ttl time.Duration) *MemoryPriceCache {
	return &MemoryPriceCache{cache: cache.New[domain.EffectivePrice](), ttl: ttl}
}

func (c *MemoryPriceCache) Set(ctx context.Context, price *domain.EffectivePrice) error {
	c.cache.Set(priceKey(price.PropertyID, price.ViewerID), *price, c.ttl)
	return nil
}

func (c *MemoryPriceCache) Get(ctx context.Context, propertyID, viewerID string) (*domain.EffectivePrice, error) {
	price, ok := c.cache.Get(priceKey(propertyID, viewerID))
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &price, nil
}
