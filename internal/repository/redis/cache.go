package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/resilience"
)

// Common errors
var (
	ErrCacheMiss = errors.New("cache miss")
)

// Cache keys
const (
	leiPrefix  = "refdata:lei:"
	isinPrefix = "refdata:isin:"
)

// documentCache stores JSON documents under a key prefix behind a breaker
type documentCache[V any] struct {
	client *redis.Client
	cb     *resilience.CircuitBreaker
	prefix string
	ttl    time.Duration
}

func (c *documentCache[V]) get(ctx context.Context, id string) (*V, error) {
	data, err := resilience.Call(ctx, c.cb, func(ctx context.Context) ([]byte, error) {
		data, err := c.client.Get(ctx, c.prefix+id).Bytes()
		if err != nil {
			// a miss is a healthy answer and must not count against the breaker
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read %s from cache: %w", c.prefix+id, err)
		}
		return data, nil
	})
	if err != nil {
		if resilience.IsUnavailable(err) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	if data == nil {
		return nil, ErrCacheMiss
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached document: %w", err)
	}
	return &v, nil
}

func (c *documentCache[V]) set(ctx context.Context, id string, v *V) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = c.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		if err := c.client.Set(ctx, c.prefix+id, data, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to write %s to cache: %w", c.prefix+id, err)
		}
		return nil, nil
	})
	return err
}

// LeiCache is the shared cache tier for LEI records, keyed by LEI code
type LeiCache struct {
	client *redis.Client
	docs   *documentCache[domain.Lei]
}

// NewLeiCache creates a new LEI record cache
func NewLeiCache(client *redis.Client, cb *resilience.CircuitBreaker, ttl time.Duration) *LeiCache {
	return &LeiCache{
		client: client,
		docs:   &documentCache[domain.Lei]{client: client, cb: cb, prefix: leiPrefix, ttl: ttl},
	}
}

// GetLei retrieves a cached LEI record. Returns ErrCacheMiss when absent or
// when Redis is unavailable.
func (c *LeiCache) GetLei(ctx context.Context, code string) (*domain.Lei, error) {
	return c.docs.get(ctx, code)
}

// SetLei caches an LEI record
func (c *LeiCache) SetLei(ctx context.Context, lei *domain.Lei) error {
	return c.docs.set(ctx, lei.Code, lei)
}

// Ping checks Redis connectivity
func (c *LeiCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// IsinCache is the shared cache tier for CUSIP and SEDOL conversions
type IsinCache struct {
	docs *documentCache[domain.IsinConversion]
}

// NewIsinCache creates a new conversion cache
func NewIsinCache(client *redis.Client, cb *resilience.CircuitBreaker, ttl time.Duration) *IsinCache {
	return &IsinCache{
		docs: &documentCache[domain.IsinConversion]{client: client, cb: cb, prefix: isinPrefix, ttl: ttl},
	}
}

func conversionKey(kind domain.SourceKind, code string) string {
	return string(kind) + ":" + code
}

// GetConversion retrieves a cached conversion
func (c *IsinCache) GetConversion(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, error) {
	return c.docs.get(ctx, conversionKey(kind, code))
}

// SetConversion caches a conversion
func (c *IsinCache) SetConversion(ctx context.Context, conv *domain.IsinConversion) error {
	return c.docs.set(ctx, conversionKey(conv.SourceKind, conv.SourceCode), conv)
}
