package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/temirov/structgen/internal/pipeline"
)

const defaultCachePrefix = "structgen:response:"

var ErrCacheMiss = errors.New("cache miss")

// ResponseCache stores generation responses by key.
type ResponseCache interface {
	Get(ctx context.Context, key string) (pipeline.LLMResponse, error)
	Set(ctx context.Context, key string, response pipeline.LLMResponse) error
}

type cacheEntry struct {
	RawText    string         `json:"raw_text,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RedisCache keeps responses in Redis under prefix+key with a fixed TTL.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// ModelPrefix scopes prefix to one model, so responses cached for one model are never
// served to another. An empty prefix falls back to the default.
func ModelPrefix(prefix string, modelID string) string {
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	return prefix + modelID + ":"
}

func (c *RedisCache) Get(ctx context.Context, key string) (pipeline.LLMResponse, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return pipeline.LLMResponse{}, ErrCacheMiss
	}
	if err != nil {
		return pipeline.LLMResponse{}, fmt.Errorf("redis get: %w", err)
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return pipeline.LLMResponse{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return pipeline.LLMResponse{RawText: entry.RawText, Structured: entry.Structured}, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, response pipeline.LLMResponse) error {
	data, err := json.Marshal(cacheEntry{RawText: response.RawText, Structured: response.Structured, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CachingGenerator serves repeated (schema, prompt) pairs from a cache. Every response the
// service returns is stored, including ones the pipeline later rejects, so a cached run
// replays the same attempts; --no-cache bypasses it. Cache failures are logged and the
// wrapped generator is called.
type CachingGenerator struct {
	next     pipeline.Generator
	cache    ResponseCache
	logger   *zap.Logger
	observer CacheObserver
}

// CacheObserver is told about every cache lookup.
type CacheObserver interface {
	ObserveCacheLookup(hit bool)
}

func NewCachingGenerator(next pipeline.Generator, cache ResponseCache, logger *zap.Logger) *CachingGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingGenerator{next: next, cache: cache, logger: logger.With(zap.String("component", "response_cache"))}
}

// WithObserver reports lookups to observer.
func (g *CachingGenerator) WithObserver(observer CacheObserver) *CachingGenerator {
	g.observer = observer
	return g
}

func (g *CachingGenerator) Generate(ctx context.Context, request pipeline.LLMRequest) (pipeline.LLMResponse, error) {
	key := CacheKey(request)
	cached, err := g.cache.Get(ctx, key)
	switch {
	case err == nil:
		g.observe(true)
		g.logger.Debug("cache hit", zap.String("key", key), zap.String("stage", string(request.Stage)))
		return cached, nil
	case !errors.Is(err, ErrCacheMiss):
		g.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	g.observe(false)

	response, err := g.next.Generate(ctx, request)
	if err != nil {
		return pipeline.LLMResponse{}, err
	}
	if setErr := g.cache.Set(ctx, key, response); setErr != nil {
		g.logger.Warn("cache store failed", zap.String("key", key), zap.Error(setErr))
	}
	return response, nil
}

func (g *CachingGenerator) observe(hit bool) {
	if g.observer != nil {
		g.observer.ObserveCacheLookup(hit)
	}
}

// CacheKey hashes the schema fingerprint together with the rendered prompt, so entries are
// never shared between schemas.
func CacheKey(request pipeline.LLMRequest) string {
	hasher := sha256.New()
	if request.Schema != nil {
		hasher.Write([]byte(request.Schema.Fingerprint()))
	}
	hasher.Write([]byte{0})
	hasher.Write([]byte(request.Prompt.Render()))
	return hex.EncodeToString(hasher.Sum(nil))
}
