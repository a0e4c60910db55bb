package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// PredictionCache stores prediction matrices by key.
type PredictionCache interface {
	Get(ctx context.Context, key string) ([][]float64, bool, error)
	Set(ctx context.Context, key string, value [][]float64, ttl time.Duration) error
}

// RedisCache is a PredictionCache on Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to addr and pings it.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{client: client, prefix: "social-volatility:predict"}, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([][]float64, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out [][]float64
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false, fmt.Errorf("decode cached prediction: %w", err)
	}
	return out, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value [][]float64, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+":"+key, b, ttl).Err()
}

// Cached wraps a Regressor so Predict results are reused for identical
// inputs against identically trained models. Cache failures are logged and
// fall through to the wrapped model.
type Cached struct {
	inner  Regressor
	cache  PredictionCache
	ttl    time.Duration
	logger zerolog.Logger

	fitKey   string
	onLookup func(hit bool)
}

// NewCached wraps inner with cache.
func NewCached(inner Regressor, cache PredictionCache, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

// WithLookupHook registers fn to observe every cache lookup.
func (c *Cached) WithLookupHook(fn func(hit bool)) *Cached {
	c.onLookup = fn
	return c
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Fit(ctx context.Context, X, Y [][]float64) error {
	if err := c.inner.Fit(ctx, X, Y); err != nil {
		return err
	}
	c.fitKey = fingerprint(c.inner.Name(), X, Y)
	return nil
}

func (c *Cached) Predict(ctx context.Context, X [][]float64) ([][]float64, error) {
	if c.fitKey == "" {
		return nil, ErrNotFitted
	}
	key := c.fitKey + ":" + fingerprint("x", X)

	if hit, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn().Err(err).Msg("prediction cache read failed")
	} else if ok && len(hit) == len(X) {
		c.observe(true)
		return hit, nil
	}
	c.observe(false)

	out, err := c.inner.Predict(ctx, X)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, out, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("prediction cache write failed")
	}
	return out, nil
}

func (c *Cached) observe(hit bool) {
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}

// fingerprint hashes a label and the exact bit patterns of the matrices.
func fingerprint(label string, mats ...[][]float64) string {
	h := sha256.New()
	h.Write([]byte(label))
	var buf [8]byte
	for _, m := range mats {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(m)))
		h.Write(buf[:])
		for _, row := range m {
			binary.LittleEndian.PutUint64(buf[:], uint64(len(row)))
			h.Write(buf[:])
			for _, v := range row {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
				h.Write(buf[:])
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
