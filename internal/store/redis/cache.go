package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-advisorv1/internal/model"
)

// CachedProvider serves candle series from Redis when fresh and falls
// back to the wrapped provider otherwise. Redis errors never fail a fetch.
type CachedProvider struct {
	client  goredis.Cmdable
	next    model.CandleProvider
	ttl     time.Duration
	breaker *CircuitBreaker
}

// NewCachedProvider wraps next with a cache of the given TTL.
func NewCachedProvider(client goredis.Cmdable, next model.CandleProvider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{client: client, next: next, ttl: ttl, breaker: newBreaker("candle cache")}
}

func cacheKey(ticker, period, interval string) string {
	return "candles:" + ticker + ":" + period + ":" + interval
}

func (c *CachedProvider) Candles(ctx context.Context, ticker, period, interval string) (model.Series, error) {
	key := cacheKey(ticker, period, interval)

	var raw []byte
	err := c.breaker.Execute(func() error {
		var err error
		raw, err = c.client.Get(ctx, key).Bytes()
		return err
	})
	if err == nil {
		var s model.Series
		if jerr := json.Unmarshal(raw, &s); jerr == nil && s.Len() > 0 {
			return s, nil
		}
		log.Printf("[redis] discarding corrupt cache entry %s", key)
	} else if !errors.Is(err, goredis.Nil) && !errors.Is(err, ErrCircuitOpen) {
		log.Printf("[redis] cache read %s: %v", key, err)
	}

	s, err := c.next.Candles(ctx, ticker, period, interval)
	if err != nil {
		return s, err
	}
	if payload, jerr := json.Marshal(s); jerr == nil {
		werr := c.breaker.Execute(func() error {
			return c.client.Set(ctx, key, payload, c.ttl).Err()
		})
		if werr != nil && !errors.Is(werr, ErrCircuitOpen) {
			log.Printf("[redis] cache write %s: %v", key, werr)
		}
	}
	return s, nil
}

// Breaker exposes the breaker state for health reporting.
func (c *CachedProvider) Breaker() *CircuitBreaker { return c.breaker }
