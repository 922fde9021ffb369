// Package redis caches candle series and publishes advice and cycle
// reports to Redis (go-redis v8). Every call goes through a circuit
// breaker so a Redis outage degrades to uncached operation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// newBreaker returns a breaker that treats cache misses as success.
func newBreaker(name string) *CircuitBreaker {
	cb := NewCircuitBreaker(5, 10*time.Second)
	cb.Ignore = func(err error) bool { return errors.Is(err, goredis.Nil) }
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] %s circuit %s -> %s", name, from, to)
	}
	return cb
}
