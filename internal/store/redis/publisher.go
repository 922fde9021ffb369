package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	adviceStream    = "advice:stream"
	adviceStreamLen = 5000
	cycleLatestKey  = "cycle:latest"
	cycleChannel    = "pub:cycle"
	latestTTL       = 24 * time.Hour
)

// Publisher writes per-ticker advice and cycle reports: the latest value
// under a key, a capped stream for history, and a pub/sub message for live
// subscribers.
type Publisher struct {
	client  goredis.Cmdable
	breaker *CircuitBreaker
}

// NewPublisher creates a Publisher on client.
func NewPublisher(client goredis.Cmdable) *Publisher {
	return &Publisher{client: client, breaker: newBreaker("publisher")}
}

func adviceKey(ticker string) string     { return "advice:latest:" + ticker }
func adviceChannel(ticker string) string { return "pub:advice:" + ticker }

// PublishAdvice stores and broadcasts one ticker's advice in a single
// pipeline round trip.
func (p *Publisher) PublishAdvice(ctx context.Context, ticker string, advice any) error {
	payload, err := json.Marshal(advice)
	if err != nil {
		return fmt.Errorf("redis marshal advice %s: %w", ticker, err)
	}
	data := string(payload)
	return p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, adviceKey(ticker), data, latestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: adviceStream,
			MaxLen: adviceStreamLen,
			Approx: true,
			Values: map[string]interface{}{"ticker": ticker, "data": data},
		})
		pipe.Publish(ctx, adviceChannel(ticker), data)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish advice %s: %w", ticker, err)
		}
		return nil
	})
}

// PublishCycle stores and broadcasts a whole cycle report.
func (p *Publisher) PublishCycle(ctx context.Context, report any) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis marshal cycle: %w", err)
	}
	data := string(payload)
	return p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, cycleLatestKey, data, latestTTL)
		pipe.Publish(ctx, cycleChannel, data)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish cycle: %w", err)
		}
		return nil
	})
}

// LatestAdvice returns the raw JSON of the last advice published for
// ticker, or goredis.Nil if none is stored.
func (p *Publisher) LatestAdvice(ctx context.Context, ticker string) ([]byte, error) {
	var raw []byte
	err := p.breaker.Execute(func() error {
		var err error
		raw, err = p.client.Get(ctx, adviceKey(ticker)).Bytes()
		return err
	})
	return raw, err
}

// AdviceHistory returns up to limit advice payloads from the stream, newest
// first. An empty ticker matches every ticker.
func (p *Publisher) AdviceHistory(ctx context.Context, ticker string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var msgs []goredis.XMessage
	err := p.breaker.Execute(func() error {
		var err error
		// Over-read when filtering so a busy stream still yields limit matches.
		n := int64(limit)
		if ticker != "" {
			n *= 10
		}
		msgs, err = p.client.XRevRangeN(ctx, adviceStream, "+", "-", n).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis advice history: %w", err)
	}
	out := make([]json.RawMessage, 0, limit)
	for _, m := range msgs {
		if ticker != "" && m.Values["ticker"] != ticker {
			continue
		}
		data, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		out = append(out, json.RawMessage(data))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
