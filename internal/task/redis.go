package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobintel/job-intel/internal/telemetry"
)

const (
	redisKeyPrefix   = "jobintel:queue:"
	redisPollTimeout = time.Second
)

// RedisBroker is a Broker on Redis lists, one list per priority queue, so
// multiple processes can share the work. BRPOP's multi-key form gives strict
// priority across the lists.
type RedisBroker struct {
	client    *redis.Client
	lowPaused atomic.Bool
}

// NewRedisBroker parses the URL, verifies connectivity, and returns a broker.
func NewRedisBroker(ctx context.Context, redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisBroker{client: client}, nil
}

// Enqueue implements Broker.
func (b *RedisBroker) Enqueue(ctx context.Context, item Item) error {
	if !validQueue(item.Queue) {
		return fmt.Errorf("unknown queue %q", item.Queue)
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal task item: %w", err)
	}
	key := redisKeyPrefix + item.Queue
	if err := b.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	if depth, err := b.client.LLen(ctx, key).Result(); err == nil {
		telemetry.SetQueueDepth(item.Queue, int(depth))
	}
	return nil
}

// Dequeue implements Broker. It polls with short BRPOP timeouts so a
// PauseLow call takes effect within one poll interval.
func (b *RedisBroker) Dequeue(ctx context.Context) (Item, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Item{}, err
		}
		keys := []string{redisKeyPrefix + QueueCritical, redisKeyPrefix + QueueDefault}
		if !b.lowPaused.Load() {
			keys = append(keys, redisKeyPrefix+QueueLow)
		}
		res, err := b.client.BRPop(ctx, redisPollTimeout, keys...).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return Item{}, fmt.Errorf("brpop: %w", err)
		}
		// res is [key, payload]
		if len(res) != 2 {
			continue
		}
		var item Item
		if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
			return Item{}, fmt.Errorf("unmarshal task item: %w", err)
		}
		return item, nil
	}
}

// Depths implements Broker.
func (b *RedisBroker) Depths(ctx context.Context) (map[string]int, error) {
	depths := make(map[string]int, 3)
	for _, queue := range []string{QueueCritical, QueueDefault, QueueLow} {
		depth, err := b.client.LLen(ctx, redisKeyPrefix+queue).Result()
		if err != nil {
			return nil, fmt.Errorf("llen %s: %w", queue, err)
		}
		depths[queue] = int(depth)
	}
	return depths, nil
}

// PauseLow implements Broker.
func (b *RedisBroker) PauseLow() { b.lowPaused.Store(true) }

// ResumeLow implements Broker.
func (b *RedisBroker) ResumeLow() { b.lowPaused.Store(false) }

// Close implements Broker.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
