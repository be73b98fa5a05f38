package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// minQueueReadTimeout outlasts the worker's BRPOP wait so a blocking pop is
// never cut off by the client's own read deadline.
const minQueueReadTimeout = 10 * time.Second

// RedisClients keeps blocking queue reads off the connection used for pub/sub.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	queue, err := pingedClient(ctx, queueOptions(opt), "queue")
	if err != nil {
		return nil, err
	}
	pubsub, err := pingedClient(ctx, pubSubOptions(opt), "pubsub")
	if err != nil {
		queue.Close()
		return nil, err
	}
	return &RedisClients{Queue: queue, PubSub: pubsub}, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}

func pingedClient(ctx context.Context, opt *redis.Options, role string) (*redis.Client, error) {
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis (%s): %w", role, err)
	}
	return c, nil
}

func queueOptions(base *redis.Options) *redis.Options {
	opt := *base
	opt.ClientName = "noirvision-queue"
	// A negative timeout disables deadlines entirely and is kept.
	if opt.ReadTimeout >= 0 && opt.ReadTimeout < minQueueReadTimeout {
		opt.ReadTimeout = minQueueReadTimeout
	}
	return &opt
}

func pubSubOptions(base *redis.Options) *redis.Options {
	opt := *base
	opt.ClientName = "noirvision-pubsub"
	return &opt
}
