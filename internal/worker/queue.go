package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const analysisQueueName = "queue:video-analysis"

// ErrQueueClosed is returned by Dequeue once a queue will deliver no more jobs.
var ErrQueueClosed = errors.New("queue closed")

// errNoJob means the dequeue wait elapsed with nothing to do.
var errNoJob = errors.New("no job available")

// Queue carries job ids from the submit path to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context) (string, error)
}

// RedisQueue is a Redis list shared by every server process.
type RedisQueue struct {
	client  *redis.Client
	name    string
	timeout time.Duration
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, name: analysisQueueName, timeout: 5 * time.Second}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.name, jobID).Err(); err != nil {
		return fmt.Errorf("push job %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks for at most the queue timeout so callers can observe shutdown.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	result, err := q.client.BRPop(ctx, q.timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errNoJob
		}
		if errors.Is(err, redis.ErrClosed) {
			return "", ErrQueueClosed
		}
		return "", err
	}
	if len(result) < 2 {
		return "", errNoJob
	}
	return result[1], nil
}

// ChannelQueue keeps jobs in process. Pending jobs are lost on restart.
type ChannelQueue struct {
	jobs chan string
	done chan struct{}
}

func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 100
	}
	return &ChannelQueue{jobs: make(chan string, size), done: make(chan struct{})}
}

func (q *ChannelQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- jobID:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue full (%d pending)", cap(q.jobs))
	}
}

func (q *ChannelQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.jobs:
		return id, nil
	case <-q.done:
		return "", ErrQueueClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops delivery. Jobs still buffered are dropped.
func (q *ChannelQueue) Close() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}
