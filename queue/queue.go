// Package queue moves provisioning jobs from submission to the worker
// through a Redis list, and sweeps stalled jobs back onto it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultKey is the Redis list the jobs travel on.
const DefaultKey = "oneclick:jobs"

// DefaultTimeout is the per-command timeout.
const DefaultTimeout = 5 * time.Second

// Payload is the wire envelope for one queued job. The record itself
// stays in the store; only the identity crosses the queue.
type Payload struct {
	JobID      string    `msgpack:"job_id"`
	Attempt    int       `msgpack:"attempt"`
	EnqueuedAt time.Time `msgpack:"enqueued_at"`
}

// Config configures the queue.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Key is the list key (default: oneclick:jobs).
	Key string
	// Timeout is the per-command timeout (default 5s).
	Timeout time.Duration
}

// Queue is a Redis-list job queue. Enqueue is LPUSH, Dequeue is BRPOP,
// so delivery is FIFO.
type Queue struct {
	config Config
	client *goredis.Client
}

// New creates a queue from the given config.
func New(cfg Config) (*Queue, error) {
	if cfg.URL == "" {
		return nil, errors.New("queue requires a Redis URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("queue: invalid URL: %w", err)
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Queue{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Enqueue pushes one job identity onto the queue.
func (q *Queue) Enqueue(ctx context.Context, jobID string, attempt int) error {
	body, err := msgpack.Marshal(&Payload{
		JobID:      jobID,
		Attempt:    attempt,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("queue: encode payload: %w", err)
	}

	pushCtx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()
	if err := q.client.LPush(pushCtx, q.config.Key, body).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks up to wait for the next job. Returns nil with no
// error when the wait elapses empty.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Payload, error) {
	res, err := q.client.BRPop(ctx, wait, q.config.Key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("queue: unexpected BRPOP reply length %d", len(res))
	}

	var payload Payload
	if err := msgpack.Unmarshal([]byte(res[1]), &payload); err != nil {
		return nil, fmt.Errorf("queue: decode payload: %w", err)
	}
	return &payload, nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.config.Key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: len: %w", err)
	}
	return n, nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
