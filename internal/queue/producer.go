package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xenn00/crew-chat/internal/realtime"
)

type Producer interface {
	Enqueue(ctx context.Context, job Job) error
}

type RedisProducer struct {
	Redis *redis.Client
}

func NewProducer(redis *redis.Client) Producer {
	return &RedisProducer{Redis: redis}
}

func (p *RedisProducer) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now()
	if job.CreatedAt == 0 {
		job.CreatedAt = now.UnixMilli()
	}
	if job.RunAt == 0 {
		job.RunAt = now.UnixMilli()
	}

	jobBytes, err := Marshal(job)
	if err != nil {
		return err
	}

	return p.Redis.ZAdd(ctx, PriorityQueueKey, redis.Z{
		Score:  job.Score(),
		Member: jobBytes,
	}).Err()
}

// QueuedPublisher hands change events to the worker pool instead of publishing inline.
type QueuedPublisher struct {
	Producer Producer
	MaxRetry int
	TTL      time.Duration
}

func NewQueuedPublisher(p Producer) *QueuedPublisher {
	return &QueuedPublisher{Producer: p, MaxRetry: 3, TTL: 5 * time.Minute}
}

func (q *QueuedPublisher) Publish(ctx context.Context, event realtime.ChangeEvent) error {
	payload, err := realtime.Encode(event)
	if err != nil {
		return err
	}

	now := time.Now()
	return q.Producer.Enqueue(ctx, Job{
		Type:     JobPublishChange,
		Payload:  payload,
		Priority: 1,
		MaxRetry: q.MaxRetry,
		ExpireAt: now.Add(q.TTL).UnixMilli(),
	})
}
