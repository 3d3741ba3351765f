package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/internal/queue"
	"github.com/xenn00/crew-chat/internal/realtime"
	worker_handler "github.com/xenn00/crew-chat/internal/worker/worker-handler"
	"gorm.io/gorm"
)

type DLQConfig struct {
	RetryInterval time.Duration
	BackoffFactor float64
	MaxRetryCount int
	BatchSize     int
	PopTimeout    time.Duration
	TTL           time.Duration
}

func DefaultDLQConfig() DLQConfig {
	return DLQConfig{
		RetryInterval: time.Minute,
		BackoffFactor: 2,
		MaxRetryCount: 5,
		BatchSize:     50,
		PopTimeout:    5 * time.Second,
		TTL:           7 * 24 * time.Hour,
	}
}

type WorkerPool struct {
	Redis        *redis.Client
	DB           *gorm.DB
	WorkerNum    int
	JobChannel   chan string
	PollInterval time.Duration
	BaseBackoff  time.Duration
	DLQConfig    DLQConfig
	handler      *worker_handler.WorkerHandler
	wg           sync.WaitGroup
}

func NewWorkerPool(redis *redis.Client, db *gorm.DB, workerNum int, publisher realtime.Publisher) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	return &WorkerPool{
		Redis:        redis,
		DB:           db,
		WorkerNum:    workerNum,
		JobChannel:   make(chan string, 100), // Buffered channel to hold jobs
		PollInterval: time.Second,
		BaseBackoff:  time.Second,
		DLQConfig:    DefaultDLQConfig(),
		handler:      worker_handler.NewWorkerHandler(publisher),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	log.Info().Msgf("Starting worker pool with %d workers", wp.WorkerNum)

	for i := 0; i < wp.WorkerNum; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer close(wp.JobChannel)
		for {
			if ctx.Err() != nil {
				log.Info().Msg("Stopping worker pool")
				return
			}

			payload, ok := wp.popDue(ctx)
			if !ok {
				select {
				case <-ctx.Done():
				case <-time.After(wp.PollInterval):
				}
				continue
			}

			select {
			case wp.JobChannel <- payload:
			case <-ctx.Done():
				// hand it back so the job survives shutdown
				wp.requeueRaw(context.Background(), payload)
			}
		}
	}()
}

// popDue claims the earliest due job. ZREM decides ownership when several pools poll one queue.
func (wp *WorkerPool) popDue(ctx context.Context) (string, bool) {
	now := time.Now().UnixMilli()
	result, err := wp.Redis.ZRangeByScore(ctx, queue.PriorityQueueKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now),
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Worker: failed to pop job")
		}
		return "", false
	}
	if len(result) == 0 {
		return "", false
	}

	removed, err := wp.Redis.ZRem(ctx, queue.PriorityQueueKey, result[0]).Result()
	if err != nil || removed == 0 {
		return "", false
	}
	return result[0], true
}

func (wp *WorkerPool) requeueRaw(ctx context.Context, payload string) {
	job, err := queue.Unmarshal([]byte(payload))
	if err != nil {
		return
	}
	wp.Redis.ZAdd(ctx, queue.PriorityQueueKey, redis.Z{Score: job.Score(), Member: payload})
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log.Debug().Msgf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msgf("Worker %d stopping", id)
			return
		case payload, ok := <-wp.JobChannel:
			if !ok {
				return
			}

			job, err := queue.Unmarshal([]byte(payload))
			if err != nil {
				log.Warn().Err(err).Msgf("Worker %d: Failed to unmarshal job payload", id)
				continue
			}
			if err := wp.HandleJob(ctx, job); err != nil {
				wp.retryOrBury(ctx, job, err)
			}
		}
	}
}

func (wp *WorkerPool) retryOrBury(ctx context.Context, job queue.Job, cause error) {
	job.Retry++
	job.ErrorMsg = cause.Error()

	now := time.Now()
	if job.Retry >= job.MaxRetry || job.Expired(now) {
		log.Error().Str("job_id", job.ID).Msg("Job moved to DLQ")
		dlqBytes, _ := queue.Marshal(job)
		if err := wp.Redis.RPush(ctx, queue.DeadLetterKey, dlqBytes).Err(); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("failed to push job to DLQ")
		}

		// Dead Letter Alert
		sendDLA(job)
		return
	}

	// retry with exponential backoff
	delay := wp.BaseBackoff * time.Duration(1<<job.Retry)
	job.RunAt = now.Add(delay).UnixMilli()

	jobBytes, _ := queue.Marshal(job)
	wp.Redis.ZAdd(ctx, queue.PriorityQueueKey, redis.Z{
		Score:  job.Score(),
		Member: jobBytes,
	})
	log.Warn().Str("job_id", job.ID).Msgf("Retrying in %v (%d/%d)", delay, job.Retry, job.MaxRetry)
}

var dlaCache = make(map[string]time.Time)
var dlaMu sync.Mutex

func sendDLA(job queue.Job) {
	dlaMu.Lock()
	defer dlaMu.Unlock()

	now := time.Now()
	lastAlert, ok := dlaCache[job.Type]
	if ok && now.Sub(lastAlert) < 10*time.Minute {
		return
	}

	log.Error().Str("job_id", job.ID).Str("type", job.Type).Str("error", job.ErrorMsg).Msg("Dead Letter Alert: Job failed permanently")

	dlaCache[job.Type] = now
}

func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
	log.Info().Msg("All workers have stopped")
}
