package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/internal/entity"
	"github.com/xenn00/crew-chat/internal/queue"
)

// StartDLQWorker moves buried jobs from the redis DLQ list into the dead_letters table.
func (wp *WorkerPool) StartDLQWorker(ctx context.Context) {
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()

		log.Info().Msg("DLQ worker started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("DLQ worker stopping")
				return
			default:
				result, err := wp.Redis.BLPop(ctx, wp.DLQConfig.PopTimeout, queue.DeadLetterKey).Result()
				if err == redis.Nil {
					continue
				} else if err != nil {
					if ctx.Err() == nil {
						log.Error().Err(err).Msg("DLQWorker pop failed")
						sleepCtx(ctx, time.Second)
					}
					continue
				}

				payload := result[1]
				if err := wp.persistDeadLetter(ctx, []byte(payload)); err != nil {
					log.Error().Err(err).Msg("Failed to persist DLQ job")

					// fallback: put back to Redis DLQ
					wp.Redis.RPush(context.Background(), queue.DeadLetterKey, payload)
					sleepCtx(ctx, time.Second)
				}
			}
		}
	}()
}

func (wp *WorkerPool) persistDeadLetter(ctx context.Context, payload []byte) error {
	job, err := queue.Unmarshal(payload)
	if err != nil {
		log.Warn().Err(err).Msg("DLQWorker invalid job payload")
		return nil
	}

	log.Error().
		Str("job_id", job.ID).
		Str("type", job.Type).
		Str("error", job.ErrorMsg).
		Msg("DLQ Job detected")

	if wp.DB == nil {
		return nil
	}

	now := time.Now().UTC()
	row := entity.DeadLetter{
		JobID:              job.ID,
		Type:               job.Type,
		Payload:            payload,
		Status:             entity.DeadLetterPending,
		OriginalRetryCount: job.Retry,
		ErrorMsg:           job.ErrorMsg,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpireAt:           now.Add(wp.DLQConfig.TTL),
	}
	if err := wp.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}

	log.Info().Str("job_id", job.ID).Msg("DLQ job persisted")
	return nil
}

func (wp *WorkerPool) GetDLQStats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)
	if wp.DB == nil {
		return stats, nil
	}

	var rows []struct {
		Status string
		Count  int64
	}
	err := wp.DB.WithContext(ctx).
		Model(&entity.DeadLetter{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
