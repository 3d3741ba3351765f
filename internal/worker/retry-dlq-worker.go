package worker

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/internal/entity"
	"github.com/xenn00/crew-chat/internal/queue"
)

func (wp *WorkerPool) StartDLQRetryConsumer(ctx context.Context) {
	if wp.DB == nil {
		return
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()

		log.Info().Msg("DLQ retry consumer started")
		ticker := time.NewTicker(wp.DLQConfig.RetryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("DLQ retry consumer stopping")
				return
			case <-ticker.C:
				wp.processDLQJobs(ctx)
			}
		}
	}()
}

func (wp *WorkerPool) processDLQJobs(ctx context.Context) {
	now := time.Now().UTC()

	var deadLetters []entity.DeadLetter
	err := wp.DB.WithContext(ctx).
		Where("status IN ?", []entity.DeadLetterStatus{entity.DeadLetterPending, entity.DeadLetterFailed}).
		Where("retry_count < ?", wp.DLQConfig.MaxRetryCount).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Where("expire_at > ?", now).
		Order("created_at").
		Limit(wp.DLQConfig.BatchSize).
		Find(&deadLetters).Error
	if err != nil {
		log.Error().Err(err).Msg("Failed to query DLQ jobs")
		return
	}

	if len(deadLetters) == 0 {
		log.Debug().Msg("No DLQ jobs to process")
		return
	}

	log.Info().Int("count", len(deadLetters)).Msg("Processing DLQ jobs")

	for i := range deadLetters {
		wp.retryDLQJob(ctx, &deadLetters[i])
	}
}

func (wp *WorkerPool) retryDLQJob(ctx context.Context, dl *entity.DeadLetter) {
	if !wp.updateDeadLetter(ctx, dl.ID, map[string]any{"status": entity.DeadLetterProcessing}) {
		return
	}

	originalJob, err := queue.Unmarshal(dl.Payload)
	if err != nil {
		log.Error().Err(err).Str("job_id", dl.JobID).Msg("Failed to unmarshal job payload")
		wp.updateDeadLetter(ctx, dl.ID, map[string]any{
			"status":    entity.DeadLetterPermanentlyFailed,
			"error_msg": "invalid_payload: " + err.Error(),
			"failed_at": time.Now().UTC(),
		})
		return
	}

	// Reset retry count for fresh retry attempt
	originalJob.Retry = 0
	originalJob.ErrorMsg = ""

	if err := wp.HandleJob(ctx, originalJob); err != nil {
		wp.handleDLQRetryFailure(ctx, dl, err.Error())
		return
	}

	wp.updateDeadLetter(ctx, dl.ID, map[string]any{
		"status":       entity.DeadLetterCompleted,
		"completed_at": time.Now().UTC(),
	})
	log.Info().Str("job_id", dl.JobID).Str("type", dl.Type).Int("dlq_retry_count", dl.RetryCount).Msg("DLQ job successfully retried")
}

func (wp *WorkerPool) handleDLQRetryFailure(ctx context.Context, dl *entity.DeadLetter, errorMsg string) {
	newRetryCount := dl.RetryCount + 1

	if newRetryCount >= wp.DLQConfig.MaxRetryCount {
		wp.updateDeadLetter(ctx, dl.ID, map[string]any{
			"status":      entity.DeadLetterPermanentlyFailed,
			"retry_count": newRetryCount,
			"error_msg":   errorMsg,
			"failed_at":   time.Now().UTC(),
		})
		log.Error().Str("job_id", dl.JobID).Str("type", dl.Type).Int("dlq_retry_count", newRetryCount).Msg("DLQ job permanently failed after max retries")
		return
	}

	backoff := time.Duration(float64(wp.DLQConfig.RetryInterval) *
		math.Pow(wp.DLQConfig.BackoffFactor, float64(newRetryCount)))
	nextRetryAt := time.Now().UTC().Add(backoff)

	if !wp.updateDeadLetter(ctx, dl.ID, map[string]any{
		"status":        entity.DeadLetterFailed,
		"retry_count":   newRetryCount,
		"error_msg":     errorMsg,
		"next_retry_at": nextRetryAt,
	}) {
		return
	}

	log.Warn().
		Str("job_id", dl.JobID).
		Str("type", dl.Type).
		Int("dlq_retry_count", newRetryCount).
		Time("next_retry_at", nextRetryAt).
		Msg("DLQ job scheduled for retry")
}

func (wp *WorkerPool) updateDeadLetter(ctx context.Context, id uint, fields map[string]any) bool {
	fields["updated_at"] = time.Now().UTC()
	err := wp.DB.WithContext(ctx).Model(&entity.DeadLetter{}).Where("id = ?", id).Updates(fields).Error
	if err != nil {
		log.Error().Err(err).Uint("id", id).Msg("Failed to update DLQ job")
		return false
	}
	return true
}
