package worker

import (
	"context"
	"fmt"

	"github.com/xenn00/crew-chat/internal/queue"
)

func (wp *WorkerPool) HandleJob(ctx context.Context, job queue.Job) error {
	switch job.Type {
	case queue.JobPublishChange:
		return wp.handler.HandlePublishChange(ctx, job.Payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}
