package worker_handler

import (
	"context"
	"fmt"

	"github.com/xenn00/crew-chat/internal/realtime"
)

func (wh *WorkerHandler) HandlePublishChange(ctx context.Context, raw []byte) error {
	event, err := realtime.Decode(raw)
	if err != nil {
		return fmt.Errorf("invalid change payload: %w", err)
	}

	if err := wh.Publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s to group %s: %w", event.Table, event.GroupID, err)
	}
	return nil
}
