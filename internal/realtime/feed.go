package realtime

import "context"

type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusClosed       Status = "CLOSED"
)

type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// Subscription delivers change events for one group. Both channels are closed once the
// subscription ends.
type Subscription interface {
	Events() <-chan ChangeEvent
	Status() <-chan Status
	Close() error
}

type Feed interface {
	// Subscribe never fails on transport problems; those are reported as
	// StatusChannelError on the returned subscription.
	Subscribe(ctx context.Context, groupID, tag string) (Subscription, error)
}
