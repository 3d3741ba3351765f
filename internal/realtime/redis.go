package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type RedisPublisher struct {
	Redis *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{Redis: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, event ChangeEvent) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	return p.Redis.Publish(ctx, ChannelName(event.GroupID), payload).Err()
}

type RedisFeed struct {
	Redis *redis.Client
	// Buffer is the per-subscription event buffer.
	Buffer int
}

func NewRedisFeed(rdb *redis.Client) *RedisFeed {
	return &RedisFeed{Redis: rdb, Buffer: 256}
}

func (f *RedisFeed) Subscribe(ctx context.Context, groupID, tag string) (Subscription, error) {
	if groupID == "" {
		return nil, errors.New("realtime: group id is required")
	}

	sub := &redisSubscription{
		tag:    tag,
		ps:     f.Redis.Subscribe(ctx, ChannelName(groupID)),
		events: make(chan ChangeEvent, f.Buffer),
		status: make(chan Status, 4),
		done:   make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.run(ctx)
	return sub, nil
}

type redisSubscription struct {
	tag    string
	ps     *redis.PubSub
	events chan ChangeEvent
	status chan Status
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (s *redisSubscription) Events() <-chan ChangeEvent { return s.events }
func (s *redisSubscription) Status() <-chan Status      { return s.status }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		s.wg.Wait()
	})
	return err
}

func (s *redisSubscription) emit(st Status) {
	select {
	case s.status <- st:
	case <-s.done:
	}
}

func (s *redisSubscription) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)
	defer close(s.status)

	if _, err := s.ps.Receive(ctx); err != nil {
		log.Warn().Err(err).Str("tag", s.tag).Msg("realtime: subscribe failed")
		s.emit(StatusChannelError)
		return
	}
	s.emit(StatusSubscribed)

	ch := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				s.emit(StatusClosed)
				return
			}
			event, err := Decode([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Str("tag", s.tag).Msg("realtime: dropping malformed event")
				continue
			}
			select {
			case s.events <- event:
			case <-s.done:
				return
			}
		}
	}
}
