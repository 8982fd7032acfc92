package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/convosense/backend/pkg/logger"
)

const feedChannel = "convosense:feed"

// Broadcaster delivers a fresh snapshot to local subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, conversationID string) error
}

// FeedRelay publishes conversation change signals on a pub/sub channel
// and replays every received signal into the local hub.
type FeedRelay struct {
	client redis.UniversalClient
	hub    Broadcaster
	log    *logger.Logger
}

func NewFeedRelay(client redis.UniversalClient, hub Broadcaster, log *logger.Logger) *FeedRelay {
	if log == nil {
		log = logger.Discard()
	}
	return &FeedRelay{client: client, hub: hub, log: log}
}

// Notify publishes conversationID to every instance.
func (r *FeedRelay) Notify(ctx context.Context, conversationID string) error {
	if err := r.client.Publish(ctx, feedChannel, conversationID).Err(); err != nil {
		return fmt.Errorf("feed publish: %w", err)
	}
	return nil
}

// Run consumes the channel until ctx is done. ready, if non-nil, is closed
// once the subscription is confirmed.
func (r *FeedRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, feedChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("feed subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.hub.Broadcast(ctx, msg.Payload); err != nil {
				r.log.Warn("feed broadcast failed", "conversation", msg.Payload, "error", err.Error())
			}
		}
	}
}
