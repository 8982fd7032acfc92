package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKey = "convosense:presence"

// PresenceTracker stores heartbeats in a sorted set scored by unix millis.
type PresenceTracker struct {
	client redis.UniversalClient
	ttl    time.Duration
	clock  func() time.Time
}

func NewPresenceTracker(client redis.UniversalClient, ttl time.Duration) *PresenceTracker {
	return &PresenceTracker{client: client, ttl: ttl, clock: time.Now}
}

func (p *PresenceTracker) Touch(ctx context.Context, userID string) error {
	score := float64(p.clock().UnixMilli())
	if err := p.client.ZAdd(ctx, presenceKey, redis.Z{Score: score, Member: userID}).Err(); err != nil {
		return fmt.Errorf("presence touch: %w", err)
	}
	return nil
}

func (p *PresenceTracker) Remove(ctx context.Context, userID string) error {
	if err := p.client.ZRem(ctx, presenceKey, userID).Err(); err != nil {
		return fmt.Errorf("presence remove: %w", err)
	}
	return nil
}

// Online trims expired members and returns the rest.
func (p *PresenceTracker) Online(ctx context.Context) (map[string]time.Time, error) {
	cutoff := p.clock().Add(-p.ttl).UnixMilli()
	upper := strconv.FormatInt(cutoff, 10)

	pipe := p.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, presenceKey, "-inf", upper)
	live := pipe.ZRangeWithScores(ctx, presenceKey, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("presence online: %w", err)
	}

	out := make(map[string]time.Time, len(live.Val()))
	for _, z := range live.Val() {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out[id] = time.UnixMilli(int64(z.Score))
	}
	return out, nil
}
