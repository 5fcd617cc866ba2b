package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const presenceKey = "presence:emitters"

// PresenceRegistry tracks which emitting actors are currently available.
// Each heartbeat writes the actor into a sorted set scored by its expiry;
// availability is the count of unexpired members, shared across processes.
type PresenceRegistry struct {
	client *goredis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewPresenceRegistry(client *goredis.Client, ttl time.Duration) (*PresenceRegistry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = 90 * time.Second
	}

	return &PresenceRegistry{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Heartbeat marks an actor available until the TTL elapses.
func (p *PresenceRegistry) Heartbeat(ctx context.Context, actorID string) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("presence registry is not initialized")
	}

	normalized := strings.TrimSpace(actorID)
	if normalized == "" {
		return fmt.Errorf("actor id is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	expiry := p.now().UTC().Add(p.ttl).UnixMilli()
	err := p.client.ZAdd(ctx, presenceKey, goredis.Z{
		Score:  float64(expiry),
		Member: normalized,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// AvailableCount returns how many emitting actors have an unexpired
// heartbeat, pruning expired members as it goes.
func (p *PresenceRegistry) AvailableCount(ctx context.Context) (int, error) {
	if p == nil || p.client == nil {
		return 0, fmt.Errorf("presence registry is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	nowMilli := p.now().UTC().UnixMilli()
	if err := p.client.ZRemRangeByScore(ctx, presenceKey, "-inf", strconv.FormatInt(nowMilli, 10)).Err(); err != nil {
		return 0, fmt.Errorf("failed to prune expired heartbeats: %w", err)
	}

	count, err := p.client.ZCard(ctx, presenceKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count available emitters: %w", err)
	}
	return int(count), nil
}
