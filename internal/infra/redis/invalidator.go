package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"exam-grading-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Invalidator drops every cached leaderboard tagged with a scope and announces the scope on the
// invalidation channel so other instances can refresh their subscribers.
type Invalidator struct {
	client *redis.Client
}

func NewInvalidator(client *redis.Client) *Invalidator {
	return &Invalidator{client: client}
}

// Invalidate bumps the scope version before reading the tag set. A concurrent Set either sees
// the new version and skips, or finished earlier and is in the tag set deleted below.
func (i *Invalidator) Invalidate(ctx context.Context, scope domain.CacheScope) error {
	if err := i.client.Incr(ctx, versionKey(scope)).Err(); err != nil {
		return fmt.Errorf("bump version %s: %w", scope, err)
	}
	tag := tagKey(scope)
	keys, err := i.client.SMembers(ctx, tag).Result()
	if err != nil {
		return fmt.Errorf("read tag %s: %w", tag, err)
	}
	msg, err := json.Marshal(scope)
	if err != nil {
		return fmt.Errorf("encode scope: %w", err)
	}

	pipe := i.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, tag)
	pipe.Publish(ctx, invalidationChannel, msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate %s: %w", scope, err)
	}
	return nil
}
