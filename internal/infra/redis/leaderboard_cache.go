package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"exam-grading-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

var errStaleLeaderboard = errors.New("leaderboard invalidated while rendering")

// LeaderboardCache stores rendered leaderboards as JSON and records each key in the tag set of
// every scope that should invalidate it:
//
//	SET  leaderboard:exam:{examID}   {json} EX ttl
//	SADD leaderboard:tag:{scope}     leaderboard:exam:{examID}
//	INCR leaderboard:version:{scope} (by the Invalidator)
//
// A non-positive ttl disables caching.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Get(ctx context.Context, examID string) (domain.Leaderboard, bool, error) {
	data, err := c.client.Get(ctx, leaderboardKey(examID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Leaderboard{}, false, nil
	}
	if err != nil {
		return domain.Leaderboard{}, false, fmt.Errorf("get leaderboard: %w", err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(data, &lb); err != nil {
		return domain.Leaderboard{}, false, fmt.Errorf("decode leaderboard: %w", err)
	}
	return lb, true, nil
}

func (c *LeaderboardCache) Version(ctx context.Context, tags []domain.CacheScope) (int64, error) {
	return sumVersions(ctx, c.client, versionKeys(tags))
}

// Set writes lb only while the version keys of its tags still add up to version. The keys are
// watched, so an invalidation landing between the check and EXEC aborts the write.
func (c *LeaderboardCache) Set(ctx context.Context, lb domain.Leaderboard, tags []domain.CacheScope, version int64) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	key := leaderboardKey(lb.ExamID)
	watched := versionKeys(tags)

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := sumVersions(ctx, tx, watched)
		if err != nil {
			return err
		}
		if current != version {
			return errStaleLeaderboard
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			for _, tag := range tags {
				pipe.SAdd(ctx, tagKey(tag), key)
				pipe.Expire(ctx, tagKey(tag), c.ttl)
			}
			return nil
		})
		return err
	}, watched...)
	switch {
	case errors.Is(err, errStaleLeaderboard), errors.Is(err, redis.TxFailedErr):
		return nil
	case err != nil:
		return fmt.Errorf("set leaderboard: %w", err)
	}
	return nil
}

type multiGetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func sumVersions(ctx context.Context, client multiGetter, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("read leaderboard versions: %w", err)
	}
	var sum int64
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", keys[i], err)
		}
		sum += n
	}
	return sum, nil
}

func versionKeys(tags []domain.CacheScope) []string {
	keys := make([]string, 0, len(tags))
	for _, tag := range tags {
		keys = append(keys, versionKey(tag))
	}
	return keys
}
