package memory

import (
	"context"
	"sync"
	"time"

	"exam-grading-service/internal/domain"
)

// LeaderboardCache keeps rendered leaderboards for ttl and drops them when any of their tags is
// invalidated. It implements both app.LeaderboardCache and app.CacheInvalidator. A non-positive
// ttl disables caching.
type LeaderboardCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.Mutex
	entries  map[string]cachedLeaderboard
	tags     map[string]map[string]struct{}
	versions map[string]int64
}

type cachedLeaderboard struct {
	lb        domain.Leaderboard
	expiresAt time.Time
}

func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		ttl:      ttl,
		clock:    time.Now,
		entries:  make(map[string]cachedLeaderboard),
		tags:     make(map[string]map[string]struct{}),
		versions: make(map[string]int64),
	}
}

func (c *LeaderboardCache) Get(_ context.Context, examID string) (domain.Leaderboard, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[examID]
	if !ok {
		return domain.Leaderboard{}, false, nil
	}
	if !entry.expiresAt.After(c.clock()) {
		delete(c.entries, examID)
		return domain.Leaderboard{}, false, nil
	}
	return entry.lb, true, nil
}

// Version sums the invalidation counters of tags. Counters only grow.
func (c *LeaderboardCache) Version(_ context.Context, tags []domain.CacheScope) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versionLocked(tags), nil
}

// Set stores lb unless one of its tags was invalidated since version was read.
func (c *LeaderboardCache) Set(_ context.Context, lb domain.Leaderboard, tags []domain.CacheScope, version int64) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versionLocked(tags) != version {
		return nil
	}
	c.entries[lb.ExamID] = cachedLeaderboard{lb: lb, expiresAt: c.clock().Add(c.ttl)}
	for _, tag := range tags {
		members, ok := c.tags[tag.String()]
		if !ok {
			members = make(map[string]struct{})
			c.tags[tag.String()] = members
		}
		members[lb.ExamID] = struct{}{}
	}
	return nil
}

func (c *LeaderboardCache) Invalidate(_ context.Context, scope domain.CacheScope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tag := scope.String()
	c.versions[tag]++
	for examID := range c.tags[tag] {
		delete(c.entries, examID)
	}
	delete(c.tags, tag)
	return nil
}

func (c *LeaderboardCache) versionLocked(tags []domain.CacheScope) int64 {
	var v int64
	for _, tag := range tags {
		v += c.versions[tag.String()]
	}
	return v
}
