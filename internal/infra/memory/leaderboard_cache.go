package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"competition-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// LeaderboardCache keeps built leaderboards with a TTL. Every invalidation bumps a
// per-competition generation so a build racing with a write never overwrites newer data.
type LeaderboardCache struct {
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu          sync.Mutex
	generations map[string]uint64
	cache       map[string]cachedLeaderboard
}

type cachedLeaderboard struct {
	generation  uint64
	leaderboard domain.Leaderboard
	expiresAt   time.Time
}

func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		ttl:         ttl,
		clock:       time.Now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		generations: make(map[string]uint64),
		cache:       make(map[string]cachedLeaderboard),
	}
}

func (c *LeaderboardCache) Load(ctx context.Context, competitionID string, build func(context.Context) (domain.Leaderboard, error)) (domain.Leaderboard, error) {
	generation, lb, ok := c.lookup(competitionID)
	if ok {
		return lb, nil
	}

	key := competitionID + "#" + strconv.FormatUint(generation, 10)
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if _, lb, ok := c.lookup(competitionID); ok {
			return lb, nil
		}
		lb, err := build(ctx)
		if err != nil {
			return domain.Leaderboard{}, err
		}

		c.mu.Lock()
		if c.generations[competitionID] == generation && c.ttl > 0 {
			c.cache[competitionID] = cachedLeaderboard{
				generation:  generation,
				leaderboard: lb,
				expiresAt:   c.clock().Add(c.ttlWithJitter()),
			}
		}
		c.mu.Unlock()
		return lb, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

func (c *LeaderboardCache) Invalidate(_ context.Context, competitionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[competitionID]++
	delete(c.cache, competitionID)
}

func (c *LeaderboardCache) lookup(competitionID string) (uint64, domain.Leaderboard, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	generation := c.generations[competitionID]
	entry, ok := c.cache[competitionID]
	if ok && entry.generation == generation && entry.expiresAt.After(c.clock()) {
		return generation, entry.leaderboard, true
	}
	return generation, domain.Leaderboard{}, false
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
