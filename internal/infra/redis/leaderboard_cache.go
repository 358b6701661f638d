package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"competition-service/internal/domain"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// LeaderboardCache stores built leaderboards in Redis so several instances share them.
// Snapshots are stored as: SET leaderboard:{competitionID}:{generation} {json}
// The generation lives in:  leaderboard:{competitionID}:gen (INCR on every write)
// A build that raced with a write lands under an old generation and is never read.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
	// competitions whose last invalidation failed; their snapshots are bypassed
	stale map[string]struct{}
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stale:  make(map[string]struct{}),
	}
}

func (c *LeaderboardCache) Load(ctx context.Context, competitionID string, build func(context.Context) (domain.Leaderboard, error)) (domain.Leaderboard, error) {
	if c.isStale(competitionID) {
		if err := c.bump(ctx, competitionID); err != nil {
			return build(ctx)
		}
		c.setStale(competitionID, false)
	}
	generation, err := c.generation(ctx, competitionID)
	if err != nil {
		log.Warnf("leaderboard cache unavailable, building directly: %v", err)
		return build(ctx)
	}
	if lb, ok := c.get(ctx, competitionID, generation); ok {
		return lb, nil
	}

	key := competitionID + "#" + strconv.FormatInt(generation, 10)
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another instance filled it.
		if lb, ok := c.get(ctx, competitionID, generation); ok {
			return lb, nil
		}
		lb, err := build(ctx)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			payload, err := json.Marshal(lb)
			if err == nil {
				err = c.client.Set(ctx, c.snapshotKey(competitionID, generation), payload, ttl).Err()
			}
			if err != nil {
				log.Warnf("store leaderboard %s: %v", competitionID, err)
			}
		}
		return lb, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

// Invalidate bumps the generation. When Redis rejects the bump, this instance bypasses
// the cached snapshot until a later bump succeeds; other instances may serve the old
// snapshot until it expires.
func (c *LeaderboardCache) Invalidate(ctx context.Context, competitionID string) {
	if err := c.bump(ctx, competitionID); err != nil {
		log.Errorf("invalidate leaderboard %s: %v", competitionID, err)
		c.setStale(competitionID, true)
		return
	}
	c.setStale(competitionID, false)
}

func (c *LeaderboardCache) bump(ctx context.Context, competitionID string) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, c.generationKey(competitionID))
	if c.ttl > 0 {
		// the counter only has to outlive the snapshots it guards
		pipe.Expire(ctx, c.generationKey(competitionID), 24*time.Hour+c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *LeaderboardCache) isStale(competitionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.stale[competitionID]
	return ok
}

func (c *LeaderboardCache) setStale(competitionID string, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stale {
		c.stale[competitionID] = struct{}{}
	} else {
		delete(c.stale, competitionID)
	}
}

func (c *LeaderboardCache) generation(ctx context.Context, competitionID string) (int64, error) {
	generation, err := c.client.Get(ctx, c.generationKey(competitionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return generation, err
}

func (c *LeaderboardCache) get(ctx context.Context, competitionID string, generation int64) (domain.Leaderboard, bool) {
	raw, err := c.client.Get(ctx, c.snapshotKey(competitionID, generation)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("read leaderboard %s: %v", competitionID, err)
		}
		return domain.Leaderboard{}, false
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		log.Warnf("decode leaderboard %s: %v", competitionID, err)
		return domain.Leaderboard{}, false
	}
	return lb, true
}

func (c *LeaderboardCache) generationKey(competitionID string) string {
	return "leaderboard:" + competitionID + ":gen"
}

func (c *LeaderboardCache) snapshotKey(competitionID string, generation int64) string {
	return "leaderboard:" + competitionID + ":" + strconv.FormatInt(generation, 10)
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
