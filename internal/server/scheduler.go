package server

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/clearscope-labs/clearscope/internal/search"
	"github.com/clearscope-labs/clearscope/internal/store"
)

const reindexLockKey = "search:reindex:lock"

// reindexUnlock deletes the lock only when this instance still holds
// it, so an instance that outlives the TTL cannot drop another
// holder's lock.
var reindexUnlock = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`)

// Scheduler periodically rebuilds the keyword index from the store.
// A redis SetNX lock keeps multiple instances from reindexing at once.
type Scheduler struct {
	Store  *store.Store
	Index  *search.Index
	Rdb    *redis.Client
	Cron   string
	Stop   chan struct{}
	Logger *log.Logger

	last *time.Time
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	// initial build so search works before the first tick
	if err := s.reindex(context.Background()); err != nil {
		s.Logger.Printf("initial reindex failed: %v", err)
	}
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	if !isDue(s.Cron, s.last) {
		return
	}
	ctx := context.Background()
	if s.Rdb != nil {
		// lock value identifies this instance so a stale holder is visible in redis
		lockVal := uuid.NewString()
		ok, _ := s.Rdb.SetNX(ctx, reindexLockKey, lockVal, 2*time.Minute).Result()
		if !ok {
			return
		}
		defer func() {
			if err := reindexUnlock.Run(ctx, s.Rdb, []string{reindexLockKey}, lockVal).Err(); err != nil {
				s.Logger.Printf("release reindex lock: %v", err)
			}
		}()
	}
	if err := s.reindex(ctx); err != nil {
		s.Logger.Printf("reindex failed: %v", err)
		return
	}
	now := time.Now()
	s.last = &now
}

func (s *Scheduler) reindex(ctx context.Context) error {
	var docs []search.Doc
	for page := 1; ; page++ {
		items, err := s.Store.ListResources(ctx, store.ResourceFilter{Page: page, PerPage: 100})
		if err != nil {
			return err
		}
		for _, item := range items {
			docs = append(docs, search.Doc{
				ID:          item.ID,
				CompanyID:   item.CompanyID,
				Name:        item.Name,
				Description: item.Description.String,
				Content:     item.Content.String,
			})
		}
		if len(items) < 100 {
			break
		}
	}
	if err := s.Index.Rebuild(docs); err != nil {
		return err
	}
	s.Logger.Printf("reindexed %d resources", len(docs))
	return nil
}

// isDue determines if the reindex with cronSpec should run now based on
// the last run time. Supports "@daily", "@hourly", and standard 5-field
// cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @hourly if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
