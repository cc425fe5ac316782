package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/pss-rag/docqa/internal/indexer"
)

// Scheduler rebuilds the vector index on a cron schedule so newly ingested
// chunks become searchable without an operator call.
type Scheduler struct {
	Cron      string
	Reindexer *indexer.Reindexer
	Rdb       *redis.Client
	Stop      chan struct{}

	lastRun *time.Time
}

func (s *Scheduler) Start() {
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
	if !isDue(s.Cron, s.lastRun) {
		return
	}
	ctx := context.Background()

	// distributed lock to avoid duplicate rebuilds across replicas
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "docqa:reindex:lock", "1", 10*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "docqa:reindex:lock")
	}

	now := time.Now()
	s.lastRun = &now
	if _, err := s.Reindexer.Rebuild(ctx); err != nil {
		log.Printf("[SCHED] scheduled reindex failed: %v", err)
	}
}

// isDue determines if a rebuild with cronSpec should run now based on the
// last run time. Supports "@daily", "@hourly", and standard 5-field cron
// expressions.
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
			// Fallback: treat as @daily if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
