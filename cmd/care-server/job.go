package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carehq/care/internal/config"
	"github.com/carehq/care/internal/domain/summary"
	"github.com/carehq/care/internal/platform/db"
	"github.com/carehq/care/internal/platform/middleware"
	"github.com/carehq/care/internal/platform/redis"
)

// summaryJob is the patient summary job together with the cache it clears
// and the Redis client backing both, if any.
type summaryJob struct {
	*summary.Job
	cache middleware.CacheStore
	rdb   *goredis.Client
}

func (j *summaryJob) Close() {
	if j.rdb != nil {
		_ = j.rdb.Close()
	}
}

// newJob wires the summary job on its own. It never touches token
// verification, so the batch entry point does not depend on the identity
// provider being reachable.
func newJob(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*summaryJob, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	j := &summaryJob{cache: middleware.NewInMemoryCacheStore()}
	var locker summary.Locker
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		j.rdb = rdb
		j.cache = redis.NewCacheStore(rdb, "care:cache:")
		locker = redis.NewLocker(rdb, "care:lock:")
		logger.Info().Msg("connected to redis")
	}

	j.Job = summary.NewJob(summary.NewRepoPG(pool), summary.JobOptions{
		Location:          loc,
		LegacyTodayCounts: cfg.SummaryLegacyTodayCounts,
		Locker:            locker,
		Cache:             j.cache,
		Logger:            logger,
	})
	return j, nil
}

// newStandaloneJob builds the job for the summarise command. Without Redis
// the run lock and the cache are local to this process, so a separate serve
// process keeps its cached summaries until SUMMARY_CACHE_TTL expires.
func newStandaloneJob(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*summaryJob, error) {
	if cfg.RedisURL == "" {
		logger.Warn().
			Dur("cache_ttl", cfg.SummaryCacheTTL).
			Msg("REDIS_URL not set: summary cache of running servers is not invalidated and the run lock is process-local")
	}
	return newJob(ctx, cfg, pool, logger)
}

func jobPoolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{MaxConns: 2, Traced: cfg.OTelEnabled}
}
