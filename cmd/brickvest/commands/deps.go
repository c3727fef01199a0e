package commands

import (
	"fmt"
	"time"

	"github.com/hadleybricks/brickvest/internal/artifacts"
	"github.com/hadleybricks/brickvest/internal/store"
	"github.com/hadleybricks/brickvest/pkg/config"
	"github.com/hadleybricks/brickvest/pkg/database"
	"github.com/hadleybricks/brickvest/pkg/httputil"
	"github.com/hadleybricks/brickvest/pkg/logger"
	"github.com/hadleybricks/brickvest/pkg/redis"
)

// deps bundles the shared dependencies every command wires up the same
// way: config, logger, database and the storage repositories.
type deps struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB

	sets      *store.SetRepository
	snapshots *store.SnapshotRepository
	training  *store.TrainingRepository
	preds     *store.PredictionRepository
	runs      *store.ModelRunRepository
	backfill  *store.BackfillRepository

	models *artifacts.Store
}

// initDeps loads config, connects to the database and builds the
// repositories. Callers own d.Close().
func initDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)
	if verbose {
		cfg.LogLevel = "debug"
		log = logger.New(cfg)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &deps{
		cfg:       cfg,
		log:       log,
		db:        db,
		sets:      store.NewSetRepository(db, log),
		snapshots: store.NewSnapshotRepository(db, log),
		training:  store.NewTrainingRepository(db, log),
		preds:     store.NewPredictionRepository(db, log),
		runs:      store.NewModelRunRepository(db, log),
		backfill:  store.NewBackfillRepository(db, log),
		models:    artifacts.NewStore(cfg.ModelsDir),
	}, nil
}

// Close releases the database pool.
func (d *deps) Close() {
	d.db.Close()
}

// catalogHTTPClient builds the HTTP client for the catalog API. When
// Redis is enabled, requests share a sliding-window rate limit across
// processes; the catalog API allows 100 calls a minute per key.
func (d *deps) catalogHTTPClient() (*httputil.Client, error) {
	client := httputil.New(d.log)

	if d.cfg.Redis.Enabled {
		rdb, err := redis.New(d.cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		limiter := redis.NewRateLimiter(rdb, "ratelimit")
		client = client.WithRateLimiter(limiter, redis.RateLimitConfig{
			Key:    "brickset",
			Limit:  100,
			Window: time.Minute,
		})
	}
	return client, nil
}
