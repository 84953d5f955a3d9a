package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"tripplanner/internal/cache"
	"tripplanner/internal/config"
	"tripplanner/internal/planstore"
	"tripplanner/internal/sqldb"
)

type stores struct {
	db          *sql.DB
	cache       cache.InvalidatingStore
	tiered      *cache.TieredStore
	sqlCache    *cache.SQLStore
	plans       planstore.Store
	cachedPlans *planstore.CachedStore
	archive     planstore.Archive
	s3          *planstore.S3Archive
	audit       planstore.AuditLog
}

func initStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}
	if dsn := strings.TrimSpace(cfg.Store.DatabaseURL); dsn != "" {
		if err := st.initSQL(ctx, cfg, dsn); err != nil {
			return nil, err
		}
	} else if err := st.initInMemory(cfg); err != nil {
		return nil, err
	}
	if !cfg.Cache.Enabled {
		st.cache, st.tiered = cache.Disabled{}, nil
	}
	if err := st.initArchive(cfg); err != nil {
		st.close()
		return nil, err
	}
	return st, nil
}

func (st *stores) initSQL(ctx context.Context, cfg *config.Config, dsn string) error {
	d, err := sqldb.ParseDialect(cfg.Store.Driver)
	if err != nil {
		return err
	}
	db, err := sqldb.Open(ctx, d, dsn)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	st.db = db

	st.sqlCache = cache.NewSQLStore(db, d)
	st.tiered = cache.NewTieredStore(st.sqlCache, cache.TieredConfig{MaxEntries: cfg.Cache.MaxEntries})
	st.cache = st.tiered

	plans, err := planstore.NewCachedStore(planstore.NewSQLStore(db, d), cfg.Store.MemoryRecords)
	if err != nil {
		return err
	}
	st.plans, st.cachedPlans = plans, plans
	st.audit = planstore.NewSQLAuditLog(db, d)
	log.Printf("stores: %s database, tiered provider cache", d)
	return nil
}

func (st *stores) initInMemory(cfg *config.Config) error {
	if dir := strings.TrimSpace(cfg.Cache.Dir); dir != "" {
		disk, err := cache.NewDiskStore(cache.DiskConfig{Root: dir, MaxEntries: cfg.Cache.MaxEntries})
		if err != nil {
			return fmt.Errorf("failed to open cache dir: %w", err)
		}
		st.tiered = cache.NewTieredStore(disk, cache.TieredConfig{MaxEntries: cfg.Cache.MaxEntries})
		st.cache = st.tiered
		log.Printf("stores: in-memory plans, disk provider cache at %s", dir)
	} else {
		st.cache = cache.NewMemoryStore(cfg.Cache.MaxEntries, cache.DefaultTieredConfig().MaxBytes)
		log.Printf("stores: in-memory plans and provider cache")
	}
	plans, err := planstore.NewMemoryStore(cfg.Store.MemoryRecords)
	if err != nil {
		return err
	}
	st.plans = plans
	st.audit = planstore.NewMemoryAuditLog(planstore.DefaultAuditLimit * 10)
	return nil
}

func (st *stores) initArchive(cfg *config.Config) error {
	if !cfg.Archive.Enabled() {
		return nil
	}
	a, err := planstore.NewS3Archive(planstore.S3Config{
		Endpoint:  cfg.Archive.Endpoint,
		Region:    cfg.Archive.Region,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Bucket:    cfg.Archive.Bucket,
		Prefix:    cfg.Archive.Prefix,
		UseSSL:    cfg.Archive.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize itinerary archive: %w", err)
	}
	st.s3, st.archive = a, a
	log.Printf("itinerary archive: s3 bucket=%s endpoint=%s", cfg.Archive.Bucket, cfg.Archive.Endpoint)
	return nil
}

// checks returns the health probes of the configured backends.
func (st *stores) checks() map[string]func(context.Context) error {
	out := map[string]func(context.Context) error{}
	if st.db != nil {
		out["database"] = st.db.PingContext
	}
	if st.plans != nil {
		plans := st.plans
		out["plan_store"] = func(ctx context.Context) error {
			_, err := plans.Get(ctx, "healthcheck")
			if errors.Is(err, planstore.ErrNotFound) {
				return nil
			}
			return err
		}
	}
	if st.s3 != nil {
		out["archive"] = st.s3.Ping
	}
	return out
}

// stats returns the counters Health reports alongside the checks.
func (st *stores) stats() map[string]func() any {
	out := map[string]func() any{}
	if st.tiered != nil {
		tiered := st.tiered
		out["provider_cache"] = func() any { return tiered.Metrics() }
	}
	if st.cachedPlans != nil {
		plans := st.cachedPlans
		out["plan_store"] = func() any { return plans.Metrics() }
	}
	return out
}

func (st *stores) close() error {
	if st == nil || st.db == nil {
		return nil
	}
	return st.db.Close()
}
