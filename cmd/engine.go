package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cropsense/internal/assess"
	"github.com/sells-group/cropsense/internal/catalog"
	"github.com/sells-group/cropsense/internal/observability"
	"github.com/sells-group/cropsense/internal/store"
)

// loadCatalog reads the configured manifest, or the default data directory
// layout when none is set.
func loadCatalog() (*catalog.Catalog, error) {
	var cat *catalog.Catalog
	if cfg.Rasters.Catalog != "" {
		c, err := catalog.Load(cfg.Rasters.Catalog)
		if err != nil {
			return nil, err
		}
		cat = c
	} else {
		cat = catalog.Default(cfg.Rasters.DataDir)
	}
	if cfg.Classify.NeighborFallback {
		cat = cat.WithNeighborFallback()
	}
	return cat, nil
}

// initEngine loads every raster in the catalog. metrics may be nil.
func initEngine(ctx context.Context, metrics *observability.Metrics) (*assess.Engine, error) {
	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	engine, err := assess.Load(ctx, cat, assess.Options{
		NDVIScale:  cfg.Classify.NDVIScale,
		Thresholds: cfg.Classify.Thresholds(),
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("rasters loaded",
		zap.Int("layers", len(engine.Layers())),
		zap.Duration("elapsed", time.Since(start)),
	)
	return engine, nil
}

// initStore opens and migrates the configured history store. It returns a
// nil Store when history is disabled.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if st == nil {
		return nil, nil
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
