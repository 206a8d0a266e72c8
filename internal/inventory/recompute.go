package inventory

import (
	"context"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

const recomputeLockKey = "hybrid-recompute"

// RecomputeStore is what the recompute job needs from the inventory store.
type RecomputeStore interface {
	InventoryReader
	ListInventoryRecords(ctx context.Context) ([]models.InventoryRecord, error)
	CompareAndSetHybridStock(ctx context.Context, storeID, sku string, hybrid int, version int64) (bool, error)
}

// StockCache is the Redis fast path warmed after each recompute.
type StockCache interface {
	InitStock(ctx context.Context, storeID, sku string, sellable, online int) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Recomputer periodically re-derives hybrid stock for every inventory record.
// Runs are idempotent; each write is a compare-and-set so a concurrent
// reservation wins and the record is retried on the next pass.
type Recomputer struct {
	allocator *Allocator
	store     RecomputeStore
	cache     StockCache
	logger    *zap.Logger
}

// NewRecomputer creates a hybrid stock recompute job.
func NewRecomputer(allocator *Allocator, store RecomputeStore, cache StockCache) *Recomputer {
	return &Recomputer{
		allocator: allocator,
		store:     store,
		cache:     cache,
		logger:    util.GetLogger(),
	}
}

// Start runs the recompute loop until the context is cancelled.
func (r *Recomputer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Hybrid recompute loop stopped")
			return
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				r.logger.Error("Hybrid recompute run failed", zap.Error(err))
			}
		}
	}
}

// Run performs one full recompute pass under a distributed lock.
func (r *Recomputer) Run(ctx context.Context) error {
	acquired, err := r.cache.AcquireLock(ctx, recomputeLockKey, 2*time.Minute)
	if err != nil {
		return err
	}
	if !acquired {
		r.logger.Debug("Hybrid recompute lock held elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := r.cache.ReleaseLock(context.Background(), recomputeLockKey); err != nil {
			r.logger.Warn("Failed to release recompute lock", zap.Error(err))
		}
	}()

	start := time.Now()
	recs, err := r.store.ListInventoryRecords(ctx)
	if err != nil {
		return err
	}

	var updated, conflicts int
	for i := range recs {
		rec := &recs[i]

		var backup *models.InventoryRecord
		if r.allocator.Mode() == ModePrimaryWithBackup {
			backup, err = r.allocator.backupRecord(ctx, rec.StoreID, rec.SKU)
			if err != nil {
				r.logger.Warn("Backup record lookup failed during recompute",
					zap.String("store_id", rec.StoreID),
					zap.String("sku", rec.SKU),
					zap.Error(err))
			}
		}

		hybrid := HybridStock(r.allocator.Mode(), rec, backup)
		if hybrid == rec.HybridStock {
			r.warmCache(ctx, rec, hybrid)
			continue
		}

		ok, err := r.store.CompareAndSetHybridStock(ctx, rec.StoreID, rec.SKU, hybrid, rec.Version)
		if err != nil {
			r.logger.Error("Hybrid CAS failed",
				zap.String("store_id", rec.StoreID),
				zap.String("sku", rec.SKU),
				zap.Error(err))
			continue
		}
		if !ok {
			// Row moved underneath us; next pass picks it up.
			conflicts++
			continue
		}
		updated++
		r.warmCache(ctx, rec, hybrid)
	}

	util.HybridRecomputeRuns.Inc()
	util.HybridRecomputeDuration.Observe(time.Since(start).Seconds())

	r.logger.Info("Hybrid recompute completed",
		zap.Int("records", len(recs)),
		zap.Int("updated", updated),
		zap.Int("conflicts", conflicts))
	return nil
}

func (r *Recomputer) warmCache(ctx context.Context, rec *models.InventoryRecord, hybrid int) {
	if err := r.cache.InitStock(ctx, rec.StoreID, rec.SKU, hybrid, rec.OnlineStock); err != nil {
		r.logger.Warn("Failed to warm stock cache",
			zap.String("store_id", rec.StoreID),
			zap.String("sku", rec.SKU),
			zap.Error(err))
	}
}
