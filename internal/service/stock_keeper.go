package service

import (
	"context"
	"time"

	"fulfillment-service/internal/inventory"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// StockDB is the durable side of online-stock accounting.
type StockDB interface {
	ReserveOnlineStock(ctx context.Context, storeID, sku string, qty int) (bool, error)
	ReserveOnlineStockFromBackup(ctx context.Context, storeID, backupStoreID, sku string, qty int) (bool, error)
	ReleaseOnlineStock(ctx context.Context, storeID, sku string, qty int) error
}

// StockCache is the Redis fast path for online-stock accounting.
type StockCache interface {
	ReserveStock(ctx context.Context, storeID, sku string, qty int) (bool, error)
	ReleaseStock(ctx context.Context, storeID, sku string, qty int) error
}

// BackupLookup resolves a store's designated backup store.
type BackupLookup interface {
	GetStoreByID(ctx context.Context, id string) (*models.Store, error)
	GetStoreByCode(ctx context.Context, code string) (*models.Store, error)
}

// StockKeeper applies online-stock commitments atomically per (store, SKU):
// Redis Lua script as the fast path, the guarded database UPDATE as fallback
// and source of truth. In primary-with-backup mode the durable reservation
// draws overflow from the backup store's pool, matching what the allocator
// counted as available.
type StockKeeper struct {
	mode   inventory.Mode
	db     StockDB
	stores BackupLookup
	cache  StockCache
	logger *zap.Logger
}

// NewStockKeeper creates a stock keeper.
func NewStockKeeper(mode inventory.Mode, db StockDB, stores BackupLookup, cache StockCache) *StockKeeper {
	return &StockKeeper{
		mode:   mode,
		db:     db,
		stores: stores,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Reserve commits qty to online orders for one (store, SKU). Returns false
// when sellable stock is insufficient.
func (sk *StockKeeper) Reserve(ctx context.Context, storeID, sku string, qty int) (bool, error) {
	ctx, span := util.StartSpan(ctx, "StockKeeper.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if sk.cache != nil {
		success, err := sk.cache.ReserveStock(ctx, storeID, sku, qty)
		if err != nil {
			sk.logger.Warn("Redis reservation failed, falling back to DB",
				zap.String("store_id", storeID),
				zap.String("sku", sku),
				zap.Error(err))
			return sk.reserveDB(ctx, storeID, sku, qty)
		}

		if !success {
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			return false, nil
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if ok, err := sk.reserveDB(ctx, storeID, sku, qty); err != nil || !ok {
				sk.logger.Error("Failed to sync reservation to DB",
					zap.String("store_id", storeID),
					zap.String("sku", sku),
					zap.Bool("applied", ok),
					zap.Error(err))
			}
		}()

		return true, nil
	}

	ok, err := sk.reserveDB(ctx, storeID, sku, qty)
	if err != nil {
		util.StockReservationsFailed.WithLabelValues("error").Inc()
		return false, err
	}
	if !ok {
		util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
	}
	return ok, nil
}

// reserveDB applies the durable reservation, routing through the backup pool
// when the allocation mode counts it toward sellable stock.
func (sk *StockKeeper) reserveDB(ctx context.Context, storeID, sku string, qty int) (bool, error) {
	if sk.mode == inventory.ModePrimaryWithBackup {
		backupID, err := sk.backupStoreID(ctx, storeID)
		if err != nil {
			return false, err
		}
		if backupID != "" {
			return sk.db.ReserveOnlineStockFromBackup(ctx, storeID, backupID, sku, qty)
		}
	}
	return sk.db.ReserveOnlineStock(ctx, storeID, sku, qty)
}

func (sk *StockKeeper) backupStoreID(ctx context.Context, storeID string) (string, error) {
	st, err := sk.stores.GetStoreByID(ctx, storeID)
	if err != nil {
		return "", err
	}
	if st.BackupStoreCode == "" {
		return "", nil
	}
	backup, err := sk.stores.GetStoreByCode(ctx, st.BackupStoreCode)
	if err != nil {
		return "", err
	}
	return backup.ID, nil
}

// Release returns qty from online orders to sellable stock.
func (sk *StockKeeper) Release(ctx context.Context, storeID, sku string, qty int) error {
	ctx, span := util.StartSpan(ctx, "StockKeeper.Release")
	defer span.End()

	if sk.cache != nil {
		if err := sk.cache.ReleaseStock(ctx, storeID, sku, qty); err != nil {
			sk.logger.Error("Failed to release stock in Redis",
				zap.String("store_id", storeID),
				zap.String("sku", sku),
				zap.Error(err))
		}
	}

	return sk.db.ReleaseOnlineStock(ctx, storeID, sku, qty)
}
