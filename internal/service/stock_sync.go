package service

import (
	"context"
	"time"

	"fulfillment-service/internal/adapters"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// SyncStore is the persistence the ERP stock sync needs.
type SyncStore interface {
	ListActiveStores(ctx context.Context) ([]models.Store, error)
	UpsertERPStock(ctx context.Context, storeID, sku string, qty int) error
}

// StockSync periodically pulls on-hand counts from the ERP and upserts them
// into the inventory records. The hybrid recompute job then folds the fresh
// counts into sellable stock.
type StockSync struct {
	store  SyncStore
	erp    adapters.ERPClient
	logger *zap.Logger
}

// NewStockSync creates an ERP stock sync job.
func NewStockSync(store SyncStore, erp adapters.ERPClient) *StockSync {
	return &StockSync{
		store:  store,
		erp:    erp,
		logger: util.GetLogger(),
	}
}

// Start runs the sync loop until the context is cancelled.
func (s *StockSync) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ERP stock sync loop stopped")
			return
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("ERP stock sync run failed", zap.Error(err))
			}
		}
	}
}

// Run performs one sync pass over every active store. A store whose pull
// fails is skipped; the next pass retries it.
func (s *StockSync) Run(ctx context.Context) error {
	stores, err := s.store.ListActiveStores(ctx)
	if err != nil {
		return err
	}

	var synced int
	for _, st := range stores {
		levels, err := s.erp.PullStock(ctx, st.ID)
		if err != nil {
			s.logger.Warn("ERP stock pull failed",
				zap.String("store_id", st.ID),
				zap.Error(err))
			continue
		}
		for _, lvl := range levels {
			if err := s.store.UpsertERPStock(ctx, st.ID, lvl.SKU, lvl.Stock); err != nil {
				s.logger.Error("Failed to upsert ERP stock",
					zap.String("store_id", st.ID),
					zap.String("sku", lvl.SKU),
					zap.Error(err))
				continue
			}
			synced++
		}
	}

	s.logger.Info("ERP stock sync completed",
		zap.Int("stores", len(stores)),
		zap.Int("records", synced))
	return nil
}
