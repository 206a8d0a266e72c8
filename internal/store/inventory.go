package store

import (
	"context"
	"database/sql"
	"fmt"

	"fulfillment-service/internal/models"
)

// GetInventoryRecord retrieves the stock row for one (store, SKU)
func (s *Store) GetInventoryRecord(ctx context.Context, storeID, sku string) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM inventory_records WHERE store_id = $1 AND sku = $2", storeID, sku)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inventory record not found: store=%s sku=%s", storeID, sku)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetInventoryRecordsBySKU retrieves the stock rows for a SKU across all stores
func (s *Store) GetInventoryRecordsBySKU(ctx context.Context, sku string) ([]models.InventoryRecord, error) {
	var recs []models.InventoryRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM inventory_records WHERE sku = $1 ORDER BY store_id", sku)
	return recs, err
}

// ListInventoryRecords retrieves every stock row, used by the hybrid recompute job
func (s *Store) ListInventoryRecords(ctx context.Context) ([]models.InventoryRecord, error) {
	var recs []models.InventoryRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM inventory_records ORDER BY store_id, sku")
	return recs, err
}

// CompareAndSetHybridStock writes a recomputed hybrid value guarded by the
// record version read beforehand. Returns false when the row moved underneath
// the writer; the caller re-reads and retries.
func (s *Store) CompareAndSetHybridStock(ctx context.Context, storeID, sku string, hybrid int, version int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_records
		SET hybrid_stock = $1, version = version + 1, updated_at = NOW()
		WHERE store_id = $2 AND sku = $3 AND version = $4`,
		hybrid, storeID, sku, version)
	if err != nil {
		return false, fmt.Errorf("failed to set hybrid stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReserveOnlineStock commits qty to pending online orders for one (store, SKU).
// The sellable check and the increment happen in a single guarded UPDATE, so
// concurrent splits competing for the same SKU serialize on the row. Returns
// false when sellable stock is insufficient.
func (s *Store) ReserveOnlineStock(ctx context.Context, storeID, sku string, qty int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_records
		SET online_stock = online_stock + $1,
		    hybrid_stock = GREATEST(erp_stock - buffer_stock - online_stock - $1, 0),
		    version = version + 1,
		    updated_at = NOW()
		WHERE store_id = $2 AND sku = $3
		  AND erp_stock - buffer_stock - online_stock >= $1`,
		qty, storeID, sku)
	if err != nil {
		return false, fmt.Errorf("failed to reserve online stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReserveOnlineStockFromBackup commits qty at the primary store, drawing any
// overflow beyond the primary's own sellable base from the backup store's
// pool. The overflow is transferred into the primary's on-hand count, so the
// primary row never goes negative-sellable and a later release returns the
// transferred units to the primary store. Returns false when the combined
// stock is insufficient.
func (s *Store) ReserveOnlineStockFromBackup(ctx context.Context, storeID, backupStoreID, sku string, qty int) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin backup reserve transaction: %w", err)
	}
	defer tx.Rollback()

	var base int
	err = tx.GetContext(ctx, &base, `
		SELECT erp_stock - buffer_stock - online_stock
		FROM inventory_records
		WHERE store_id = $1 AND sku = $2
		FOR UPDATE`,
		storeID, sku)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock primary record: %w", err)
	}

	own := base
	if own < 0 {
		own = 0
	}
	if own > qty {
		own = qty
	}
	overflow := qty - own

	if overflow > 0 {
		res, err := tx.ExecContext(ctx, `
			UPDATE inventory_records
			SET backup_stock = backup_stock - $1, version = version + 1, updated_at = NOW()
			WHERE store_id = $2 AND sku = $3 AND backup_stock >= $1`,
			overflow, backupStoreID, sku)
		if err != nil {
			return false, fmt.Errorf("failed to draw backup pool: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n != 1 {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory_records
		SET erp_stock = erp_stock + $1,
		    online_stock = online_stock + $2,
		    hybrid_stock = GREATEST(erp_stock + $1 - buffer_stock - online_stock - $2, 0),
		    version = version + 1,
		    updated_at = NOW()
		WHERE store_id = $3 AND sku = $4`,
		overflow, qty, storeID, sku)
	if err != nil {
		return false, fmt.Errorf("failed to reserve online stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseOnlineStock returns qty from pending online orders to sellable stock.
// The online counter is floored at zero.
func (s *Store) ReleaseOnlineStock(ctx context.Context, storeID, sku string, qty int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE inventory_records
		SET online_stock = GREATEST(online_stock - $1, 0),
		    hybrid_stock = GREATEST(erp_stock - buffer_stock - GREATEST(online_stock - $1, 0), 0),
		    version = version + 1,
		    updated_at = NOW()
		WHERE store_id = $2 AND sku = $3`,
		qty, storeID, sku)
	if err != nil {
		return fmt.Errorf("failed to release online stock: %w", err)
	}
	return nil
}

// UpsertERPStock writes an on-hand count pulled from the ERP. Hybrid stock is
// left to the recompute job so a sync burst does not contend with reservations.
func (s *Store) UpsertERPStock(ctx context.Context, storeID, sku string, qty int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_records (store_id, sku, erp_stock, version)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (store_id, sku)
		DO UPDATE SET erp_stock = $3, version = inventory_records.version + 1, updated_at = NOW()`,
		storeID, sku, qty)
	return err
}

// Oversold reports whether commitments for a (store, SKU) now exceed on-hand
// stock, which can happen when an ERP sync lowers the count after reservation.
func (s *Store) Oversold(ctx context.Context, storeID, sku string) (bool, error) {
	var raw int
	err := s.db.GetContext(ctx, &raw,
		"SELECT erp_stock - buffer_stock - online_stock FROM inventory_records WHERE store_id = $1 AND sku = $2",
		storeID, sku)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return raw < 0, nil
}
