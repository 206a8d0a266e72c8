package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fulfillment-service/internal/models"

	"github.com/lib/pq"
)

// CreateSplitOrders persists the whole split batch for one order in a single
// transaction. Either every split and its items commit, or none do.
func (s *Store) CreateSplitOrders(ctx context.Context, splits []models.SplitOrder) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin split transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range splits {
		sp := &splits[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO split_orders
				(split_id, order_ref_id, order_number, store_id, store_code, store_name,
				 order_status, on_hold_status, financial_status, payout_price, payout_tax,
				 payout_total, timestamps)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			sp.SplitID, sp.OrderRefID, sp.OrderNumber, sp.StoreID, sp.StoreCode, sp.StoreName,
			sp.OrderStatus, sp.OnHoldStatus, sp.FinancialStatus, sp.PayoutPrice, sp.PayoutTax,
			sp.PayoutTotal, sp.Timestamps)
		if err != nil {
			return fmt.Errorf("failed to insert split %s: %w", sp.SplitID, err)
		}

		for _, item := range sp.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO split_order_items (split_id, sku, title, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5)`,
				sp.SplitID, item.SKU, item.Title, item.Quantity, item.UnitPrice)
			if err != nil {
				return fmt.Errorf("failed to insert item %s for split %s: %w", item.SKU, sp.SplitID, err)
			}
		}
	}

	return tx.Commit()
}

// GetSplitOrder retrieves a split order with its items
func (s *Store) GetSplitOrder(ctx context.Context, splitID string) (*models.SplitOrder, error) {
	var sp models.SplitOrder
	err := s.db.GetContext(ctx, &sp, "SELECT * FROM split_orders WHERE split_id = $1", splitID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("split order not found: %s", splitID)
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &sp.Items,
		"SELECT * FROM split_order_items WHERE split_id = $1 ORDER BY id", splitID); err != nil {
		return nil, err
	}
	return &sp, nil
}

// GetSplitsByOrderRef retrieves all splits for one platform order
func (s *Store) GetSplitsByOrderRef(ctx context.Context, orderRefID string) ([]models.SplitOrder, error) {
	var splits []models.SplitOrder
	err := s.db.SelectContext(ctx, &splits,
		"SELECT * FROM split_orders WHERE order_ref_id = $1 ORDER BY split_id", orderRefID)
	if err != nil {
		return nil, err
	}
	for i := range splits {
		if err := s.db.SelectContext(ctx, &splits[i].Items,
			"SELECT * FROM split_order_items WHERE split_id = $1 ORDER BY id", splits[i].SplitID); err != nil {
			return nil, err
		}
	}
	return splits, nil
}

// GetSplitsByStatus retrieves splits in a set of statuses, newest first
func (s *Store) GetSplitsByStatus(ctx context.Context, statuses []string, limit int) ([]models.SplitOrder, error) {
	var splits []models.SplitOrder
	err := s.db.SelectContext(ctx, &splits,
		"SELECT * FROM split_orders WHERE order_status = ANY($1) ORDER BY created_at DESC LIMIT $2",
		pq.Array(statuses), limit)
	return splits, err
}

// TransitionSplitStatus advances a split's status only when the current status
// is one of the allowed sources, recording the transition timestamp. Returns
// false when the guard did not match, which callers treat as a stale or
// out-of-order trigger.
func (s *Store) TransitionSplitStatus(ctx context.Context, splitID, to string, from []string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE split_orders
		SET order_status = $1,
		    timestamps = timestamps || jsonb_build_object($2::text, $3::bigint),
		    last_error = '',
		    updated_at = NOW()
		WHERE split_id = $4 AND order_status = ANY($5)`,
		to, to, time.Now().Unix(), splitID, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition split %s: %w", splitID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CancelSplitOrder marks a split cancelled when it is still in a non-terminal
// status. Returns false when the split was already terminal, which makes
// cancellation idempotent for inventory release.
func (s *Store) CancelSplitOrder(ctx context.Context, splitID, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE split_orders
		SET order_status = $1,
		    cancel_reason = $2,
		    timestamps = timestamps || jsonb_build_object($1::text, $3::bigint),
		    updated_at = NOW()
		WHERE split_id = $4 AND order_status NOT IN ($5, $1)`,
		models.SplitStatusCancelled, reason, time.Now().Unix(), splitID, models.SplitStatusDelivered)
	if err != nil {
		return false, fmt.Errorf("failed to cancel split %s: %w", splitID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetSplitOnHold flags a split with a hold reason
func (s *Store) SetSplitOnHold(ctx context.Context, splitID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE split_orders
		SET on_hold_status = $1,
		    order_status = CASE WHEN order_status = $2 THEN $3 ELSE order_status END,
		    updated_at = NOW()
		WHERE split_id = $4`,
		reason, models.SplitStatusNew, models.SplitStatusOnHold, splitID)
	return err
}

// ClearHoldsForOrder clears payment holds on every split of an order
func (s *Store) ClearHoldsForOrder(ctx context.Context, orderRefID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE split_orders
		SET on_hold_status = '', financial_status = $1, updated_at = NOW()
		WHERE order_ref_id = $2 AND on_hold_status = $3`,
		models.SplitFinancialPaid, orderRefID, models.HoldAwaitingPayment)
	return err
}

// SetSplitError records a transition failure without touching the status
func (s *Store) SetSplitError(ctx context.Context, splitID, msg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE split_orders SET last_error = $1, updated_at = NOW() WHERE split_id = $2",
		msg, splitID)
	return err
}

// SetSplitCourierTask links a courier task to a split
func (s *Store) SetSplitCourierTask(ctx context.Context, splitID, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE split_orders SET courier_task_id = $1, updated_at = NOW() WHERE split_id = $2",
		taskID, splitID)
	return err
}

// SetSplitRider records courier partner info on the split
func (s *Store) SetSplitRider(ctx context.Context, splitID, name, phone string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE split_orders SET rider_name = $1, rider_phone = $2, updated_at = NOW() WHERE split_id = $3",
		name, phone, splitID)
	return err
}

// SetSplitFinancialStatus sets the financial overlay on a split
func (s *Store) SetSplitFinancialStatus(ctx context.Context, splitID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE split_orders SET financial_status = $1, updated_at = NOW() WHERE split_id = $2",
		status, splitID)
	return err
}

// SetSplitPayout records payout linkage at confirm time
func (s *Store) SetSplitPayout(ctx context.Context, splitID string, price, tax, total int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE split_orders SET payout_price = $1, payout_tax = $2, payout_total = $3, updated_at = NOW() WHERE split_id = $4",
		price, tax, total, splitID)
	return err
}
