package service

import (
	"context"
	"errors"
	"testing"

	"fulfillment-service/internal/inventory"
	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder() *models.Order {
	return &models.Order{
		ID:              "ord-1",
		OrderNumber:     "1001",
		FinancialStatus: models.FinancialStatusPaid,
		ShippingMethod:  models.ShippingMethodDelivery,
		DeliveryLat:     12.90,
		DeliveryLng:     77.60,
		Items: []models.LineItem{
			{SKU: "X", Title: "Widget", Quantity: 5, UnitPrice: 100},
		},
	}
}

func twoStoreEngine(store *fakeStore) *SplitEngine {
	store.addInventory("a", "X", 3, 0, 0)
	store.addInventory("b", "X", 10, 0, 0)
	allocator := &fakeAllocator{plans: map[string][]inventory.Allocation{
		"X": {
			{StoreID: "a", StoreCode: "STA", StoreName: "Store A", Qty: 3},
			{StoreID: "b", StoreCode: "STB", StoreName: "Store B", Qty: 2},
		},
	}}
	return NewSplitEngine(store, NewStockKeeper(inventory.ModeCluster, store, store, nil), allocator, nil)
}

func TestSplitOrderAcrossTwoStores(t *testing.T) {
	store := newFakeStore()
	engine := twoStoreEngine(store)

	splits, err := engine.SplitOrder(context.Background(), testOrder())
	require.NoError(t, err)
	require.Len(t, splits, 2)

	assert.Equal(t, "1001-STA", splits[0].SplitID)
	assert.Equal(t, "1001-STB", splits[1].SplitID)
	assert.Equal(t, models.SplitStatusNew, splits[0].OrderStatus)
	assert.Equal(t, models.SplitFinancialPaid, splits[0].FinancialStatus)

	require.Len(t, splits[0].Items, 1)
	assert.Equal(t, 3, splits[0].Items[0].Quantity)
	assert.Equal(t, 2, splits[1].Items[0].Quantity)

	// Every allocated quantity is committed as online stock.
	assert.Equal(t, 3, store.onlineStock("a", "X"))
	assert.Equal(t, 2, store.onlineStock("b", "X"))

	assert.Equal(t, int64(300), splits[0].PayoutTotal)
	assert.Equal(t, int64(200), splits[1].PayoutTotal)
	assert.Contains(t, splits[0].Timestamps, "created")
}

func TestSplitOrderSingleStore(t *testing.T) {
	store := newFakeStore()
	store.addInventory("a", "X", 10, 0, 0)
	store.addInventory("a", "Y", 10, 0, 0)
	allocator := &fakeAllocator{plans: map[string][]inventory.Allocation{
		"X": {{StoreID: "a", StoreCode: "STA", StoreName: "Store A", Qty: 2}},
		"Y": {{StoreID: "a", StoreCode: "STA", StoreName: "Store A", Qty: 1}},
	}}
	engine := NewSplitEngine(store, NewStockKeeper(inventory.ModeCluster, store, store, nil), allocator, nil)

	order := testOrder()
	order.Items = []models.LineItem{
		{SKU: "X", Title: "Widget", Quantity: 2, UnitPrice: 100},
		{SKU: "Y", Title: "Gadget", Quantity: 1, UnitPrice: 250},
	}

	splits, err := engine.SplitOrder(context.Background(), order)
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Len(t, splits[0].Items, 2)
	assert.Equal(t, int64(450), splits[0].PayoutTotal)
}

func TestSplitOrderAggregatesDuplicateSKULines(t *testing.T) {
	store := newFakeStore()
	store.addInventory("a", "X", 10, 0, 0)
	allocator := &fakeAllocator{plans: map[string][]inventory.Allocation{
		"X": {{StoreID: "a", StoreCode: "STA", StoreName: "Store A", Qty: 5}},
	}}
	engine := NewSplitEngine(store, NewStockKeeper(inventory.ModeCluster, store, store, nil), allocator, nil)

	order := testOrder()
	order.Items = []models.LineItem{
		{SKU: "X", Title: "Widget", Quantity: 2, UnitPrice: 100},
		{SKU: "X", Title: "Widget", Quantity: 3, UnitPrice: 100},
	}

	splits, err := engine.SplitOrder(context.Background(), order)
	require.NoError(t, err)
	require.Len(t, splits, 1)
	require.Len(t, splits[0].Items, 1)
	assert.Equal(t, 5, splits[0].Items[0].Quantity)
	assert.Equal(t, 5, store.onlineStock("a", "X"))
}

func TestSplitOrderIdempotent(t *testing.T) {
	store := newFakeStore()
	engine := twoStoreEngine(store)

	first, err := engine.SplitOrder(context.Background(), testOrder())
	require.NoError(t, err)

	again, err := engine.SplitOrder(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Len(t, again, len(first))

	// No double reservation on replay.
	assert.Equal(t, 3, store.onlineStock("a", "X"))
	assert.Equal(t, 2, store.onlineStock("b", "X"))
}

func TestSplitOrderOutOfStockCompensates(t *testing.T) {
	store := newFakeStore()
	store.addInventory("a", "X", 10, 0, 0)
	allocator := &fakeAllocator{plans: map[string][]inventory.Allocation{
		"X": {{StoreID: "a", StoreCode: "STA", StoreName: "Store A", Qty: 2}},
		// No plan for Y, so its allocation fails after X is reserved.
	}}
	engine := NewSplitEngine(store, NewStockKeeper(inventory.ModeCluster, store, store, nil), allocator, nil)

	order := testOrder()
	order.Items = []models.LineItem{
		{SKU: "X", Title: "Widget", Quantity: 2, UnitPrice: 100},
		{SKU: "Y", Title: "Gadget", Quantity: 1, UnitPrice: 250},
	}

	_, err := engine.SplitOrder(context.Background(), order)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfStock)

	assert.Equal(t, 0, store.onlineStock("a", "X"))
	splits, _ := store.GetSplitsByOrderRef(context.Background(), order.ID)
	assert.Empty(t, splits)
}

func TestSplitOrderReservationContention(t *testing.T) {
	store := newFakeStore()
	store.addInventory("a", "X", 1, 0, 0) // less than the allocation snapshot claims
	allocator := &fakeAllocator{plans: map[string][]inventory.Allocation{
		"X": {{StoreID: "a", StoreCode: "STA", StoreName: "Store A", Qty: 5}},
	}}
	engine := NewSplitEngine(store, NewStockKeeper(inventory.ModeCluster, store, store, nil), allocator, nil)

	order := testOrder()
	_, err := engine.SplitOrder(context.Background(), order)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 0, store.onlineStock("a", "X"))
}

func backupEngine(store *fakeStore, pool int) *SplitEngine {
	store.addStore(models.Store{ID: "a", Code: "STA", Name: "Store A", Status: models.StoreStatusActive, BackupStoreCode: "WH"})
	store.addStore(models.Store{ID: "w", Code: "WH", Name: "Warehouse", Status: models.StoreStatusActive})
	store.addInventory("a", "X", 2, 0, 0)
	store.addInventory("w", "X", 0, 0, 0)
	store.inventory[invKey("a", "X")].ThresholdStock = 5
	store.inventory[invKey("w", "X")].BackupStock = pool

	allocator := &fakeAllocator{plans: map[string][]inventory.Allocation{
		"X": {{StoreID: "a", StoreCode: "STA", StoreName: "Store A", Qty: 5}},
	}}
	return NewSplitEngine(store, NewStockKeeper(inventory.ModePrimaryWithBackup, store, store, nil), allocator, nil)
}

func TestSplitOrderBackupPoolCoversOverflow(t *testing.T) {
	store := newFakeStore()
	engine := backupEngine(store, 20)

	splits, err := engine.SplitOrder(context.Background(), testOrder())
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Equal(t, 5, splits[0].Items[0].Quantity)

	// The primary's own base covers 2; the remaining 3 are transferred out
	// of the warehouse pool into the primary's on-hand count.
	assert.Equal(t, 5, store.onlineStock("a", "X"))
	assert.Equal(t, 5, store.inventory[invKey("a", "X")].ERPStock)
	assert.Equal(t, 17, store.inventory[invKey("w", "X")].BackupStock)
}

func TestSplitOrderBackupPoolExhausted(t *testing.T) {
	store := newFakeStore()
	engine := backupEngine(store, 2)

	_, err := engine.SplitOrder(context.Background(), testOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfStock)

	assert.Equal(t, 0, store.onlineStock("a", "X"))
	assert.Equal(t, 2, store.inventory[invKey("w", "X")].BackupStock)
}

func TestSplitOrderPersistenceFailureCompensates(t *testing.T) {
	store := newFakeStore()
	engine := twoStoreEngine(store)
	store.createSplitsErr = errors.New("db down")

	_, err := engine.SplitOrder(context.Background(), testOrder())
	require.Error(t, err)

	assert.Equal(t, 0, store.onlineStock("a", "X"))
	assert.Equal(t, 0, store.onlineStock("b", "X"))
}

func TestSplitOrderUnpaidStartsOnPaymentHold(t *testing.T) {
	store := newFakeStore()
	engine := twoStoreEngine(store)

	order := testOrder()
	order.FinancialStatus = models.FinancialStatusPending

	splits, err := engine.SplitOrder(context.Background(), order)
	require.NoError(t, err)
	for _, sp := range splits {
		assert.Equal(t, models.HoldAwaitingPayment, sp.OnHoldStatus)
		assert.Empty(t, sp.FinancialStatus)
	}
}

func TestGroupBySKUPreservesFirstAppearanceOrder(t *testing.T) {
	demands := groupBySKU([]models.LineItem{
		{SKU: "B", Quantity: 1},
		{SKU: "A", Quantity: 2},
		{SKU: "B", Quantity: 4},
	})
	require.Len(t, demands, 2)
	assert.Equal(t, "B", demands[0].sku)
	assert.Equal(t, 5, demands[0].qty)
	assert.Equal(t, "A", demands[1].sku)
}
