package inventory

import (
	"context"
	"errors"
	"testing"

	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInventory struct {
	records map[string]*models.InventoryRecord // storeID|sku
}

func (f *fakeInventory) key(storeID, sku string) string { return storeID + "|" + sku }

func (f *fakeInventory) GetInventoryRecord(_ context.Context, storeID, sku string) (*models.InventoryRecord, error) {
	rec, ok := f.records[f.key(storeID, sku)]
	if !ok {
		return nil, errors.New("inventory record not found")
	}
	return rec, nil
}

func (f *fakeInventory) GetInventoryRecordsBySKU(_ context.Context, sku string) ([]models.InventoryRecord, error) {
	var out []models.InventoryRecord
	for _, rec := range f.records {
		if rec.SKU == sku {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakeDirectory struct {
	stores []models.Store
}

func (f *fakeDirectory) GetStoreByID(_ context.Context, id string) (*models.Store, error) {
	for i := range f.stores {
		if f.stores[i].ID == id {
			return &f.stores[i], nil
		}
	}
	return nil, errors.New("store not found")
}

func (f *fakeDirectory) GetStoreByCode(_ context.Context, code string) (*models.Store, error) {
	for i := range f.stores {
		if f.stores[i].Code == code {
			return &f.stores[i], nil
		}
	}
	return nil, errors.New("store not found")
}

func (f *fakeDirectory) ListActiveStores(_ context.Context) ([]models.Store, error) {
	var out []models.Store
	for _, st := range f.stores {
		if st.Status == models.StoreStatusActive {
			out = append(out, st)
		}
	}
	return out, nil
}

func rec(storeID, sku string, erp, buffer, backup, threshold, online int) *models.InventoryRecord {
	return &models.InventoryRecord{
		StoreID:        storeID,
		SKU:            sku,
		ERPStock:       erp,
		BufferStock:    buffer,
		BackupStock:    backup,
		ThresholdStock: threshold,
		OnlineStock:    online,
	}
}

func TestHybridStockPrimary(t *testing.T) {
	tests := []struct {
		name string
		rec  *models.InventoryRecord
		want int
	}{
		{"plain", rec("s1", "X", 10, 2, 0, 0, 3), 5},
		{"never negative", rec("s1", "X", 2, 3, 0, 0, 4), 0},
		{"zero stock", rec("s1", "X", 0, 0, 0, 0, 0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HybridStock(ModePrimary, tt.rec, nil)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got, tt.rec.ERPStock)
			assert.GreaterOrEqual(t, got, 0)
		})
	}
}

func TestHybridStockBackupPool(t *testing.T) {
	primary := rec("s1", "X", 4, 1, 0, 5, 2) // base 1, below threshold 5
	backup := rec("s2", "X", 100, 0, 20, 0, 0)

	got := HybridStock(ModePrimaryWithBackup, primary, backup)
	assert.Equal(t, 1+20, got)

	// Above threshold the backup pool does not contribute.
	primary.OnlineStock = 0
	primary.ThresholdStock = 1
	got = HybridStock(ModePrimaryWithBackup, primary, backup)
	assert.Equal(t, 3, got)
}

func clusterFixture() (*fakeInventory, *fakeDirectory) {
	inv := &fakeInventory{records: map[string]*models.InventoryRecord{}}
	inv.records["a|X"] = rec("a", "X", 3, 0, 0, 0, 0)
	inv.records["b|X"] = rec("b", "X", 10, 0, 0, 0, 0)

	// Store A sits at the destination, store B roughly 15km north.
	dir := &fakeDirectory{stores: []models.Store{
		{ID: "a", Code: "STA", Name: "Store A", Status: models.StoreStatusActive, Latitude: 12.90, Longitude: 77.60},
		{ID: "b", Code: "STB", Name: "Store B", Status: models.StoreStatusActive, Latitude: 13.04, Longitude: 77.60},
	}}
	return inv, dir
}

func TestAllocateClusterSpillsToNextRank(t *testing.T) {
	inv, dir := clusterFixture()
	a := NewAllocator(ModeCluster, "", inv, dir)

	allocations, err := a.Allocate(context.Background(), "X", 5, 12.90, 77.60)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	assert.Equal(t, "STA", allocations[0].StoreCode)
	assert.Equal(t, 3, allocations[0].Qty)
	assert.Equal(t, "STB", allocations[1].StoreCode)
	assert.Equal(t, 2, allocations[1].Qty)
}

func TestAllocateSingleStoreWhenCovered(t *testing.T) {
	inv, dir := clusterFixture()
	a := NewAllocator(ModeCluster, "", inv, dir)

	allocations, err := a.Allocate(context.Background(), "X", 2, 12.90, 77.60)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "STA", allocations[0].StoreCode)
	assert.Equal(t, 2, allocations[0].Qty)
}

func TestAllocateOutOfStock(t *testing.T) {
	inv, dir := clusterFixture()
	a := NewAllocator(ModeCluster, "", inv, dir)

	_, err := a.Allocate(context.Background(), "X", 50, 12.90, 77.60)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestEligibleStoresFiltersOnFullQuantity(t *testing.T) {
	inv, dir := clusterFixture()
	a := NewAllocator(ModeCluster, "", inv, dir)

	eligible, err := a.EligibleStores(context.Background(), "X", 5, 12.90, 77.60)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "STB", eligible[0].Store.Code)
}

func TestClusterSkipsBelowThreshold(t *testing.T) {
	inv, dir := clusterFixture()
	inv.records["a|X"].ThresholdStock = 4 // hybrid 3 < threshold
	a := NewAllocator(ModeCluster, "", inv, dir)

	allocations, err := a.Allocate(context.Background(), "X", 5, 12.90, 77.60)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "STB", allocations[0].StoreCode)
	assert.Equal(t, 5, allocations[0].Qty)
}

func TestClusterRespectsDeliveryRadius(t *testing.T) {
	inv, dir := clusterFixture()
	dir.stores[1].DeliveryRadius = 5 // B is ~15km away from the destination
	a := NewAllocator(ModeCluster, "", inv, dir)

	_, err := a.Allocate(context.Background(), "X", 5, 12.90, 77.60)
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestPrimaryModeUsesConfiguredStoreOnly(t *testing.T) {
	inv, dir := clusterFixture()
	a := NewAllocator(ModePrimary, "STA", inv, dir)

	allocations, err := a.Allocate(context.Background(), "X", 3, 0, 0)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "STA", allocations[0].StoreCode)

	// No fallback to other stores in primary mode.
	_, err = a.Allocate(context.Background(), "X", 4, 0, 0)
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestComputeHybridStockPrimaryWithBackup(t *testing.T) {
	inv := &fakeInventory{records: map[string]*models.InventoryRecord{
		"a|X":  rec("a", "X", 2, 0, 0, 5, 0),
		"bw|X": rec("bw", "X", 0, 0, 30, 0, 0),
	}}
	dir := &fakeDirectory{stores: []models.Store{
		{ID: "a", Code: "STA", Status: models.StoreStatusActive, BackupStoreCode: "BW"},
		{ID: "bw", Code: "BW", Status: models.StoreStatusActive},
	}}
	a := NewAllocator(ModePrimaryWithBackup, "STA", inv, dir)

	got, err := a.ComputeHybridStock(context.Background(), "a", "X")
	require.NoError(t, err)
	assert.Equal(t, 2+30, got)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"primary":             ModePrimary,
		"primary_with_backup": ModePrimaryWithBackup,
		"cluster":             ModeCluster,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("bogus")
	assert.Error(t, err)
}
