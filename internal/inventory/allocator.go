package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// ErrOutOfStock is returned when no store can serve a requested SKU quantity.
var ErrOutOfStock = errors.New("out of stock")

// Mode selects how hybrid stock is derived and which stores may serve a SKU.
type Mode int

const (
	ModePrimary Mode = iota
	ModePrimaryWithBackup
	ModeCluster
)

// ParseMode maps the configured mode string to its variant.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "primary":
		return ModePrimary, nil
	case "primary_with_backup":
		return ModePrimaryWithBackup, nil
	case "cluster":
		return ModeCluster, nil
	default:
		return ModePrimary, fmt.Errorf("unknown inventory mode: %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModePrimaryWithBackup:
		return "primary_with_backup"
	case ModeCluster:
		return "cluster"
	default:
		return "primary"
	}
}

// InventoryReader is the read side of the inventory store.
type InventoryReader interface {
	GetInventoryRecord(ctx context.Context, storeID, sku string) (*models.InventoryRecord, error)
	GetInventoryRecordsBySKU(ctx context.Context, sku string) ([]models.InventoryRecord, error)
}

// StoreDirectory resolves retail stores.
type StoreDirectory interface {
	GetStoreByID(ctx context.Context, id string) (*models.Store, error)
	GetStoreByCode(ctx context.Context, code string) (*models.Store, error)
	ListActiveStores(ctx context.Context) ([]models.Store, error)
}

// Allocator derives sellable hybrid stock per (store, SKU) and decides which
// stores can serve a requested quantity.
type Allocator struct {
	mode         Mode
	primaryStore string // store code, primary modes only
	inv          InventoryReader
	stores       StoreDirectory
	logger       *zap.Logger
}

// NewAllocator creates an allocator for the configured mode.
func NewAllocator(mode Mode, primaryStoreCode string, inv InventoryReader, stores StoreDirectory) *Allocator {
	return &Allocator{
		mode:         mode,
		primaryStore: primaryStoreCode,
		inv:          inv,
		stores:       stores,
		logger:       util.GetLogger(),
	}
}

// Mode returns the configured inventory mode.
func (a *Allocator) Mode() Mode {
	return a.mode
}

// HybridStock derives the sellable quantity from one record under the given
// mode. backup is the backup store's record and may be nil; it only
// contributes in primary-with-backup mode when the primary pool has fallen
// below the record's threshold.
func HybridStock(mode Mode, rec *models.InventoryRecord, backup *models.InventoryRecord) int {
	base := rec.ERPStock - rec.BufferStock - rec.OnlineStock
	if base < 0 {
		base = 0
	}
	if mode == ModePrimaryWithBackup && base < rec.ThresholdStock && backup != nil {
		base += backup.BackupStock
	}
	return base
}

// ComputeHybridStock derives the current sellable quantity for one (store, SKU).
func (a *Allocator) ComputeHybridStock(ctx context.Context, storeID, sku string) (int, error) {
	rec, err := a.inv.GetInventoryRecord(ctx, storeID, sku)
	if err != nil {
		return 0, err
	}

	var backup *models.InventoryRecord
	if a.mode == ModePrimaryWithBackup {
		backup, err = a.backupRecord(ctx, storeID, sku)
		if err != nil {
			a.logger.Warn("Backup stock unavailable",
				zap.String("store_id", storeID),
				zap.String("sku", sku),
				zap.Error(err))
		}
	}

	return HybridStock(a.mode, rec, backup), nil
}

// backupRecord resolves the inventory row at the store's designated backup
// warehouse. Missing configuration is not an error; there is just no pool.
func (a *Allocator) backupRecord(ctx context.Context, storeID, sku string) (*models.InventoryRecord, error) {
	st, err := a.stores.GetStoreByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if st.BackupStoreCode == "" {
		return nil, nil
	}
	backupStore, err := a.stores.GetStoreByCode(ctx, st.BackupStoreCode)
	if err != nil {
		return nil, err
	}
	return a.inv.GetInventoryRecord(ctx, backupStore.ID, sku)
}

// RankedStore is a candidate store for serving a SKU.
type RankedStore struct {
	Store    models.Store
	Hybrid   int
	Distance float64
}

// Allocation assigns part of a requested quantity to one store.
type Allocation struct {
	StoreID   string
	StoreCode string
	StoreName string
	Qty       int
}

// EligibleStores returns the stores able to serve the full requested quantity
// of a SKU, ranked. In the primary modes this is at most the primary store; in
// cluster mode members are ordered by ascending distance to the delivery
// destination, then descending hybrid stock, then store code.
func (a *Allocator) EligibleStores(ctx context.Context, sku string, qty int, destLat, destLng float64) ([]RankedStore, error) {
	ranked, err := a.rankStores(ctx, sku, destLat, destLng)
	if err != nil {
		return nil, err
	}

	eligible := make([]RankedStore, 0, len(ranked))
	for _, rs := range ranked {
		if rs.Hybrid >= qty {
			eligible = append(eligible, rs)
		}
	}
	return eligible, nil
}

// Allocate assigns a requested quantity across stores, greedy highest-rank
// first: the top-ranked store takes the greatest feasible amount, the
// remainder rolls to the next rank. Deterministic for a given inventory
// snapshot. Returns ErrOutOfStock when the full quantity cannot be covered.
func (a *Allocator) Allocate(ctx context.Context, sku string, qty int, destLat, destLng float64) ([]Allocation, error) {
	ranked, err := a.rankStores(ctx, sku, destLat, destLng)
	if err != nil {
		return nil, err
	}

	remaining := qty
	allocations := make([]Allocation, 0, 1)
	for _, rs := range ranked {
		if remaining == 0 {
			break
		}
		if rs.Hybrid <= 0 {
			continue
		}
		take := rs.Hybrid
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, Allocation{
			StoreID:   rs.Store.ID,
			StoreCode: rs.Store.Code,
			StoreName: rs.Store.Name,
			Qty:       take,
		})
		remaining -= take
	}

	if remaining > 0 {
		util.AllocationsOutOfStock.WithLabelValues(a.mode.String()).Inc()
		return nil, fmt.Errorf("sku %s short by %d: %w", sku, remaining, ErrOutOfStock)
	}
	return allocations, nil
}

// rankStores builds the ordered candidate list for a SKU under the current
// mode. SKUs below their threshold are treated as unavailable.
func (a *Allocator) rankStores(ctx context.Context, sku string, destLat, destLng float64) ([]RankedStore, error) {
	switch a.mode {
	case ModePrimary, ModePrimaryWithBackup:
		primary, err := a.stores.GetStoreByCode(ctx, a.primaryStore)
		if err != nil {
			return nil, fmt.Errorf("primary store lookup failed: %w", err)
		}
		hybrid, err := a.ComputeHybridStock(ctx, primary.ID, sku)
		if err != nil {
			return nil, err
		}
		rec, err := a.inv.GetInventoryRecord(ctx, primary.ID, sku)
		if err != nil {
			return nil, err
		}
		if a.mode == ModePrimary && hybrid < rec.ThresholdStock {
			return nil, nil
		}
		return []RankedStore{{
			Store:    *primary,
			Hybrid:   hybrid,
			Distance: haversineKM(primary.Latitude, primary.Longitude, destLat, destLng),
		}}, nil

	case ModeCluster:
		return a.rankCluster(ctx, sku, destLat, destLng)

	default:
		return nil, fmt.Errorf("unknown inventory mode: %d", a.mode)
	}
}

func (a *Allocator) rankCluster(ctx context.Context, sku string, destLat, destLng float64) ([]RankedStore, error) {
	stores, err := a.stores.ListActiveStores(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Store, len(stores))
	for _, st := range stores {
		byID[st.ID] = st
	}

	recs, err := a.inv.GetInventoryRecordsBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedStore, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		st, ok := byID[rec.StoreID]
		if !ok {
			continue
		}
		dist := haversineKM(st.Latitude, st.Longitude, destLat, destLng)
		if st.DeliveryRadius > 0 && dist > st.DeliveryRadius {
			continue
		}
		hybrid := HybridStock(a.mode, rec, nil)
		if hybrid < rec.ThresholdStock {
			continue
		}
		ranked = append(ranked, RankedStore{Store: st, Hybrid: hybrid, Distance: dist})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		if ranked[i].Hybrid != ranked[j].Hybrid {
			return ranked[i].Hybrid > ranked[j].Hybrid
		}
		return ranked[i].Store.Code < ranked[j].Store.Code
	})
	return ranked, nil
}

const earthRadiusKM = 6371.0

func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
