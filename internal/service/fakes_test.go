package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fulfillment-service/internal/adapters"
	"fulfillment-service/internal/inventory"
	"fulfillment-service/internal/models"
)

// fakeStore is an in-memory stand-in for the sqlx store, mirroring the guard
// semantics of the real queries.
type fakeStore struct {
	mu        sync.Mutex
	stores    map[string]*models.Store
	inventory map[string]*models.InventoryRecord // storeID|sku
	splits    map[string]*models.SplitOrder
	tasks     map[string]*models.CourierTask
	processed map[string]bool

	createSplitsErr error
	clearHoldCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stores:    map[string]*models.Store{},
		inventory: map[string]*models.InventoryRecord{},
		splits:    map[string]*models.SplitOrder{},
		tasks:     map[string]*models.CourierTask{},
		processed: map[string]bool{},
	}
}

func invKey(storeID, sku string) string { return storeID + "|" + sku }

func (f *fakeStore) addStore(st models.Store) {
	f.stores[st.ID] = &st
}

func (f *fakeStore) addInventory(storeID, sku string, erp, buffer, online int) {
	f.inventory[invKey(storeID, sku)] = &models.InventoryRecord{
		StoreID: storeID, SKU: sku,
		ERPStock: erp, BufferStock: buffer, OnlineStock: online,
	}
}

func (f *fakeStore) addSplit(sp models.SplitOrder) {
	f.splits[sp.SplitID] = &sp
}

func (f *fakeStore) onlineStock(storeID, sku string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.inventory[invKey(storeID, sku)]
	if !ok {
		return 0
	}
	return rec.OnlineStock
}

func (f *fakeStore) split(splitID string) models.SplitOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.splits[splitID]
}

// SplitStore

func (f *fakeStore) CreateSplitOrders(_ context.Context, splits []models.SplitOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createSplitsErr != nil {
		return f.createSplitsErr
	}
	for i := range splits {
		sp := splits[i]
		f.splits[sp.SplitID] = &sp
	}
	return nil
}

func (f *fakeStore) GetSplitsByOrderRef(_ context.Context, orderRefID string) ([]models.SplitOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SplitOrder
	for _, sp := range f.splits {
		if sp.OrderRefID == orderRefID {
			out = append(out, *sp)
		}
	}
	return out, nil
}

// StockDB

func (f *fakeStore) ReserveOnlineStock(_ context.Context, storeID, sku string, qty int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.inventory[invKey(storeID, sku)]
	if !ok {
		return false, nil
	}
	if rec.ERPStock-rec.BufferStock-rec.OnlineStock < qty {
		return false, nil
	}
	rec.OnlineStock += qty
	return true, nil
}

func (f *fakeStore) ReserveOnlineStockFromBackup(_ context.Context, storeID, backupStoreID, sku string, qty int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.inventory[invKey(storeID, sku)]
	if !ok {
		return false, nil
	}
	own := rec.ERPStock - rec.BufferStock - rec.OnlineStock
	if own < 0 {
		own = 0
	}
	if own > qty {
		own = qty
	}
	overflow := qty - own
	if overflow > 0 {
		pool, ok := f.inventory[invKey(backupStoreID, sku)]
		if !ok || pool.BackupStock < overflow {
			return false, nil
		}
		pool.BackupStock -= overflow
	}
	rec.ERPStock += overflow
	rec.OnlineStock += qty
	return true, nil
}

func (f *fakeStore) ReleaseOnlineStock(_ context.Context, storeID, sku string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.inventory[invKey(storeID, sku)]
	if !ok {
		return nil
	}
	rec.OnlineStock -= qty
	if rec.OnlineStock < 0 {
		rec.OnlineStock = 0
	}
	return nil
}

// FulfillmentStore

func (f *fakeStore) GetSplitOrder(_ context.Context, splitID string) (*models.SplitOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.splits[splitID]
	if !ok {
		return nil, fmt.Errorf("split order %s not found", splitID)
	}
	cp := *sp
	cp.Items = append([]models.SplitItem(nil), sp.Items...)
	return &cp, nil
}

func (f *fakeStore) TransitionSplitStatus(_ context.Context, splitID, to string, from []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.splits[splitID]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if sp.OrderStatus == s {
			sp.OrderStatus = to
			sp.LastError = ""
			if sp.Timestamps == nil {
				sp.Timestamps = models.Timestamps{}
			}
			sp.Timestamps[to] = time.Now().Unix()
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CancelSplitOrder(_ context.Context, splitID, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.splits[splitID]
	if !ok {
		return false, nil
	}
	if models.TerminalStatus(sp.OrderStatus) {
		return false, nil
	}
	sp.OrderStatus = models.SplitStatusCancelled
	sp.CancelReason = reason
	return true, nil
}

func (f *fakeStore) SetSplitError(_ context.Context, splitID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sp, ok := f.splits[splitID]; ok {
		sp.LastError = msg
	}
	return nil
}

func (f *fakeStore) SetSplitOnHold(_ context.Context, splitID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sp, ok := f.splits[splitID]; ok {
		sp.OnHoldStatus = reason
		if sp.OrderStatus == models.SplitStatusNew {
			sp.OrderStatus = models.SplitStatusOnHold
		}
	}
	return nil
}

func (f *fakeStore) ClearHoldsForOrder(_ context.Context, orderRefID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearHoldCalls++
	for _, sp := range f.splits {
		if sp.OrderRefID == orderRefID && sp.OnHoldStatus == models.HoldAwaitingPayment {
			sp.OnHoldStatus = ""
			sp.FinancialStatus = models.SplitFinancialPaid
		}
	}
	return nil
}

func (f *fakeStore) SetSplitCourierTask(_ context.Context, splitID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sp, ok := f.splits[splitID]; ok {
		sp.CourierTaskID = taskID
	}
	return nil
}

func (f *fakeStore) SetSplitRider(_ context.Context, splitID, name, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sp, ok := f.splits[splitID]; ok {
		sp.RiderName = name
		sp.RiderPhone = phone
	}
	return nil
}

func (f *fakeStore) SetSplitFinancialStatus(_ context.Context, splitID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sp, ok := f.splits[splitID]; ok {
		sp.FinancialStatus = status
	}
	return nil
}

func (f *fakeStore) SetSplitPayout(_ context.Context, splitID string, price, tax, total int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sp, ok := f.splits[splitID]; ok {
		sp.PayoutPrice = price
		sp.PayoutTax = tax
		sp.PayoutTotal = total
	}
	return nil
}

func (f *fakeStore) GetStoreByID(_ context.Context, id string) (*models.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stores[id]
	if !ok {
		return nil, errors.New("store not found")
	}
	cp := *st
	return &cp, nil
}

func (f *fakeStore) GetStoreByCode(_ context.Context, code string) (*models.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.stores {
		if st.Code == code {
			cp := *st
			return &cp, nil
		}
	}
	return nil, errors.New("store not found")
}

func (f *fakeStore) ListActiveStores(_ context.Context) ([]models.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Store
	for _, st := range f.stores {
		if st.Status == models.StoreStatusActive {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertERPStock(_ context.Context, storeID, sku string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.inventory[invKey(storeID, sku)]
	if !ok {
		f.inventory[invKey(storeID, sku)] = &models.InventoryRecord{
			StoreID: storeID, SKU: sku, ERPStock: qty,
		}
		return nil
	}
	rec.ERPStock = qty
	return nil
}

func (f *fakeStore) Oversold(_ context.Context, storeID, sku string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.inventory[invKey(storeID, sku)]
	if !ok {
		return true, nil
	}
	return rec.ERPStock-rec.BufferStock-rec.OnlineStock < 0, nil
}

func (f *fakeStore) CreateCourierTask(_ context.Context, task *models.CourierTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *task
	f.tasks[task.TaskID] = &cp
	return nil
}

func (f *fakeStore) GetCourierTask(_ context.Context, taskID string) (*models.CourierTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("courier task %s not found", taskID)
	}
	cp := *task
	return &cp, nil
}

func (f *fakeStore) GetCourierTaskBySplit(_ context.Context, splitID string) (*models.CourierTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, task := range f.tasks {
		if task.SplitID == splitID {
			cp := *task
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AdvanceCourierTask(_ context.Context, taskID, status string, code int, message string, rider *models.RiderInfo) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return false, nil
	}
	if task.StatusCode >= code {
		return false, nil
	}
	task.Status = status
	task.StatusCode = code
	task.Message = message
	if rider != nil {
		if rider.Name != "" {
			task.PartnerName = rider.Name
		}
		if rider.Phone != "" {
			task.PartnerPhone = rider.Phone
		}
		if rider.Vehicle != "" {
			task.Vehicle = rider.Vehicle
		}
		if rider.Latitude != 0 || rider.Longitude != 0 {
			task.Latitude = rider.Latitude
			task.Longitude = rider.Longitude
		}
	}
	return true, nil
}

func (f *fakeStore) UpdateCourierLocation(_ context.Context, taskID string, lat, lng float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task, ok := f.tasks[taskID]; ok {
		task.Latitude = lat
		task.Longitude = lng
	}
	return nil
}

func (f *fakeStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[eventID], nil
}

func (f *fakeStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[eventID] = true
	return nil
}

// fakeAllocator returns canned allocations per SKU.
type fakeAllocator struct {
	plans map[string][]inventory.Allocation
	err   error
}

func (f *fakeAllocator) Allocate(_ context.Context, sku string, _ int, _, _ float64) ([]inventory.Allocation, error) {
	if f.err != nil {
		return nil, f.err
	}
	plan, ok := f.plans[sku]
	if !ok {
		return nil, fmt.Errorf("sku %s: %w", sku, inventory.ErrOutOfStock)
	}
	return plan, nil
}

type fakeERP struct {
	mu      sync.Mutex
	pushed  []string // split IDs
	pushErr error
	levels  map[string][]adapters.StockLevel // storeID
	pullErr error
}

func (f *fakeERP) PushOrder(_ context.Context, _, splitID string, _ []models.SplitItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, splitID)
	return nil
}

func (f *fakeERP) PullStock(_ context.Context, storeID string) ([]adapters.StockLevel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.levels[storeID], nil
}

type fakeCourier struct {
	mu        sync.Mutex
	created   []*adapters.CourierTaskRequest
	cancelled []string
	nextID    int
	createErr error
}

func (f *fakeCourier) CreateTask(_ context.Context, req *adapters.CourierTaskRequest) (*adapters.CourierTaskResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.created = append(f.created, req)
	return &adapters.CourierTaskResponse{
		TaskID:      fmt.Sprintf("task-%d", f.nextID),
		TrackingURL: fmt.Sprintf("https://track.example/%d", f.nextID),
	}, nil
}

func (f *fakeCourier) CancelTask(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

type fakePayment struct {
	mu      sync.Mutex
	tx      *models.PaymentTransaction
	refunds []int64
}

func (f *fakePayment) FindOriginalTransaction(_ context.Context, _ string) (*models.PaymentTransaction, error) {
	return f.tx, nil
}

func (f *fakePayment) Refund(_ context.Context, _ string, _ *models.PaymentTransaction, amount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, amount)
	return fmt.Sprintf("refund-%d", len(f.refunds)), nil
}

type fakeCommerce struct {
	mu             sync.Mutex
	orders         map[string]*models.Order
	fulfilled      []string // split IDs
	cancelledItems map[string]int
	finStatus      map[string]string
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{
		orders:         map[string]*models.Order{},
		cancelledItems: map[string]int{},
		finStatus:      map[string]string{},
	}
}

func (f *fakeCommerce) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	cp := *order
	return &cp, nil
}

func (f *fakeCommerce) MarkFulfilled(_ context.Context, _, splitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fulfilled = append(f.fulfilled, splitID)
	return nil
}

func (f *fakeCommerce) CancelLineItems(_ context.Context, orderID string, items []models.SplitItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledItems[orderID] += len(items)
	return nil
}

func (f *fakeCommerce) SetFinancialStatus(_ context.Context, orderID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finStatus[orderID] = status
	return nil
}
