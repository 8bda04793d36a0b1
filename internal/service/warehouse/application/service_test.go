package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"

	"orchard/internal/service/warehouse/domain"
)

// ---- in-memory fakes ----

type memLedger struct {
	mu      sync.Mutex
	records map[string]*domain.InventoryRecord
	// 让前 N 次 CAS 人为落败，用来验证重试路径
	forcedConflicts int
}

func ledgerKey(warehouseID, productID string) string {
	return warehouseID + "/" + productID
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[string]*domain.InventoryRecord)}
}

func (l *memLedger) put(warehouseID, productID string, available, reserved int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[ledgerKey(warehouseID, productID)] = &domain.InventoryRecord{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Available:   available,
		Reserved:    reserved,
	}
}

func (l *memLedger) Find(_ context.Context, warehouseID, productID string) (*domain.InventoryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[ledgerKey(warehouseID, productID)]
	if !ok {
		return nil, domain.ErrInventoryNotFound
	}
	cp := *rec
	return &cp, nil
}

func (l *memLedger) FindByProduct(_ context.Context, productID string) ([]*domain.InventoryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.InventoryRecord
	for _, rec := range l.records {
		if rec.ProductID == productID && rec.Available > 0 {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *memLedger) cas(warehouseID, productID string, expectedVersion int, apply func(*domain.InventoryRecord) bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[ledgerKey(warehouseID, productID)]
	if !ok {
		return false, domain.ErrInventoryNotFound
	}
	if l.forcedConflicts > 0 {
		l.forcedConflicts--
		return false, nil
	}
	if rec.Version != expectedVersion {
		return false, nil
	}
	if !apply(rec) {
		return false, nil
	}
	return true, nil
}

func (l *memLedger) Reserve(_ context.Context, warehouseID, productID string, qty, expectedVersion int) (bool, error) {
	return l.cas(warehouseID, productID, expectedVersion, func(rec *domain.InventoryRecord) bool {
		if !rec.CanReserve(qty) {
			return false
		}
		rec.ApplyReserve(qty)
		return true
	})
}

func (l *memLedger) Confirm(_ context.Context, warehouseID, productID string, qty, expectedVersion int) (bool, error) {
	return l.cas(warehouseID, productID, expectedVersion, func(rec *domain.InventoryRecord) bool {
		if !rec.CanSettle(qty) {
			return false
		}
		rec.ApplyConfirm(qty)
		return true
	})
}

func (l *memLedger) Release(_ context.Context, warehouseID, productID string, qty, expectedVersion int) (bool, error) {
	return l.cas(warehouseID, productID, expectedVersion, func(rec *domain.InventoryRecord) bool {
		if !rec.CanSettle(qty) {
			return false
		}
		rec.ApplyRelease(qty)
		return true
	})
}

func (l *memLedger) Upsert(_ context.Context, record *domain.InventoryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *record
	l.records[ledgerKey(record.WarehouseID, record.ProductID)] = &cp
	return nil
}

func (l *memLedger) snapshot(warehouseID, productID string) domain.InventoryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.records[ledgerKey(warehouseID, productID)]
}

type memReservations struct {
	mu   sync.Mutex
	rows []*domain.Reservation
}

func (r *memReservations) Create(_ context.Context, res *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *res
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *memReservations) FindReserved(_ context.Context, orderID string) ([]*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Reservation
	for _, row := range r.rows {
		if row.OrderID == orderID && row.Status == domain.ReservationReserved {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memReservations) Save(_ context.Context, res *domain.Reservation) error {
	return nil
}

func (r *memReservations) countByStatus(orderID string, status domain.ReservationStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.OrderID == orderID && row.Status == status {
			n++
		}
	}
	return n
}

type memWarehouses struct {
	byID map[string]*domain.Warehouse
}

func (w *memWarehouses) FindByID(_ context.Context, id string) (*domain.Warehouse, error) {
	wh, ok := w.byID[id]
	if !ok {
		return nil, domain.ErrWarehouseNotFound
	}
	return wh, nil
}

func activeWarehouses(ids ...string) *memWarehouses {
	w := &memWarehouses{byID: make(map[string]*domain.Warehouse)}
	for _, id := range ids {
		w.byID[id] = &domain.Warehouse{ID: id, Name: "仓库-" + id, Status: domain.WarehouseStatusActive}
	}
	return w
}

func newTestService(ledger *memLedger, reservations *memReservations, warehouses *memWarehouses) *WarehouseService {
	return NewWarehouseService(ledger, reservations, warehouses, nil, otel.Tracer("warehouse-test"))
}

// ---- CheckAvailability ----

func TestCheckAvailability_GreedyAllocation(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 30, 0)
	ledger.put("WH-B", "P1", 50, 0)
	ledger.put("WH-C", "P1", 10, 0)
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A", "WH-B", "WH-C"))

	result, err := svc.CheckAvailability(context.Background(), "P1", 70)
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if !result.Available {
		t.Fatal("expected product to be available")
	}
	if result.TotalAvailableQuantity != 90 {
		t.Errorf("total = %d, want 90", result.TotalAvailableQuantity)
	}
	if result.FulfillmentStrategy != "MULTIPLE_WAREHOUSES" {
		t.Errorf("strategy = %s, want MULTIPLE_WAREHOUSES", result.FulfillmentStrategy)
	}
	// 贪心：先吃最大的 WH-B(50)，再从 WH-A 补 20
	if len(result.Warehouses) != 2 {
		t.Fatalf("allocated across %d warehouses, want 2", len(result.Warehouses))
	}
	if result.Warehouses[0].WarehouseID != "WH-B" || result.Warehouses[0].AllocatedQuantity != 50 {
		t.Errorf("first allocation = %+v, want WH-B/50", result.Warehouses[0])
	}
	if result.Warehouses[1].WarehouseID != "WH-A" || result.Warehouses[1].AllocatedQuantity != 20 {
		t.Errorf("second allocation = %+v, want WH-A/20", result.Warehouses[1])
	}
}

func TestCheckAvailability_SingleWarehouse(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 100, 0)
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A"))

	result, err := svc.CheckAvailability(context.Background(), "P1", 10)
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if result.FulfillmentStrategy != "SINGLE_WAREHOUSE" {
		t.Errorf("strategy = %s, want SINGLE_WAREHOUSE", result.FulfillmentStrategy)
	}
}

func TestCheckAvailability_InsufficientTotal(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 3, 0)
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A"))

	result, err := svc.CheckAvailability(context.Background(), "P1", 10)
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if result.Available {
		t.Error("expected unavailable when total < requested")
	}
	if result.TotalAvailableQuantity != 3 {
		t.Errorf("total = %d, want 3", result.TotalAvailableQuantity)
	}
}

func TestCheckAvailability_SkipsInactiveWarehouse(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 100, 0)
	ledger.put("WH-B", "P1", 5, 0)
	warehouses := activeWarehouses("WH-A", "WH-B")
	warehouses.byID["WH-A"].Status = domain.WarehouseStatusInactive
	svc := newTestService(ledger, &memReservations{}, warehouses)

	result, err := svc.CheckAvailability(context.Background(), "P1", 10)
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	// 总量 105 够，但活跃仓库只有 5
	if result.Available {
		t.Error("expected unavailable when active warehouses cannot cover the quantity")
	}
}

// ---- ReserveStock ----

func TestReserveStock_MultiWarehouse(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 50, 0)
	ledger.put("WH-B", "P1", 30, 0)
	reservations := &memReservations{}
	svc := newTestService(ledger, reservations, activeWarehouses("WH-A", "WH-B"))

	err := svc.ReserveStock(context.Background(), "ORD-1", "P1", 70, []Allocation{
		{WarehouseID: "WH-A", Quantity: 50},
		{WarehouseID: "WH-B", Quantity: 20},
	})
	if err != nil {
		t.Fatalf("ReserveStock: %v", err)
	}

	recA := ledger.snapshot("WH-A", "P1")
	if recA.Available != 0 || recA.Reserved != 50 || recA.Version != 1 {
		t.Errorf("WH-A = %+v, want available=0 reserved=50 version=1", recA)
	}
	recB := ledger.snapshot("WH-B", "P1")
	if recB.Available != 10 || recB.Reserved != 20 {
		t.Errorf("WH-B = %+v, want available=10 reserved=20", recB)
	}
	if n := reservations.countByStatus("ORD-1", domain.ReservationReserved); n != 2 {
		t.Errorf("reservation rows = %d, want 2", n)
	}
}

func TestReserveStock_AllocationMismatch(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 50, 0)
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A"))

	err := svc.ReserveStock(context.Background(), "ORD-1", "P1", 10, []Allocation{
		{WarehouseID: "WH-A", Quantity: 7},
	})
	if !errors.Is(err, domain.ErrAllocationMismatch) {
		t.Fatalf("err = %v, want ErrAllocationMismatch", err)
	}
}

func TestReserveStock_InsufficientStockIsTerminal(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 5, 0)
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A"))

	err := svc.ReserveStock(context.Background(), "ORD-1", "P1", 10, []Allocation{
		{WarehouseID: "WH-A", Quantity: 10},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
}

func TestReserveStock_RetriesOnVersionConflict(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 50, 0)
	ledger.forcedConflicts = 2 // 前两次 CAS 落败，第三次成功
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A"))

	err := svc.ReserveStock(context.Background(), "ORD-1", "P1", 10, []Allocation{
		{WarehouseID: "WH-A", Quantity: 10},
	})
	if err != nil {
		t.Fatalf("ReserveStock should succeed on third attempt: %v", err)
	}
	if rec := ledger.snapshot("WH-A", "P1"); rec.Reserved != 10 {
		t.Errorf("reserved = %d, want 10", rec.Reserved)
	}
}

func TestReserveStock_ExhaustsRetries(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 50, 0)
	ledger.forcedConflicts = maxRetryAttempts
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A"))

	err := svc.ReserveStock(context.Background(), "ORD-1", "P1", 10, []Allocation{
		{WarehouseID: "WH-A", Quantity: 10},
	})
	if !errors.Is(err, domain.ErrReservationConflict) {
		t.Fatalf("err = %v, want ErrReservationConflict", err)
	}
}

// 并发抢同一行库存：总预占量不得超过可售量，且台账守恒。
func TestReserveStock_ConcurrentOversellProtection(t *testing.T) {
	const (
		initial = 50
		workers = 100
	)
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", initial, 0)
	reservations := &memReservations{}
	svc := newTestService(ledger, reservations, activeWarehouses("WH-A"))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			orderID := fmt.Sprintf("ORD-%d", n)
			// 冲突在这里是常态，耗尽重试的失败也算正常结果
			_ = svc.ReserveStock(context.Background(), orderID, "P1", 1, []Allocation{
				{WarehouseID: "WH-A", Quantity: 1},
			})
		}(i)
	}
	wg.Wait()

	rec := ledger.snapshot("WH-A", "P1")
	if rec.Available < 0 {
		t.Fatalf("oversold: available = %d", rec.Available)
	}
	if rec.Available+rec.Reserved != initial {
		t.Errorf("ledger not conserved: available=%d reserved=%d, sum want %d",
			rec.Available, rec.Reserved, initial)
	}
	reservations.mu.Lock()
	rows := len(reservations.rows)
	reservations.mu.Unlock()
	if rows != rec.Reserved {
		t.Errorf("reservation rows = %d but ledger reserved = %d", rows, rec.Reserved)
	}
}

// ---- Confirm / Release ----

func TestConfirmReservation(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 40, 10)
	reservations := &memReservations{}
	reservations.Create(context.Background(), domain.NewReservation("ORD-1", "WH-A", "P1", 10))
	svc := newTestService(ledger, reservations, activeWarehouses("WH-A"))

	if err := svc.ConfirmReservation(context.Background(), "ORD-1"); err != nil {
		t.Fatalf("ConfirmReservation: %v", err)
	}
	rec := ledger.snapshot("WH-A", "P1")
	if rec.Available != 40 || rec.Reserved != 0 {
		t.Errorf("after confirm: %+v, want available=40 reserved=0", rec)
	}
}

func TestReleaseStock_ReturnsToAvailable(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 40, 10)
	reservations := &memReservations{}
	reservations.Create(context.Background(), domain.NewReservation("ORD-1", "WH-A", "P1", 10))
	svc := newTestService(ledger, reservations, activeWarehouses("WH-A"))

	if err := svc.ReleaseStock(context.Background(), "ORD-1", "ORDER_CANCELLED"); err != nil {
		t.Fatalf("ReleaseStock: %v", err)
	}
	rec := ledger.snapshot("WH-A", "P1")
	if rec.Available != 50 || rec.Reserved != 0 {
		t.Errorf("after release: %+v, want available=50 reserved=0", rec)
	}
}

func TestReleaseStock_NoReservedRows(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 40, 0)
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A"))

	err := svc.ReleaseStock(context.Background(), "ORD-404", "ORDER_CANCELLED")
	if !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("err = %v, want ErrReservationNotFound", err)
	}
}

// 释放后再次释放：第一次已把记录转为 RELEASED，第二次必须报错。
func TestReleaseStock_DoubleReleaseRejected(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 40, 10)
	reservations := &memReservations{}
	reservations.Create(context.Background(), domain.NewReservation("ORD-1", "WH-A", "P1", 10))
	svc := newTestService(ledger, reservations, activeWarehouses("WH-A"))

	if err := svc.ReleaseStock(context.Background(), "ORD-1", "ORDER_CANCELLED"); err != nil {
		t.Fatalf("first release: %v", err)
	}
	err := svc.ReleaseStock(context.Background(), "ORD-1", "ORDER_CANCELLED")
	if !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("second release err = %v, want ErrReservationNotFound", err)
	}
	rec := ledger.snapshot("WH-A", "P1")
	if rec.Available != 50 {
		t.Errorf("available = %d, double release must not inflate stock", rec.Available)
	}
}

// ---- UpdateStock ----

func TestUpdateStock(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 10, 0)
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A"))
	ctx := context.Background()

	tests := []struct {
		op      string
		qty     int
		want    int
		wantErr bool
	}{
		{op: "ADD", qty: 5, want: 15},
		{op: "SET", qty: 100, want: 100},
		{op: "SUBTRACT", qty: 30, want: 70},
		{op: "SUBTRACT", qty: 200, wantErr: true},
		{op: "MULTIPLY", qty: 2, wantErr: true},
	}
	for _, tt := range tests {
		rec, err := svc.UpdateStock(ctx, "WH-A", "P1", tt.op, tt.qty)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s %d: expected error", tt.op, tt.qty)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s %d: %v", tt.op, tt.qty, err)
		}
		if rec.Available != tt.want {
			t.Errorf("%s %d: available = %d, want %d", tt.op, tt.qty, rec.Available, tt.want)
		}
	}
}

func TestUpdateStock_CreatesRowOnFirstStocking(t *testing.T) {
	ledger := newMemLedger()
	svc := newTestService(ledger, &memReservations{}, activeWarehouses("WH-A"))

	rec, err := svc.UpdateStock(context.Background(), "WH-A", "P-NEW", "ADD", 25)
	if err != nil {
		t.Fatalf("UpdateStock: %v", err)
	}
	if rec.Available != 25 || rec.Version != 1 {
		t.Errorf("new row = %+v, want available=25 version=1", rec)
	}
}

// ---- 场景：部分预占成功后整体失败，补偿释放 ----

func TestReserveThenCompensate(t *testing.T) {
	ledger := newMemLedger()
	ledger.put("WH-A", "P1", 50, 0)
	ledger.put("WH-B", "P1", 3, 0)
	reservations := &memReservations{}
	svc := newTestService(ledger, reservations, activeWarehouses("WH-A", "WH-B"))
	ctx := context.Background()

	// WH-B 数量不足，整体预占失败，但 WH-A 可能已经预占成功
	err := svc.ReserveStock(ctx, "ORD-1", "P1", 15, []Allocation{
		{WarehouseID: "WH-A", Quantity: 10},
		{WarehouseID: "WH-B", Quantity: 5},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	// 补偿路径：有残留就释放，什么都没占到就容忍 not found
	if err := svc.ReleaseStock(ctx, "ORD-1", "RESERVATION_FAILED"); err != nil {
		if !errors.Is(err, domain.ErrReservationNotFound) {
			t.Fatalf("compensation release: %v", err)
		}
	}

	recA := ledger.snapshot("WH-A", "P1")
	recB := ledger.snapshot("WH-B", "P1")
	if recA.Reserved != 0 || recB.Reserved != 0 {
		t.Errorf("compensation left reserved stock: WH-A=%d WH-B=%d", recA.Reserved, recB.Reserved)
	}
	if recA.Available != 50 || recB.Available != 3 {
		t.Errorf("stock not restored: WH-A=%d WH-B=%d", recA.Available, recB.Available)
	}
}
