// internal/service/warehouse/domain/inventory.go
package domain

import "time"

// InventoryRecord 是 (warehouse, product) 维度的库存台账。
// Version 是唯一的并发控制手段：每次成功变更 +1，
// 写入时携带读到的版本做 compare-and-swap，版本不符即落败重试。
type InventoryRecord struct {
	WarehouseID string
	ProductID   string
	Available   int
	Reserved    int
	Version     int
	UpdatedAt   time.Time
}

// CanReserve 预占的数量约束。
func (r *InventoryRecord) CanReserve(qty int) bool {
	return r.Available >= qty
}

// CanSettle 确认/释放共用的数量约束。
func (r *InventoryRecord) CanSettle(qty int) bool {
	return r.Reserved >= qty
}

// ApplyReserve 把可售库存转为预占。调用方必须先通过 CanReserve 检查，
// 持久化层负责用版本号保证这次变更没有和并发写冲突。
func (r *InventoryRecord) ApplyReserve(qty int) {
	r.Available -= qty
	r.Reserved += qty
	r.Version++
	r.UpdatedAt = time.Now()
}

// ApplyConfirm 支付成功后把预占库存真正扣减。
func (r *InventoryRecord) ApplyConfirm(qty int) {
	r.Reserved -= qty
	r.Version++
	r.UpdatedAt = time.Now()
}

// ApplyRelease 把预占库存退回可售。
func (r *InventoryRecord) ApplyRelease(qty int) {
	r.Reserved -= qty
	r.Available += qty
	r.Version++
	r.UpdatedAt = time.Now()
}

// Warehouse 仓库主数据。非 ACTIVE 的仓库不参与分配。
type Warehouse struct {
	ID      string
	Name    string
	Address string
	Status  string
}

const (
	WarehouseStatusActive   = "ACTIVE"
	WarehouseStatusInactive = "INACTIVE"
)

func (w *Warehouse) IsActive() bool {
	return w.Status == WarehouseStatusActive
}
