// internal/service/warehouse/domain/repository.go
package domain

import "context"

// InventoryLedger 是库存台账的持久化契约。
// Reserve/Confirm/Release 都是单次条件变更：存储版本等于 expectedVersion
// 且数量约束成立时才生效，返回 applied=false 表示这次变更没有落盘，
// 绝不存在部分生效。
type InventoryLedger interface {
	Find(ctx context.Context, warehouseID, productID string) (*InventoryRecord, error)
	// FindByProduct 返回指定商品所有 available > 0 的库存行。
	FindByProduct(ctx context.Context, productID string) ([]*InventoryRecord, error)

	Reserve(ctx context.Context, warehouseID, productID string, qty, expectedVersion int) (applied bool, err error)
	Confirm(ctx context.Context, warehouseID, productID string, qty, expectedVersion int) (applied bool, err error)
	Release(ctx context.Context, warehouseID, productID string, qty, expectedVersion int) (applied bool, err error)

	// Upsert 供库存管理使用：首次铺货时创建行，之后整行覆盖。
	Upsert(ctx context.Context, record *InventoryRecord) error
}

// ReservationRepository 预占记录的持久化契约。
type ReservationRepository interface {
	Create(ctx context.Context, reservation *Reservation) error
	// FindReserved 返回订单所有 RESERVED 状态的预占。
	FindReserved(ctx context.Context, orderID string) ([]*Reservation, error)
	Save(ctx context.Context, reservation *Reservation) error
}

// WarehouseRepository 仓库主数据。
type WarehouseRepository interface {
	FindByID(ctx context.Context, id string) (*Warehouse, error)
}

// AvailabilityCache 是可用量查询的读路径缓存。
// 写路径从不信任缓存，所有变更后必须 Invalidate。
type AvailabilityCache interface {
	GetTotal(ctx context.Context, productID string) (total int, ok bool, err error)
	SetTotal(ctx context.Context, productID string, total int) error
	Invalidate(ctx context.Context, productID string) error
}
