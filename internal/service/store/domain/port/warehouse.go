// internal/service/store/domain/port/warehouse.go
package port

import "context"

// WarehouseAllocation 是仓库侧给出的分配建议。
type WarehouseAllocation struct {
	WarehouseID string `json:"warehouseId"`
	Quantity    int    `json:"quantity"`
}

// WarehouseService 是仓库/库存服务的出站端口。
type WarehouseService interface {
	// CheckAvailability 查询可用量并获取分配建议。
	// 数量不足时返回 available=false 而不是错误。
	CheckAvailability(ctx context.Context, productID string, qty int) (available bool, allocations []WarehouseAllocation, err error)

	// ReserveStock 按分配明细预占库存。
	ReserveStock(ctx context.Context, orderID, productID string, qty int, allocations []WarehouseAllocation) error

	// ConfirmReservation 支付成功后确认预占。
	ConfirmReservation(ctx context.Context, orderID string) error

	// ReleaseStock 是 ReserveStock 的补偿操作。
	// 订单没有可释放的预占时返回错误，调用方按幂等重放容忍它。
	ReleaseStock(ctx context.Context, orderID, reason string) error
}
