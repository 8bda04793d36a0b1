// internal/service/warehouse/domain/errors.go
package domain

import "errors"

var (
	// ErrInsufficientStock 库存数量不满足请求，终态失败。
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservationConflict 乐观版本冲突，瞬时错误，调用方可重试。
	ErrReservationConflict = errors.New("reservation conflict: version mismatch")
	// ErrReservationNotFound 订单没有处于 RESERVED 状态的预占记录。
	// 重复释放会命中这个错误，从而在日志里可见，而不是被当作 no-op。
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrInvalidStatusTransition 预占记录已处于终态。
	ErrInvalidStatusTransition = errors.New("invalid reservation status transition")
	// ErrAllocationMismatch 分配明细的数量之和与请求总量不一致。
	ErrAllocationMismatch = errors.New("allocated quantity does not match requested quantity")
	// ErrInventoryNotFound 指定 (warehouse, product) 没有库存行。
	ErrInventoryNotFound = errors.New("inventory not found")
	// ErrWarehouseNotFound 仓库不存在。
	ErrWarehouseNotFound = errors.New("warehouse not found")
	// ErrInvalidQuantity 数量非法（为零、为负或会把库存减成负数）。
	ErrInvalidQuantity = errors.New("invalid quantity")
)
