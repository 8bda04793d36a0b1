// internal/service/store/domain/repository.go
package domain

import (
	"context"
	"time"
)

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Save 保存一个订单聚合（用于创建或更新）。
	Save(ctx context.Context, order *Order) error

	// FindByID 根据 ID 查找一个订单聚合。
	FindByID(ctx context.Context, id string) (*Order, error)

	// FindStalled 返回处于给定状态、且 updated_at 早于 before 的订单，
	// 供超时监控器扫描。
	FindStalled(ctx context.Context, states []State, before time.Time) ([]*Order, error)
}
