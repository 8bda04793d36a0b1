// internal/service/delivery/domain/repository.go
package domain

import (
	"context"
	"time"
)

// DeliveryRepository 配送记录的持久化契约。
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *Delivery) error
	// FindByOrder 不存在时返回 nil, nil。一个订单至多一条配送记录。
	FindByOrder(ctx context.Context, orderID string) (*Delivery, error)
	// FindActive 返回所有非终态的配送，供巡检推进。
	FindActive(ctx context.Context) ([]*Delivery, error)
	Save(ctx context.Context, delivery *Delivery) error
}

// StatusEvent 每次状态流转对外广播的事件。
type StatusEvent struct {
	OrderID   string         `json:"orderId"`
	NewStatus DeliveryStatus `json:"newStatus"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

// StatusPublisher 把状态事件投递给订单方/通知方。
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event *StatusEvent) error
}
