// internal/service/store/domain/event.go
package domain

import (
	"context"
	"time"
)

// OrderCreationRequested 是当用户请求创建一个新订单时发布的事件。
// 注意：这更像一个命令的载体，但在异步流程中，我们将其视为一个触发事件。
type OrderCreationRequested struct {
	EventID       string  `json:"eventId"`
	UserID        string  `json:"userId"`
	CustomerEmail string  `json:"customerEmail"`
	ProductID     string  `json:"productId"`
	Quantity      int     `json:"quantity"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

// DeliveryStatusChanged 是配送方广播的状态事件，订单方消费它
// 来推进订单终态并转发客户通知。
type DeliveryStatusChanged struct {
	OrderID   string    `json:"orderId"`
	NewStatus string    `json:"newStatus"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderProducer 把订单创建事件投递到异步通道。
type OrderProducer interface {
	PublishOrderCreation(ctx context.Context, event *OrderCreationRequested) error
}
