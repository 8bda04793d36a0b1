// internal/service/store/domain/port/delivery.go
package port

import "context"

// DeliveryRequest 发给配送方的请求消息。
type DeliveryRequest struct {
	OrderID       string   `json:"orderId"`
	CustomerID    string   `json:"customerId"`
	CustomerEmail string   `json:"customerEmail"`
	WarehouseIDs  []string `json:"warehouseIds"`
	Products      []string `json:"products"`
}

// DeliveryService 是配送服务的出站端口。底层是异步消息，
// 方法返回只代表投递成功，不代表配送方已处理。
type DeliveryService interface {
	RequestDelivery(ctx context.Context, req *DeliveryRequest) error

	// CancelDelivery 是 RequestDelivery 的补偿操作。
	// 配送方用占位记录解决取消先到的乱序问题，这里只管投递。
	CancelDelivery(ctx context.Context, orderID, reason string) error
}
