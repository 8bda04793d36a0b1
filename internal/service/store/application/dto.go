// internal/service/store/application/dto.go
package application

import "orchard/internal/service/store/domain"

// CreateOrderRequest 是接口层提交的下单请求。
type CreateOrderRequest struct {
	EventID       string  `json:"-"`
	UserID        string  `json:"userId"`
	CustomerEmail string  `json:"customerEmail"`
	ProductID     string  `json:"productId"`
	Quantity      int     `json:"quantity"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

// ToOrderCreationEvent 将应用层 DTO 转换为领域事件。
func (r *CreateOrderRequest) ToOrderCreationEvent() *domain.OrderCreationRequested {
	return &domain.OrderCreationRequested{
		EventID:       r.EventID,
		UserID:        r.UserID,
		CustomerEmail: r.CustomerEmail,
		ProductID:     r.ProductID,
		Quantity:      r.Quantity,
		Amount:        r.Amount,
		Currency:      r.Currency,
	}
}

// CreateOrderResponse 下单接口的即时响应，真正的处理是异步的。
type CreateOrderResponse struct {
	OrderID string       `json:"orderId"`
	Status  domain.State `json:"status"`
	Message string       `json:"message"`
}
