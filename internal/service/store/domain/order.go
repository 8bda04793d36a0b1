// internal/service/store/domain/order.go
package domain

import (
	"time"
)

// Order 是订单聚合的根实体
type Order struct {
	ID            string
	UserID        string
	CustomerEmail string
	ProductID     string
	Quantity      int
	Amount        float64
	Currency      string
	State         State
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// 工厂函数: NewOrder 用于创建一个新的订单实例
func NewOrder(event *OrderCreationRequested) (*Order, error) {
	if event.EventID == "" || event.UserID == "" || event.ProductID == "" {
		return nil, ErrInvalidOrder
	}
	if event.Quantity <= 0 || event.Amount <= 0 {
		return nil, ErrInvalidOrder
	}

	now := time.Now()
	return &Order{
		ID:            event.EventID,
		UserID:        event.UserID,
		CustomerEmail: event.CustomerEmail,
		ProductID:     event.ProductID,
		Quantity:      event.Quantity,
		Amount:        event.Amount,
		Currency:      event.Currency,
		State:         StateCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (o *Order) transition(from []State, to State) error {
	for _, s := range from {
		if o.State == s {
			o.State = to
			o.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrInvalidOrderState
}

// MarkAsPendingValidation 进入 saga：开始验证与库存预占。
func (o *Order) MarkAsPendingValidation() error {
	return o.transition([]State{StateCreated}, StatePendingValidation)
}

// MarkAsPendingPayment 库存预占完成，等待扣款。
func (o *Order) MarkAsPendingPayment() error {
	return o.transition([]State{StatePendingValidation}, StatePendingPayment)
}

// MarkAsPaymentSuccessful 扣款成功。
func (o *Order) MarkAsPaymentSuccessful() error {
	return o.transition([]State{StatePendingPayment}, StatePaymentSuccessful)
}

// MarkAsDeliveryRequested 配送请求已发出。
func (o *Order) MarkAsDeliveryRequested() error {
	return o.transition([]State{StatePaymentSuccessful}, StateDeliveryRequested)
}

// MarkAsDelivered 配送完成，订单走到成功终态。
func (o *Order) MarkAsDelivered() error {
	return o.transition([]State{StateDeliveryRequested}, StateDelivered)
}

// Cancel 用户主动取消。终态订单不可取消。
func (o *Order) Cancel() error {
	if o.State.IsTerminal() {
		return ErrInvalidOrderState
	}
	o.State = StateCancelled
	o.UpdatedAt = time.Now()
	return nil
}

// MarkAsFailed 将订单标记为失败。幂等：重复标记只更新原因。
func (o *Order) MarkAsFailed(reason string) {
	o.State = StateFailed
	o.FailureReason = reason
	o.UpdatedAt = time.Now()
}

// RequiresRefund 判断补偿时是否需要退款：扣款成功之后的状态才有钱可退。
func (o *Order) RequiresRefund() bool {
	return o.State == StatePaymentSuccessful || o.State == StateDeliveryRequested
}
