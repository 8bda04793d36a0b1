// internal/service/store/domain/state.go
package domain

// State 定义了订单的生命周期状态
type State string

const (
	StateCreated           State = "CREATED"            // 订单已在系统中记录，但未经验证
	StatePendingValidation State = "PENDING_VALIDATION" // 订单正在验证与预占库存
	StatePendingPayment    State = "PENDING_PAYMENT"    // 库存已预占，等待扣款
	StatePaymentSuccessful State = "PAYMENT_SUCCESSFUL" // 扣款成功，等待配送请求被确认
	StateDeliveryRequested State = "DELIVERY_REQUESTED" // 配送请求已发出，等待配送终态
	StateDelivered         State = "DELIVERED"          // 已送达
	StateCancelled         State = "CANCELLED"          // 已取消 (用户主动或系统超时)
	StateFailed            State = "FAILED"             // 订单处理失败
)

// IsTerminal 终态订单不再参与任何流转和超时扫描。
func (s State) IsTerminal() bool {
	switch s {
	case StateDelivered, StateCancelled, StateFailed:
		return true
	}
	return false
}

// InFlightStates 是超时监控器扫描的中间状态集合。
// CREATED 不在其中：还没进入 saga 的订单没有占用任何资源。
var InFlightStates = []State{
	StatePendingValidation,
	StatePendingPayment,
	StatePaymentSuccessful,
	StateDeliveryRequested,
}
