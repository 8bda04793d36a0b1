// internal/service/store/domain/errors.go
package domain

import "errors"

var (
	// ErrInvalidOrder 创建订单的必填字段缺失或非法。
	ErrInvalidOrder = errors.New("cannot create order with empty or invalid required fields")
	// ErrOrderNotFound 订单不存在。
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrderState 当前状态不允许这次流转。
	ErrInvalidOrderState = errors.New("invalid order state transition")
	// ErrOrderValidationFailed 订单未通过业务规则校验。
	ErrOrderValidationFailed = errors.New("order validation failed")
)
