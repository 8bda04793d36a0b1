// internal/service/delivery/domain/errors.go
package domain

import "errors"

var (
	// ErrDeliveryNotFound 订单没有配送记录。
	ErrDeliveryNotFound = errors.New("delivery not found")
	// ErrDeliveryTerminal 配送已处于终态，拒绝任何进一步流转。
	ErrDeliveryTerminal = errors.New("delivery already in terminal state")
	// ErrDeliveryCancelled 订单的配送已被取消（含乱序占位记录），
	// 后续的配送请求必须被拒绝而不是重开生命周期。
	ErrDeliveryCancelled = errors.New("delivery cancelled for this order")
)
