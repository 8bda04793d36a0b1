// internal/service/store/domain/port/notification.go
package port

import "context"

// Notification 面向客户的通知载体，由推送网关广播到在线连接。
type Notification struct {
	UserID  string `json:"userId"`
	OrderID string `json:"orderId"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// NotificationProducer 是通知通道的出站端口。
// 通知失败从不中断业务主流程。
type NotificationProducer interface {
	Send(ctx context.Context, notification *Notification) error
}
