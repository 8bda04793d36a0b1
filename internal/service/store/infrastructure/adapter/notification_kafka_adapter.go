// internal/service/store/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"orchard/internal/pkg/mq"
	"orchard/internal/service/store/domain/port"
)

// NotificationTopic 客户通知主题，推送网关消费它并广播到在线连接。
const NotificationTopic = "notifications-topic"

// NotificationKafkaAdapter 实现了 port.NotificationProducer 接口。
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

// NewNotificationKafkaAdapter 创建一个新的通知适配器。
func NewNotificationKafkaAdapter(brokers []string) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: mq.NewKafkaWriter(brokers, NotificationTopic)}
}

func (a *NotificationKafkaAdapter) Send(ctx context.Context, notification *port.Notification) error {
	payload, err := json.Marshal(map[string]interface{}{
		"userId":    notification.UserID,
		"orderId":   notification.OrderID,
		"subject":   notification.Subject,
		"message":   notification.Message,
		"timestamp": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	// 以用户为 key，同一用户的通知保序到达
	return mq.ProduceMessage(ctx, a.writer, []byte(notification.UserID), payload)
}

func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
