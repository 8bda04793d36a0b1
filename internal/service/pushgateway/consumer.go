// internal/service/pushgateway/consumer.go
package pushgateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"orchard/internal/pkg/logger"
)

// notificationEvent 对应 notifications-topic 上的消息体。
type notificationEvent struct {
	UserID  string `json:"userId"`
	OrderID string `json:"orderId"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// NotificationConsumer 消费通知主题并通过 Hub 推送给在线用户。
// 离线用户的通知直接丢弃，订单状态本身持久在订单库里。
type NotificationConsumer struct {
	reader *kafka.Reader
	hub    *Hub
}

func NewNotificationConsumer(reader *kafka.Reader, hub *Hub) *NotificationConsumer {
	return &NotificationConsumer{reader: reader, hub: hub}
}

func (c *NotificationConsumer) Start(ctx context.Context) {
	logger.Ctx(ctx).Info().Str("topic", c.reader.Config().Topic).Msg("✅ Notification consumer started.")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 Notification consumer shutting down.")
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not read notification message")
			time.Sleep(time.Second)
			continue
		}

		var event notificationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal notification, dropping")
			continue
		}

		if delivered := c.hub.Push(event.UserID, msg.Value); !delivered {
			logger.Ctx(ctx).Debug().Str("user", event.UserID).Str("order", event.OrderID).
				Msg("user offline, notification dropped")
		}
	}
}

func (c *NotificationConsumer) Stop() error {
	return c.reader.Close()
}
