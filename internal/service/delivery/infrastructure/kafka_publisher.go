// internal/service/delivery/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"orchard/internal/pkg/mq"
	"orchard/internal/service/delivery/domain"
)

// DeliveryStatusTopic 配送状态事件的广播主题。
const DeliveryStatusTopic = "delivery-status-topic"

// KafkaStatusPublisher 把配送状态事件写入 Kafka。
type KafkaStatusPublisher struct {
	writer *kafka.Writer
}

func NewKafkaStatusPublisher(brokers []string) *KafkaStatusPublisher {
	return &KafkaStatusPublisher{writer: mq.NewKafkaWriter(brokers, DeliveryStatusTopic)}
}

func (p *KafkaStatusPublisher) PublishStatus(ctx context.Context, event *domain.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	// 以订单号为 key，同一订单的状态事件保序
	return mq.ProduceMessage(ctx, p.writer, []byte(event.OrderID), payload)
}

func (p *KafkaStatusPublisher) Close() error {
	return p.writer.Close()
}
