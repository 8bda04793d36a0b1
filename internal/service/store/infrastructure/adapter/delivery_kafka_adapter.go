// internal/service/store/infrastructure/adapter/delivery_kafka_adapter.go
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

const (
	deliveryRequestTopic      = "delivery-request-topic"
	deliveryCancellationTopic = "delivery-cancellation-topic"
)

// DeliveryKafkaAdapter 实现了 port.DeliveryService 接口。
// 配送是异步协作方，请求和取消都走消息。
type DeliveryKafkaAdapter struct {
	requestWriter *kafka.Writer
	cancelWriter  *kafka.Writer
}

// NewDeliveryKafkaAdapter 创建一个新的配送服务适配器。
func NewDeliveryKafkaAdapter(brokers []string) *DeliveryKafkaAdapter {
	return &DeliveryKafkaAdapter{
		requestWriter: mq.NewKafkaWriter(brokers, deliveryRequestTopic),
		cancelWriter:  mq.NewKafkaWriter(brokers, deliveryCancellationTopic),
	}
}

func (a *DeliveryKafkaAdapter) RequestDelivery(ctx context.Context, req *port.DeliveryRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal delivery request: %w", err)
	}
	return mq.ProduceMessage(ctx, a.requestWriter, []byte(req.OrderID), payload)
}

// CancelDelivery 实现了取消配送的补偿逻辑。
func (a *DeliveryKafkaAdapter) CancelDelivery(ctx context.Context, orderID, reason string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"orderId":   orderID,
		"reason":    reason,
		"timestamp": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal cancellation: %w", err)
	}
	return mq.ProduceMessage(ctx, a.cancelWriter, []byte(orderID), payload)
}

func (a *DeliveryKafkaAdapter) Close() error {
	if err := a.requestWriter.Close(); err != nil {
		return err
	}
	return a.cancelWriter.Close()
}
