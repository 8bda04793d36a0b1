package infrastructure

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"orchard/internal/pkg/mq"
	"orchard/internal/service/store/domain"
)

const OrderCreationTopic = "order-creation-topic"

type OrderProducerAdapter struct {
	writer *kafka.Writer
}

func NewOrderProducerAdapter(writer *kafka.Writer) *OrderProducerAdapter {
	return &OrderProducerAdapter{writer: writer}
}

func (p *OrderProducerAdapter) PublishOrderCreation(ctx context.Context, event *domain.OrderCreationRequested) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: Failed to marshal order creation event: %v", err)
		return err
	}

	// 以 userId 作为分区键，同一用户的下单请求保持顺序
	err = mq.ProduceMessage(ctx, p.writer, []byte(event.UserID), eventBytes)
	if err != nil {
		log.Printf("ERROR: Failed to produce order creation message: %v", err)
		return err
	}
	return nil
}
