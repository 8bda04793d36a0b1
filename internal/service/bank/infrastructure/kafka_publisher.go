// internal/service/bank/infrastructure/kafka_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"orchard/internal/pkg/mq"
	"orchard/internal/service/bank/domain"
)

// TransactionResultTopic 流水结果事件的广播主题。
const TransactionResultTopic = "transaction-results-topic"

// KafkaResultPublisher 把流水结果事件写入 Kafka。
type KafkaResultPublisher struct {
	writer *kafka.Writer
}

func NewKafkaResultPublisher(brokers []string) *KafkaResultPublisher {
	return &KafkaResultPublisher{writer: mq.NewKafkaWriter(brokers, TransactionResultTopic)}
}

func (p *KafkaResultPublisher) PublishResult(ctx context.Context, result *domain.TransactionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal transaction result: %w", err)
	}
	// 以订单号为 key，同一订单的结果进同一分区保序
	return mq.ProduceMessage(ctx, p.writer, []byte(result.OrderID), payload)
}

func (p *KafkaResultPublisher) Close() error {
	return p.writer.Close()
}
