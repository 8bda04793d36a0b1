// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"orchard/internal/pkg/logger"
)

// 死信消息上携带的原始上下文头。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionMessage  = "x-exception-message"
)

// FailureHandler 把处理失败的消息移交到死信主题。
// 移交之后原始 offset 照常提交，消费循环不会被一条毒消息卡死。
type FailureHandler struct {
	dltWriter *kafka.Writer
}

func NewFailureHandler(brokers []string, dltTopic string) *FailureHandler {
	return &FailureHandler{dltWriter: NewKafkaWriter(brokers, dltTopic)}
}

// Handle 记录失败并把消息连同原始上下文写入死信主题。
// 死信写入本身失败时只能记日志，消息会因为 offset 提交而丢失，
// 这里的日志就是最后的追查线索。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	logger.Ctx(ctx).Error().Err(cause).
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("message processing failed, forwarding to DLT")

	dltMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
		),
	}
	if err := h.dltWriter.WriteMessages(ctx, dltMsg); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Msg("🚨 CRITICAL: failed to forward message to DLT")
	}
}

func (h *FailureHandler) Close() error {
	return h.dltWriter.Close()
}
