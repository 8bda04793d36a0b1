// internal/service/delivery/interfaces/kafka_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"orchard/internal/pkg/logger"
	"orchard/internal/pkg/mq"
	"orchard/internal/service/delivery/application"
)

const (
	// DeliveryRequestTopic 订单方投递配送请求的主题。
	DeliveryRequestTopic = "delivery-request-topic"
	// DeliveryCancellationTopic 订单方投递取消消息的主题。
	DeliveryCancellationTopic = "delivery-cancellation-topic"
)

// DeliveryConsumerAdapter 是一个驱动适配器，监听 Kafka 消息并驱动应用服务。
// 同一个适配器结构消费配送请求和取消两个主题，处理函数由构造时注入。
type DeliveryConsumerAdapter struct {
	reader         *kafka.Reader
	process        func(ctx context.Context, msg kafka.Message) error
	failureHandler *mq.FailureHandler
	wg             sync.WaitGroup
	stopped        bool
}

// NewDeliveryRequestConsumer 消费配送请求消息。
func NewDeliveryRequestConsumer(reader *kafka.Reader, svc *application.DeliveryService, failureHandler *mq.FailureHandler) *DeliveryConsumerAdapter {
	return &DeliveryConsumerAdapter{
		reader:         reader,
		failureHandler: failureHandler,
		process: func(ctx context.Context, msg kafka.Message) error {
			var req application.DeliveryRequest
			if err := json.Unmarshal(msg.Value, &req); err != nil {
				return err
			}
			return svc.CreateDelivery(ctx, &req)
		},
	}
}

// NewCancellationConsumer 消费取消消息。
func NewCancellationConsumer(reader *kafka.Reader, svc *application.DeliveryService, failureHandler *mq.FailureHandler) *DeliveryConsumerAdapter {
	return &DeliveryConsumerAdapter{
		reader:         reader,
		failureHandler: failureHandler,
		process: func(ctx context.Context, msg kafka.Message) error {
			var req application.CancellationRequest
			if err := json.Unmarshal(msg.Value, &req); err != nil {
				return err
			}
			return svc.CancelDelivery(ctx, &req)
		},
	}
}

// Start 开始监听 Kafka 主题。这是一个长期运行的方法。
func (a *DeliveryConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Delivery Consumer Adapter started.")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Delivery Consumer Adapter shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			propagator := otel.GetTextMapPropagator()
			headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
			newCtx := propagator.Extract(ctx, &headerCarrier)

			if processingErr := a.process(newCtx, msg); processingErr != nil {
				a.failureHandler.Handle(newCtx, msg, processingErr)
			}

			// 无论成功或失败（已移交死信），都提交 offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (a *DeliveryConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Delivery Consumer Adapter stopped.")
}
