// internal/service/store/interfaces/order_creation_handler.go
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
	"orchard/internal/service/store/application"
	"orchard/internal/service/store/domain"
)

// OrderConsumerAdapter 是一个驱动适配器，它监听Kafka消息并驱动应用服务。
type OrderConsumerAdapter struct {
	reader  *kafka.Reader
	appSvc  *application.OrderApplicationService
	wg      sync.WaitGroup
	stopped bool

	failureHandler *mq.FailureHandler
}

// NewOrderConsumerAdapter 创建一个新的Kafka消费者适配器。
func NewOrderConsumerAdapter(reader *kafka.Reader, appSvc *application.OrderApplicationService, failureHandler *mq.FailureHandler) *OrderConsumerAdapter {
	return &OrderConsumerAdapter{
		reader:         reader,
		appSvc:         appSvc,
		failureHandler: failureHandler,
	}
}

// Start 开始监听Kafka主题。这是一个长期运行的方法。
func (a *OrderConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Printf("✅ Order Consumer Adapter started for topic '%s'.", a.reader.Config().Topic)
		for {
			if a.stopped {
				return
			}
			// 使用FetchMessage而不是ReadMessage，以便更好地控制退出逻辑
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Error().Err(ctx.Err()).Msg("🛑 Order Consumer Adapter shutting down.")
					return
				}
				logger.Ctx(ctx).Printf("ERROR: could not read message: %v. Retrying...", err)
				time.Sleep(1 * time.Second) // 避免快速失败循环
				continue
			}

			propagator := otel.GetTextMapPropagator()
			headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
			newCtx := propagator.Extract(ctx, &headerCarrier)

			processingErr := a.processMessage(newCtx, msg)
			if processingErr != nil {
				// 处理失败的消息移交死信队列
				a.failureHandler.Handle(newCtx, msg, processingErr)
			}

			// 无论成功或失败（已移交），都提交Offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (a *OrderConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Printf("✅ Order Consumer Adapter stopped.")
}

// processMessage 反序列化消息并调用应用服务。
func (a *OrderConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.OrderCreationRequested
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}
	return a.appSvc.HandleOrderCreationEvent(ctx, &event)
}
