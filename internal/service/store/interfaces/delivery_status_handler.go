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

// DeliveryStatusConsumerAdapter 消费配送方广播的状态事件，
// 驱动订单进入 DELIVERED / FAILED 终态。
type DeliveryStatusConsumerAdapter struct {
	reader  *kafka.Reader
	appSvc  *application.OrderApplicationService
	wg      sync.WaitGroup
	stopped bool

	failureHandler *mq.FailureHandler
}

func NewDeliveryStatusConsumerAdapter(reader *kafka.Reader, appSvc *application.OrderApplicationService, failureHandler *mq.FailureHandler) *DeliveryStatusConsumerAdapter {
	return &DeliveryStatusConsumerAdapter{
		reader:         reader,
		appSvc:         appSvc,
		failureHandler: failureHandler,
	}
}

func (a *DeliveryStatusConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Printf("✅ Delivery Status Consumer started for topic '%s'.", a.reader.Config().Topic)
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Error().Err(ctx.Err()).Msg("🛑 Delivery Status Consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Printf("ERROR: could not read message: %v. Retrying...", err)
				time.Sleep(1 * time.Second)
				continue
			}

			propagator := otel.GetTextMapPropagator()
			headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
			newCtx := propagator.Extract(ctx, &headerCarrier)

			if processingErr := a.processMessage(newCtx, msg); processingErr != nil {
				a.failureHandler.Handle(newCtx, msg, processingErr)
			}

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit messages")
			}
		}
	}()
	return nil
}

func (a *DeliveryStatusConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Printf("✅ Delivery Status Consumer stopped.")
}

func (a *DeliveryStatusConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.DeliveryStatusChanged
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}
	return a.appSvc.HandleDeliveryStatusEvent(ctx, &event)
}
