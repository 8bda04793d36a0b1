// internal/service/store/application/saga/notification.go
package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"orchard/internal/pkg/logger"
	"orchard/internal/service/store/domain/port"
)

// NotificationHandler 是 Saga 流程的最后一步，负责发送下单成功通知。
type NotificationHandler struct {
	NextHandler
}

func (h *NotificationHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Notification")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.topic", "notifications"),
	)

	logger.Ctx(ctx).Info().Str("order", orderCtx.Order.ID).Msg("【Saga】=> 步骤 Final: 发送下单成功通知...")

	// 发送通知失败是非关键路径的失败：只记录告警，
	// 让整个 Saga 成功结束，后续靠监控和补发兜底。
	err := orderCtx.Notifier.Send(ctx, &port.Notification{
		UserID:  orderCtx.Order.UserID,
		OrderID: orderCtx.Order.ID,
		Subject: "ORDER_PLACED",
		Message: fmt.Sprintf("Your order %s has been placed and is on its way.", orderCtx.Order.ID),
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", orderCtx.Order.ID).Msg("WARN: failed to publish notification")
		span.RecordError(err)
	}

	span.AddEvent("Saga process finalized and notification sent (or attempted).")
	return h.executeNext(orderCtx)
}
