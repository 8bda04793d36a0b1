// internal/service/store/application/saga/validate_order.go
package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"orchard/internal/pkg/logger"
)

// ValidateOrderHandler 负责订单业务规则校验步骤。
type ValidateOrderHandler struct {
	NextHandler
}

func (h *ValidateOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ValidateOrder")
	defer span.End()

	logger.Ctx(ctx).Info().Str("order", orderCtx.Order.ID).Msg("【Saga】=> 步骤 1: 订单规则校验...")

	if err := orderCtx.Order.MarkAsPendingValidation(); err != nil {
		return err
	}
	if err := orderCtx.save(ctx); err != nil {
		return err
	}

	if err := orderCtx.Rules.Validate(ctx, orderCtx.Order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order validation failed")
		return fmt.Errorf("order %s rejected by rules: %w", orderCtx.Order.ID, err)
	}
	span.AddEvent("Order passed all business rules.")

	return h.executeNext(orderCtx)
}
