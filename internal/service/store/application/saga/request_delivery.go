// internal/service/store/application/saga/request_delivery.go
package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"orchard/internal/pkg/logger"
	"orchard/internal/service/store/domain/port"
)

// RequestDeliveryHandler 负责发出配送请求步骤。
type RequestDeliveryHandler struct {
	NextHandler
}

func (h *RequestDeliveryHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.RequestDelivery")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.Int("warehouses", len(orderCtx.Allocations)),
	)

	logger.Ctx(ctx).Info().Str("order", orderCtx.Order.ID).Msg("【Saga】=> 步骤 4: 发起配送请求...")

	warehouseIDs := make([]string, 0, len(orderCtx.Allocations))
	for _, alloc := range orderCtx.Allocations {
		warehouseIDs = append(warehouseIDs, alloc.WarehouseID)
	}

	req := &port.DeliveryRequest{
		OrderID:       orderCtx.Order.ID,
		CustomerID:    orderCtx.Order.UserID,
		CustomerEmail: orderCtx.Order.CustomerEmail,
		WarehouseIDs:  warehouseIDs,
		Products:      []string{orderCtx.Order.ProductID},
	}
	if err := orderCtx.Delivery.RequestDelivery(ctx, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delivery request failed")
		return fmt.Errorf("request delivery for order %s: %w", orderCtx.Order.ID, err)
	}

	// 取消消息在配送方有占位语义，先于配送请求到达也能正确挡住它
	orderCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.CancelDelivery")
		defer compSpan.End()
		if err := orderCtx.Delivery.CancelDelivery(compCtx, orderCtx.Order.ID, "SAGA_COMPENSATION"); err != nil {
			logger.Ctx(compCtx).Error().Err(err).
				Str("order", orderCtx.Order.ID).
				Msg("CRITICAL: delivery cancellation compensation failed")
			compSpan.RecordError(err)
		}
	})

	if err := orderCtx.Order.MarkAsDeliveryRequested(); err != nil {
		return err
	}
	if err := orderCtx.save(ctx); err != nil {
		return err
	}
	span.AddEvent("Delivery request dispatched.")

	return h.executeNext(orderCtx)
}
