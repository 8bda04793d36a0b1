// internal/service/store/application/saga/reserve_stock.go
package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"orchard/internal/pkg/logger"
)

// ReserveStockHandler 负责库存预占步骤。
type ReserveStockHandler struct {
	NextHandler
}

func (h *ReserveStockHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ReserveStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", orderCtx.Order.ProductID),
		attribute.Int("quantity", orderCtx.Order.Quantity),
	)

	logger.Ctx(ctx).Info().Str("order", orderCtx.Order.ID).Msg("【Saga】=> 步骤 2: 预占库存...")

	available, allocations, err := orderCtx.Warehouse.CheckAvailability(ctx, orderCtx.Order.ProductID, orderCtx.Order.Quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Availability check failed")
		return fmt.Errorf("availability check for order %s: %w", orderCtx.Order.ID, err)
	}
	if !available {
		span.SetStatus(codes.Error, "Insufficient stock")
		return fmt.Errorf("order %s: product %s unavailable in requested quantity %d",
			orderCtx.Order.ID, orderCtx.Order.ProductID, orderCtx.Order.Quantity)
	}
	orderCtx.Allocations = allocations
	span.SetAttributes(attribute.Int("warehouses", len(allocations)))

	// 释放补偿先于预占调用注册：预占部分成功后整体失败时，
	// 残留的 RESERVED 行也要被清理。释放操作自身幂等，
	// 没有可释放行时仓库侧返回 not found，这里容忍它。
	orderCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseStock")
		defer compSpan.End()
		if err := orderCtx.Warehouse.ReleaseStock(compCtx, orderCtx.Order.ID, "SAGA_COMPENSATION"); err != nil {
			logger.Ctx(compCtx).Warn().Err(err).
				Str("order", orderCtx.Order.ID).
				Msg("release compensation reported no-op or failure")
			compSpan.RecordError(err)
		}
	})

	if err := orderCtx.Warehouse.ReserveStock(ctx, orderCtx.Order.ID, orderCtx.Order.ProductID, orderCtx.Order.Quantity, allocations); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Stock reservation failed")
		return fmt.Errorf("reserve stock for order %s: %w", orderCtx.Order.ID, err)
	}
	span.AddEvent("All allocations reserved successfully.")

	if err := orderCtx.Order.MarkAsPendingPayment(); err != nil {
		return err
	}
	if err := orderCtx.save(ctx); err != nil {
		return err
	}

	return h.executeNext(orderCtx)
}
