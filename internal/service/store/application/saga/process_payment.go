// internal/service/store/application/saga/process_payment.go
package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"orchard/internal/pkg/logger"
)

// ProcessPaymentHandler 负责扣款与预占确认步骤。
type ProcessPaymentHandler struct {
	NextHandler
}

func (h *ProcessPaymentHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ProcessPayment")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("amount", orderCtx.Order.Amount),
		attribute.String("currency", orderCtx.Order.Currency),
	)

	logger.Ctx(ctx).Info().Str("order", orderCtx.Order.ID).Msg("【Saga】=> 步骤 3: 扣款...")

	bankTxID, err := orderCtx.Bank.Debit(ctx, orderCtx.Order.ID, orderCtx.Order.UserID, orderCtx.Order.Amount, orderCtx.Order.Currency)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Debit failed")
		return fmt.Errorf("debit for order %s: %w", orderCtx.Order.ID, err)
	}
	span.SetAttributes(attribute.String("bank.tx_id", bankTxID))

	// 退款补偿在扣款成功后立刻注册，之后任何步骤失败都能把钱退回去。
	// 退款自身幂等，重复触发只会回放原始结果。
	orderCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.Refund")
		defer compSpan.End()
		if err := orderCtx.Bank.Refund(compCtx, orderCtx.Order.ID, orderCtx.Order.Amount, orderCtx.Order.Currency); err != nil {
			// 补偿失败需要记录严重错误，并可能需要人工介入
			logger.Ctx(compCtx).Error().Err(err).
				Str("order", orderCtx.Order.ID).
				Msg("CRITICAL: refund compensation failed")
			compSpan.RecordError(err)
		}
	})

	// 支付成功后把预占转为确认，库存正式售出。
	// 之后的释放补偿会因为没有 RESERVED 行而变成 no-op，钱由退款补偿负责。
	if err := orderCtx.Warehouse.ConfirmReservation(ctx, orderCtx.Order.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Reservation confirmation failed")
		return fmt.Errorf("confirm reservation for order %s: %w", orderCtx.Order.ID, err)
	}

	if err := orderCtx.Order.MarkAsPaymentSuccessful(); err != nil {
		return err
	}
	if err := orderCtx.save(ctx); err != nil {
		return err
	}
	span.AddEvent("Payment settled and reservation confirmed.")

	return h.executeNext(orderCtx)
}
