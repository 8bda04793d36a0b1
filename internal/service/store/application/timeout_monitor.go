// internal/service/store/application/timeout_monitor.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"orchard/internal/pkg/logger"
	"orchard/internal/service/store/domain"
	"orchard/internal/service/store/domain/port"
)

// TimeoutMonitor 周期扫描中间状态停留过久的订单并发起补偿。
// 自身无状态：补偿动作（释放、退款、取消配送）全部幂等，
// 即使和主流程或另一个监控实例重复执行也安全。
// 多副本部署时应通过选主保证同一时刻只有一个实例在扫描。
type TimeoutMonitor struct {
	orderRepo    domain.OrderRepository
	warehouse    port.WarehouseService
	bank         port.BankService
	delivery     port.DeliveryService
	notifier     port.NotificationProducer
	stageTimeout time.Duration
	scanInterval time.Duration
	tracer       trace.Tracer
}

func NewTimeoutMonitor(
	orderRepo domain.OrderRepository,
	warehouse port.WarehouseService,
	bank port.BankService,
	delivery port.DeliveryService,
	notifier port.NotificationProducer,
	stageTimeout, scanInterval time.Duration,
	tracer trace.Tracer,
) *TimeoutMonitor {
	return &TimeoutMonitor{
		orderRepo:    orderRepo,
		warehouse:    warehouse,
		bank:         bank,
		delivery:     delivery,
		notifier:     notifier,
		stageTimeout: stageTimeout,
		scanInterval: scanInterval,
		tracer:       tracer,
	}
}

// Run 以固定节拍扫描，直到 ctx 结束。
func (m *TimeoutMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()
	logger.Ctx(ctx).Info().
		Dur("interval", m.scanInterval).
		Dur("stageTimeout", m.stageTimeout).
		Msg("✅ saga timeout monitor started")
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 saga timeout monitor stopped")
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan 执行一轮扫描。单个订单的补偿失败不影响其他订单。
func (m *TimeoutMonitor) Scan(ctx context.Context) {
	ctx, span := m.tracer.Start(ctx, "monitor.TimeoutScan")
	defer span.End()

	cutoff := time.Now().Add(-m.stageTimeout)
	stalled, err := m.orderRepo.FindStalled(ctx, domain.InFlightStates, cutoff)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to scan for stalled orders")
		return
	}
	span.SetAttributes(attribute.Int("orders.stalled", len(stalled)))

	for _, order := range stalled {
		m.compensateOrder(ctx, order)
	}
}

// compensateOrder 按订单走到的阶段逆向清理：
// 扣款成功前只释放库存，扣款成功后先退款再释放，最后订单落败并通知客户。
func (m *TimeoutMonitor) compensateOrder(ctx context.Context, order *domain.Order) {
	ctx, span := m.tracer.Start(ctx, "monitor.CompensateStalledOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.state", string(order.State)),
	)

	logger.Ctx(ctx).Warn().
		Str("order", order.ID).
		Str("state", string(order.State)).
		Time("updatedAt", order.UpdatedAt).
		Msg("order exceeded stage timeout, compensating")

	if order.RequiresRefund() {
		if err := m.bank.Refund(ctx, order.ID, order.Amount, order.Currency); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("CRITICAL: timeout refund failed")
			span.RecordError(err)
		}
	}
	if err := m.warehouse.ReleaseStock(ctx, order.ID, "ORDER_TIMEOUT"); err != nil {
		// 订单还没走到预占、或预占已被确认/释放时都是预期内的 no-op
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("timeout release reported no-op or failure")
	}
	if order.State == domain.StateDeliveryRequested {
		if err := m.delivery.CancelDelivery(ctx, order.ID, "ORDER_TIMEOUT"); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("failed to dispatch timeout delivery cancellation")
			span.RecordError(err)
		}
	}

	order.MarkAsFailed("stage timeout exceeded")
	if err := m.orderRepo.Save(ctx, order); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("CRITICAL: failed to mark stalled order as FAILED")
		span.RecordError(err)
		return
	}
	timeoutCompensations.Inc()

	err := m.notifier.Send(ctx, &port.Notification{
		UserID:  order.UserID,
		OrderID: order.ID,
		Subject: "ORDER_FAILED",
		Message: "Your order " + order.ID + " timed out and has been cancelled. Any charges have been reversed.",
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("failed to publish timeout notification")
	}
}
