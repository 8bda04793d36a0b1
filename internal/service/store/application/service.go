// internal/service/store/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orchard/internal/pkg/logger"
	"orchard/internal/service/store/application/saga"
	"orchard/internal/service/store/domain"
	"orchard/internal/service/store/domain/port"
)

// OrderApplicationService 只关注业务流程编排。
type OrderApplicationService struct {
	orderRepo         domain.OrderRepository
	processingTimeout time.Duration
	tracer            trace.Tracer

	createOrderProducer domain.OrderProducer

	rules     port.OrderRuleEngine
	warehouse port.WarehouseService
	bank      port.BankService
	delivery  port.DeliveryService
	notifier  port.NotificationProducer
}

func NewOrderApplicationService(
	orderRepo domain.OrderRepository,
	processingTimeout time.Duration,
	tracer trace.Tracer,
	createOrderProducer domain.OrderProducer,
	rules port.OrderRuleEngine,
	warehouse port.WarehouseService,
	bank port.BankService,
	delivery port.DeliveryService,
	notifier port.NotificationProducer,
) *OrderApplicationService {
	return &OrderApplicationService{
		orderRepo: orderRepo, processingTimeout: processingTimeout,
		tracer: tracer, createOrderProducer: createOrderProducer,
		rules: rules, warehouse: warehouse, bank: bank,
		delivery: delivery, notifier: notifier,
	}
}

// RequestOrderCreation 是暴露给接口层（如 HTTP Handler）的入口方法。
// 在异步架构中，此方法的职责是把创建订单的消息发送到 Kafka 后立即返回。
func (s *OrderApplicationService) RequestOrderCreation(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.RequestOrderCreation")
	defer span.End()

	req.EventID = "ORD-" + uuid.NewString()
	event := req.ToOrderCreationEvent()

	if err := s.createOrderProducer.PublishOrderCreation(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to enqueue order creation")
		return nil, err
	}

	span.AddEvent("Order creation request sent to Kafka queue.")
	logger.Ctx(ctx).Info().
		Str("order", event.EventID).
		Str("user", event.UserID).
		Msg("order creation request enqueued")

	return &CreateOrderResponse{
		OrderID: event.EventID,
		Status:  domain.StateCreated,
		Message: "Your order is being processed.",
	}, nil
}

// HandleOrderCreationEvent 是被动的业务处理入口，
// 由驱动适配器（KafkaConsumerAdapter 或 HttpHandler）调用。
func (s *OrderApplicationService) HandleOrderCreationEvent(ctx context.Context, event *domain.OrderCreationRequested) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleOrderCreationEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("order.id", event.EventID))

	started := time.Now()
	sagaStarted.Inc()

	// 每个订单的处理流程有独立的超时
	processingCtx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()

	orderEntity, err := domain.NewOrder(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create order entity")
		return err
	}

	if err := s.orderRepo.Save(processingCtx, orderEntity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save initial order")
		return err
	}
	span.AddEvent("Initial order saved with CREATED state.")

	orderContext := &saga.OrderContext{
		Ctx:       processingCtx,
		Order:     orderEntity,
		Tracer:    s.tracer,
		Rules:     s.rules,
		Warehouse: s.warehouse,
		Bank:      s.bank,
		Delivery:  s.delivery,
		Notifier:  s.notifier,
		Repo:      s.orderRepo,
	}

	logger.Ctx(processingCtx).Info().
		Str("order", orderEntity.ID).
		Str("user", event.UserID).
		Msg("starting order processing chain")

	if err := s.buildChain().Handle(orderContext); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order processing failed in chain")
		logger.Ctx(processingCtx).Error().Err(err).
			Str("order", orderEntity.ID).
			Msg("order processing chain failed, triggering saga compensation")

		// 补偿在不受处理超时约束的上下文里执行，只保留链路关联
		compCtx := trace.ContextWithRemoteSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
		orderContext.TriggerCompensation(compCtx)
		sagaCompensated.WithLabelValues("stage_failure").Inc()

		s.failOrder(compCtx, orderEntity, err.Error())
		return err
	}

	sagaSucceeded.Inc()
	sagaDuration.Observe(time.Since(started).Seconds())
	logger.Ctx(processingCtx).Info().
		Str("order", orderEntity.ID).
		Str("state", string(orderEntity.State)).
		Msg("✅ order processing chain completed")
	span.AddEvent("Order successfully processed, awaiting delivery progression.")
	return nil
}

// CancelOrder 用户主动取消。
// 已走到配送终态的订单不可取消；此前任何阶段都按已持有的资源逆向清理。
func (s *OrderApplicationService) CancelOrder(ctx context.Context, orderID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "app.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("reason", reason))

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}

	refund := order.RequiresRefund()
	if err := order.Cancel(); err != nil {
		span.SetStatus(codes.Error, "Order not cancellable")
		return fmt.Errorf("order %s in state %s: %w", orderID, order.State, err)
	}

	s.compensate(ctx, order, refund, reason)

	if err := s.orderRepo.Save(ctx, order); err != nil {
		return fmt.Errorf("save cancelled order %s: %w", orderID, err)
	}
	s.notify(ctx, order, "ORDER_CANCELLED", fmt.Sprintf("Your order %s has been cancelled.", orderID))
	logger.Ctx(ctx).Info().Str("order", orderID).Str("reason", reason).Msg("order cancelled")
	return nil
}

// GetOrder 查询订单。
func (s *OrderApplicationService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// HandleDeliveryStatusEvent 消费配送方广播的状态事件，
// 推进订单终态并把进展转发给客户。
func (s *OrderApplicationService) HandleDeliveryStatusEvent(ctx context.Context, event *domain.DeliveryStatusChanged) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleDeliveryStatusEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", event.OrderID),
		attribute.String("delivery.status", event.NewStatus),
	)

	order, err := s.orderRepo.FindByID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		// 占位取消等场景下配送方会广播订单方不认识的订单
		logger.Ctx(ctx).Warn().Str("order", event.OrderID).Msg("delivery status for unknown order, ignoring")
		return nil
	}

	switch event.NewStatus {
	case "DELIVERED":
		if err := order.MarkAsDelivered(); err != nil {
			// 重复事件或乱序事件，不再推进
			logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("ignoring delivery event for non-progressable order")
			return nil
		}
		if err := s.orderRepo.Save(ctx, order); err != nil {
			return err
		}
	case "LOST":
		// 包裹丢失：钱退给客户，订单落败。库存已经售出不再回补。
		if err := s.bank.Refund(ctx, order.ID, order.Amount, order.Currency); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("CRITICAL: refund for lost package failed")
		}
		s.failOrder(ctx, order, "package lost in transit")
	}

	s.notify(ctx, order, "DELIVERY_UPDATE", event.Message)
	return nil
}

// compensate 释放订单占用的资源。refund 为 true 时先退款。
// 所有动作幂等，重复触发安全。
func (s *OrderApplicationService) compensate(ctx context.Context, order *domain.Order, refund bool, reason string) {
	if refund {
		if err := s.bank.Refund(ctx, order.ID, order.Amount, order.Currency); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("CRITICAL: refund compensation failed")
		}
	}
	if err := s.warehouse.ReleaseStock(ctx, order.ID, reason); err != nil {
		// 没有 RESERVED 行（已确认或已释放）是预期内的 no-op
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("release compensation reported no-op or failure")
	}
	if err := s.delivery.CancelDelivery(ctx, order.ID, reason); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("failed to dispatch delivery cancellation")
	}
}

func (s *OrderApplicationService) failOrder(ctx context.Context, order *domain.Order, reason string) {
	order.MarkAsFailed(reason)
	if err := s.orderRepo.Save(ctx, order); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("order", order.ID).
			Msg("CRITICAL: failed to update order status to FAILED after compensation")
	}
	s.notify(ctx, order, "ORDER_FAILED",
		fmt.Sprintf("We could not complete your order %s: %s. Any charges have been reversed.", order.ID, reason))
}

func (s *OrderApplicationService) notify(ctx context.Context, order *domain.Order, subject, message string) {
	err := s.notifier.Send(ctx, &port.Notification{
		UserID:  order.UserID,
		OrderID: order.ID,
		Subject: subject,
		Message: message,
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("failed to publish notification")
	}
}

func (s *OrderApplicationService) buildChain() saga.Handler {
	orderProcessingChain := new(saga.ValidateOrderHandler)
	orderProcessingChain.
		SetNext(new(saga.ReserveStockHandler)).
		SetNext(new(saga.ProcessPaymentHandler)).
		SetNext(new(saga.RequestDeliveryHandler)).
		SetNext(new(saga.NotificationHandler))

	return orderProcessingChain
}
