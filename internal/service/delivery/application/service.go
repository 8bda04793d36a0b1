// internal/service/delivery/application/service.go
package application

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"orchard/internal/pkg/logger"
	"orchard/internal/service/delivery/domain"
)

// LossDecider 决定 IN_TRANSIT 的包裹这一跳是否丢失。
// 生产实现是概率模拟，测试里注入确定性结果。
type LossDecider func() bool

// ProbabilisticLoss 以 ratePercent% 的概率判定丢包。
func ProbabilisticLoss(ratePercent int) LossDecider {
	return func() bool {
		return rand.Intn(100) < ratePercent
	}
}

// DeliveryRequest 订单方发来的配送请求消息。
type DeliveryRequest struct {
	OrderID       string   `json:"orderId"`
	CustomerID    string   `json:"customerId"`
	CustomerEmail string   `json:"customerEmail"`
	WarehouseIDs  []string `json:"warehouseIds"`
	Products      []string `json:"products"`
}

// CancellationRequest 订单方发来的取消消息。
type CancellationRequest struct {
	OrderID   string    `json:"orderId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryService 配送状态机。状态推进由巡检驱动，
// 外部只能创建配送和取消配送，不能直接改状态。
type DeliveryService struct {
	deliveries domain.DeliveryRepository
	publisher  domain.StatusPublisher
	loss       LossDecider
	tracer     trace.Tracer
}

func NewDeliveryService(
	deliveries domain.DeliveryRepository,
	publisher domain.StatusPublisher,
	loss LossDecider,
	tracer trace.Tracer,
) *DeliveryService {
	return &DeliveryService{
		deliveries: deliveries,
		publisher:  publisher,
		loss:       loss,
		tracer:     tracer,
	}
}

// CreateDelivery 处理配送请求。消息是 at-least-once 的：
// 已有在途配送时静默跳过；撞上 CANCELLED 记录（含乱序占位）时拒绝。
func (s *DeliveryService) CreateDelivery(ctx context.Context, req *DeliveryRequest) error {
	ctx, span := s.tracer.Start(ctx, "delivery.CreateDelivery")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", req.OrderID))

	existing, err := s.deliveries.FindByOrder(ctx, req.OrderID)
	if err != nil {
		return fmt.Errorf("lookup delivery for order %s: %w", req.OrderID, err)
	}
	if existing != nil {
		if existing.Status == domain.StatusCancelled {
			logger.Ctx(ctx).Warn().
				Str("order", req.OrderID).
				Msg("delivery request arrived after cancellation, rejecting")
			span.AddEvent("fenced by cancelled record")
			return fmt.Errorf("order %s: %w", req.OrderID, domain.ErrDeliveryCancelled)
		}
		// 重复消息，当前生命周期继续有效
		logger.Ctx(ctx).Info().Str("order", req.OrderID).Msg("duplicate delivery request, ignoring")
		return nil
	}

	delivery := domain.NewDelivery(req.OrderID, req.CustomerID, req.CustomerEmail)
	if err := s.deliveries.Create(ctx, delivery); err != nil {
		return fmt.Errorf("create delivery for order %s: %w", req.OrderID, err)
	}
	logger.Ctx(ctx).Info().
		Str("order", req.OrderID).
		Str("delivery", delivery.ID).
		Msg("✅ delivery request received")
	s.notify(ctx, delivery.OrderID, delivery.Status)
	return nil
}

// CancelDelivery 处理取消消息。
// 没有配送记录时创建 CANCELLED 占位，挡住之后才到的配送请求；
// 终态配送拒绝取消，已取消的重复取消静默通过。
func (s *DeliveryService) CancelDelivery(ctx context.Context, req *CancellationRequest) error {
	ctx, span := s.tracer.Start(ctx, "delivery.CancelDelivery")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", req.OrderID), attribute.String("reason", req.Reason))

	existing, err := s.deliveries.FindByOrder(ctx, req.OrderID)
	if err != nil {
		return fmt.Errorf("lookup delivery for order %s: %w", req.OrderID, err)
	}
	if existing == nil {
		placeholder := domain.NewCancelledPlaceholder(req.OrderID)
		if err := s.deliveries.Create(ctx, placeholder); err != nil {
			return fmt.Errorf("create cancellation placeholder for order %s: %w", req.OrderID, err)
		}
		logger.Ctx(ctx).Info().
			Str("order", req.OrderID).
			Msg("cancellation before delivery request, placeholder created")
		return nil
	}

	wasCancelled := existing.Status == domain.StatusCancelled
	if err := existing.Cancel(); err != nil {
		logger.Ctx(ctx).Warn().
			Str("order", req.OrderID).
			Str("status", string(existing.Status)).
			Msg("cancellation rejected, delivery already terminal")
		return fmt.Errorf("order %s: %w", req.OrderID, err)
	}
	if wasCancelled {
		return nil
	}
	if err := s.deliveries.Save(ctx, existing); err != nil {
		return fmt.Errorf("save delivery for order %s: %w", req.OrderID, err)
	}
	logger.Ctx(ctx).Info().Str("order", req.OrderID).Str("reason", req.Reason).Msg("delivery cancelled")
	s.notify(ctx, existing.OrderID, domain.StatusCancelled)
	return nil
}

// AdvanceAll 巡检一轮，把每个在途配送推进恰好一步。
// 单条失败只记日志，不影响其他配送的推进。
func (s *DeliveryService) AdvanceAll(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "delivery.AdvanceAll")
	defer span.End()

	active, err := s.deliveries.FindActive(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to load active deliveries")
		return
	}
	span.SetAttributes(attribute.Int("deliveries.active", len(active)))

	for _, delivery := range active {
		newStatus, err := delivery.Advance(s.loss())
		if err != nil {
			continue
		}
		if err := s.deliveries.Save(ctx, delivery); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("order", delivery.OrderID).
				Msg("failed to save delivery progression")
			continue
		}
		logger.Ctx(ctx).Info().
			Str("order", delivery.OrderID).
			Str("delivery", delivery.ID).
			Str("status", string(newStatus)).
			Msg("delivery advanced")
		s.notify(ctx, delivery.OrderID, newStatus)
	}
}

// Run 以固定节拍驱动状态机，直到 ctx 结束。
func (s *DeliveryService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Ctx(ctx).Info().Dur("interval", interval).Msg("✅ delivery progression monitor started")
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 delivery progression monitor stopped")
			return
		case <-ticker.C:
			s.AdvanceAll(ctx)
		}
	}
}

func (s *DeliveryService) notify(ctx context.Context, orderID string, status domain.DeliveryStatus) {
	if s.publisher == nil {
		return
	}
	event := &domain.StatusEvent{
		OrderID:   orderID,
		NewStatus: status,
		Message:   statusMessage(status),
		Timestamp: time.Now(),
	}
	if err := s.publisher.PublishStatus(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("order", orderID).
			Msg("failed to publish delivery status event")
	}
}

// statusMessage 面向客户的状态描述。
func statusMessage(status domain.DeliveryStatus) string {
	switch status {
	case domain.StatusRequestReceived:
		return "We have received your order and are preparing it for shipment."
	case domain.StatusPickedUp:
		return "Your package has been picked up by the courier."
	case domain.StatusInTransit:
		return "Your package is in transit."
	case domain.StatusDelivered:
		return "Your package has been delivered. Enjoy!"
	case domain.StatusLost:
		return "We are sorry, your package appears to be lost. Our support team will contact you."
	case domain.StatusCancelled:
		return "Your delivery has been cancelled."
	}
	return string(status)
}
