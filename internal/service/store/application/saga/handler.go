// internal/service/store/application/saga/handler.go
package saga

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"orchard/internal/pkg/logger"
	"orchard/internal/service/store/domain"
	"orchard/internal/service/store/domain/port"
)

// OrderContext 在 Saga 流程中传递上下文数据。
// 所有外部依赖都是抽象的出站端口。
type OrderContext struct {
	Ctx    context.Context
	Order  *domain.Order
	Tracer trace.Tracer

	// 依赖出站端口 (Interfaces)
	Rules     port.OrderRuleEngine
	Warehouse port.WarehouseService
	Bank      port.BankService
	Delivery  port.DeliveryService
	Notifier  port.NotificationProducer

	Repo domain.OrderRepository

	// 预占步骤产出的分配明细，配送步骤消费
	Allocations []port.WarehouseAllocation

	// Saga 补偿栈，LIFO 执行
	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 把补偿动作压入栈顶，失败时按注册的逆序执行。
func (c *OrderContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 执行所有已注册的补偿。
// 每个补偿动作自身必须幂等，这里不做去重。
func (c *OrderContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().
		Str("order", c.Order.ID).
		Int("count", len(c.compensations)).
		Msg("executing saga compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
}

// save 持久化当前订单状态，失败时记录严重错误。
func (c *OrderContext) save(ctx context.Context) error {
	if err := c.Repo.Save(ctx, c.Order); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("order", c.Order.ID).
			Str("state", string(c.Order.State)).
			Msg("CRITICAL: failed to persist order state")
		return err
	}
	return nil
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next != nil {
		return h.next.Handle(orderCtx)
	}
	return nil
}
