// internal/service/warehouse/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"orchard/internal/pkg/logger"
	"orchard/internal/service/warehouse/domain"
)

const (
	// 乐观锁冲突的本地重试上限与退避步长。
	// 这两个值是经验默认值而不是硬性契约，可以按压测结果调整。
	maxRetryAttempts = 3
	retryBackoffStep = 50 * time.Millisecond
)

// Allocation 是一次预占在单个仓库上的分配明细。
type Allocation struct {
	WarehouseID string `json:"warehouseId"`
	Quantity    int    `json:"quantity"`
}

// WarehouseInfo 是可用量检查返回的分配建议。
type WarehouseInfo struct {
	WarehouseID       string `json:"warehouseId"`
	WarehouseName     string `json:"warehouseName"`
	AvailableQuantity int    `json:"availableQuantity"`
	AllocatedQuantity int    `json:"allocatedQuantity"`
}

// AvailabilityResult 可用量检查结果。
type AvailabilityResult struct {
	Available              bool            `json:"available"`
	RequestedQuantity      int             `json:"requestedQuantity"`
	TotalAvailableQuantity int             `json:"totalAvailableQuantity"`
	FulfillmentStrategy    string          `json:"fulfillmentStrategy,omitempty"`
	Warehouses             []WarehouseInfo `json:"warehouses,omitempty"`
}

// WarehouseService 负责跨仓库的预占协调：
// 分配、预占、确认、释放，以及乐观冲突的有界重试。
type WarehouseService struct {
	ledger       domain.InventoryLedger
	reservations domain.ReservationRepository
	warehouses   domain.WarehouseRepository
	cache        domain.AvailabilityCache
	tracer       trace.Tracer
}

func NewWarehouseService(
	ledger domain.InventoryLedger,
	reservations domain.ReservationRepository,
	warehouses domain.WarehouseRepository,
	cache domain.AvailabilityCache,
	tracer trace.Tracer,
) *WarehouseService {
	return &WarehouseService{
		ledger:       ledger,
		reservations: reservations,
		warehouses:   warehouses,
		cache:        cache,
		tracer:       tracer,
	}
}

// CheckAvailability 汇总所有仓库的可售量并给出贪心分配建议：
// 按可售量降序逐仓取 min(available, remaining)，优先吃大仓，
// 尽量减少一个订单触达的仓库数 —— 每多一个仓库就多一个失败/重试点。
func (s *WarehouseService) CheckAvailability(ctx context.Context, productID string, qty int) (*AvailabilityResult, error) {
	ctx, span := s.tracer.Start(ctx, "warehouse.CheckAvailability")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("quantity", qty))

	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	// 读路径快捷通道：缓存里的总量已经不够时直接拒绝，省一次全表查询。
	// 缓存未命中或数量充足时仍然走数据库，写路径从不依赖这里。
	if total, ok := s.cachedTotal(ctx, productID); ok && total < qty {
		return &AvailabilityResult{
			Available:              false,
			RequestedQuantity:      qty,
			TotalAvailableQuantity: total,
		}, nil
	}

	records, err := s.ledger.FindByProduct(ctx, productID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load inventory for product %s: %w", productID, err)
	}

	total := 0
	for _, rec := range records {
		total += rec.Available
	}
	s.storeTotal(ctx, productID, total)

	if total < qty {
		return &AvailabilityResult{
			Available:              false,
			RequestedQuantity:      qty,
			TotalAvailableQuantity: total,
		}, nil
	}

	infos, remaining := s.allocate(ctx, records, qty)
	if remaining > 0 {
		// 总量够但活跃仓库不够（其余库存都在停用仓库里）
		return &AvailabilityResult{
			Available:              false,
			RequestedQuantity:      qty,
			TotalAvailableQuantity: total,
		}, nil
	}

	strategy := "MULTIPLE_WAREHOUSES"
	if len(infos) == 1 {
		strategy = "SINGLE_WAREHOUSE"
	}
	return &AvailabilityResult{
		Available:              true,
		RequestedQuantity:      qty,
		TotalAvailableQuantity: total,
		FulfillmentStrategy:    strategy,
		Warehouses:             infos,
	}, nil
}

// allocate 贪心分配。跳过停用仓库，返回剩余未分配数量。
func (s *WarehouseService) allocate(ctx context.Context, records []*domain.InventoryRecord, qty int) ([]WarehouseInfo, int) {
	sorted := make([]*domain.InventoryRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Available > sorted[j].Available
	})

	var infos []WarehouseInfo
	remaining := qty
	for _, rec := range sorted {
		if remaining <= 0 {
			break
		}
		wh, err := s.warehouses.FindByID(ctx, rec.WarehouseID)
		if err != nil || wh == nil || !wh.IsActive() {
			continue
		}
		allocated := rec.Available
		if allocated > remaining {
			allocated = remaining
		}
		infos = append(infos, WarehouseInfo{
			WarehouseID:       rec.WarehouseID,
			WarehouseName:     wh.Name,
			AvailableQuantity: rec.Available,
			AllocatedQuantity: allocated,
		})
		remaining -= allocated
	}
	return infos, remaining
}

// ReserveStock 按分配明细逐仓预占。任何一个仓库耗尽重试都会让整个
// 预占失败；此时已经成功的仓库不会在这里回滚，由调用方（订单侧的
// 补偿逻辑）显式调用 ReleaseStock 清理，保证补偿路径只有一条。
func (s *WarehouseService) ReserveStock(ctx context.Context, orderID, productID string, qty int, allocations []Allocation) error {
	ctx, span := s.tracer.Start(ctx, "warehouse.ReserveStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("product.id", productID),
		attribute.Int("quantity", qty),
	)

	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	total := 0
	for _, alloc := range allocations {
		if alloc.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		total += alloc.Quantity
	}
	if total != qty {
		span.SetStatus(codes.Error, "allocation mismatch")
		return domain.ErrAllocationMismatch
	}

	// 每个仓库是独立的失败/重试点，并发预占缩短关键路径。
	g, gctx := errgroup.WithContext(ctx)
	for _, alloc := range allocations {
		g.Go(func() error {
			return s.reserveAt(gctx, orderID, productID, alloc.WarehouseID, alloc.Quantity)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock reservation failed")
		return err
	}

	s.invalidate(ctx, productID)
	logger.Ctx(ctx).Info().
		Str("order", orderID).
		Str("product", productID).
		Int("quantity", qty).
		Int("warehouses", len(allocations)).
		Msg("stock reserved")
	return nil
}

// reserveAt 在单个仓库上执行 读取 → CAS → 退避重试 的预占循环。
func (s *WarehouseService) reserveAt(ctx context.Context, orderID, productID, warehouseID string, qty int) error {
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		rec, err := s.ledger.Find(ctx, warehouseID, productID)
		if err != nil {
			return fmt.Errorf("warehouse %s: %w", warehouseID, err)
		}
		if !rec.CanReserve(qty) {
			// 数量不足不是瞬时错误，重试也不会好转
			return fmt.Errorf("warehouse %s has %d available, need %d: %w",
				warehouseID, rec.Available, qty, domain.ErrInsufficientStock)
		}

		applied, err := s.ledger.Reserve(ctx, warehouseID, productID, qty, rec.Version)
		if err != nil {
			return fmt.Errorf("warehouse %s: %w", warehouseID, err)
		}
		if applied {
			return s.reservations.Create(ctx, domain.NewReservation(orderID, warehouseID, productID, qty))
		}

		// 版本冲突：有并发写者赢了这一轮
		logger.Ctx(ctx).Warn().
			Str("warehouse", warehouseID).
			Str("product", productID).
			Int("attempt", attempt).
			Msg("optimistic lock conflict, retrying")
		if err := sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("warehouse %s after %d attempts: %w", warehouseID, maxRetryAttempts, domain.ErrReservationConflict)
}

// ConfirmReservation 支付成功后把订单所有 RESERVED 预占转为 CONFIRMED。
// 没有 RESERVED 记录是错误而不是 no-op，重复确认由此暴露出来。
func (s *WarehouseService) ConfirmReservation(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "warehouse.ConfirmReservation")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	return s.settle(ctx, orderID, domain.ReservationConfirmed, s.ledger.Confirm)
}

// ReleaseStock 取消/超时/失败时把订单所有 RESERVED 预占退回可售库存。
func (s *WarehouseService) ReleaseStock(ctx context.Context, orderID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "warehouse.ReleaseStock")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("reason", reason))

	logger.Ctx(ctx).Info().Str("order", orderID).Str("reason", reason).Msg("releasing reserved stock")
	return s.settle(ctx, orderID, domain.ReservationReleased, s.ledger.Release)
}

type settleFn func(ctx context.Context, warehouseID, productID string, qty, expectedVersion int) (bool, error)

func (s *WarehouseService) settle(ctx context.Context, orderID string, target domain.ReservationStatus, apply settleFn) error {
	reserved, err := s.reservations.FindReserved(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load reservations for order %s: %w", orderID, err)
	}
	if len(reserved) == 0 {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrReservationNotFound)
	}

	for _, res := range reserved {
		if err := s.settleAt(ctx, res, apply); err != nil {
			return err
		}
		switch target {
		case domain.ReservationConfirmed:
			err = res.Confirm()
		case domain.ReservationReleased:
			err = res.Release()
		}
		if err != nil {
			return err
		}
		if err := s.reservations.Save(ctx, res); err != nil {
			return fmt.Errorf("save reservation for order %s: %w", orderID, err)
		}
		s.invalidate(ctx, res.ProductID)
	}
	return nil
}

func (s *WarehouseService) settleAt(ctx context.Context, res *domain.Reservation, apply settleFn) error {
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		rec, err := s.ledger.Find(ctx, res.WarehouseID, res.ProductID)
		if err != nil {
			return fmt.Errorf("warehouse %s: %w", res.WarehouseID, err)
		}
		if !rec.CanSettle(res.Quantity) {
			// 预占量对不上台账，说明状态被越过流转，属于严重数据问题
			return fmt.Errorf("warehouse %s has %d reserved, need %d: %w",
				res.WarehouseID, rec.Reserved, res.Quantity, domain.ErrInvalidQuantity)
		}

		applied, err := apply(ctx, res.WarehouseID, res.ProductID, res.Quantity, rec.Version)
		if err != nil {
			return fmt.Errorf("warehouse %s: %w", res.WarehouseID, err)
		}
		if applied {
			return nil
		}
		if err := sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("warehouse %s after %d attempts: %w", res.WarehouseID, maxRetryAttempts, domain.ErrReservationConflict)
}

// UpdateStock 库存管理入口：ADD / SET / SUBTRACT，首次铺货时自动建行。
func (s *WarehouseService) UpdateStock(ctx context.Context, warehouseID, productID, operation string, qty int) (*domain.InventoryRecord, error) {
	ctx, span := s.tracer.Start(ctx, "warehouse.UpdateStock")
	defer span.End()

	rec, err := s.ledger.Find(ctx, warehouseID, productID)
	if errors.Is(err, domain.ErrInventoryNotFound) {
		rec = &domain.InventoryRecord{WarehouseID: warehouseID, ProductID: productID}
	} else if err != nil {
		return nil, err
	}

	switch operation {
	case "ADD":
		rec.Available += qty
	case "SET":
		rec.Available = qty
	case "SUBTRACT":
		if rec.Available-qty < 0 {
			return nil, domain.ErrInvalidQuantity
		}
		rec.Available -= qty
	default:
		return nil, fmt.Errorf("invalid stock operation: %s", operation)
	}
	if rec.Available < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	rec.Version++
	rec.UpdatedAt = time.Now()

	if err := s.ledger.Upsert(ctx, rec); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.invalidate(ctx, productID)
	return rec, nil
}

func (s *WarehouseService) cachedTotal(ctx context.Context, productID string) (int, bool) {
	if s.cache == nil {
		return 0, false
	}
	total, ok, err := s.cache.GetTotal(ctx, productID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product", productID).Msg("availability cache read failed")
		return 0, false
	}
	return total, ok
}

func (s *WarehouseService) storeTotal(ctx context.Context, productID string, total int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetTotal(ctx, productID, total); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product", productID).Msg("availability cache write failed")
	}
}

func (s *WarehouseService) invalidate(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, productID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product", productID).Msg("availability cache invalidation failed")
	}
}

func sleepBackoff(ctx context.Context, attempt int) error {
	select {
	case <-time.After(retryBackoffStep * time.Duration(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
