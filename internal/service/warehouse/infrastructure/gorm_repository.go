// internal/service/warehouse/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"orchard/internal/service/warehouse/domain"
)

// GormReservationRepository 是 ReservationRepository 的 GORM 实现
type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	model := ReservationModel{
		OrderID:     res.OrderID,
		WarehouseID: res.WarehouseID,
		ProductID:   res.ProductID,
		Quantity:    res.Quantity,
		Status:      string(res.Status),
		CreatedAt:   res.CreatedAt,
		UpdatedAt:   res.UpdatedAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *GormReservationRepository) FindReserved(ctx context.Context, orderID string) ([]*domain.Reservation, error) {
	var models []ReservationModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, string(domain.ReservationReserved)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		out = append(out, toDomainReservation(&models[i]))
	}
	return out, nil
}

func (r *GormReservationRepository) Save(ctx context.Context, res *domain.Reservation) error {
	// 状态只会从 RESERVED 单向流转，按业务键定位行做部分更新
	return r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("order_id = ? AND warehouse_id = ? AND product_id = ? AND status = ?",
			res.OrderID, res.WarehouseID, res.ProductID, string(domain.ReservationReserved)).
		Updates(map[string]interface{}{
			"status":     string(res.Status),
			"updated_at": res.UpdatedAt,
		}).Error
}

// GormWarehouseRepository 仓库主数据的 GORM 实现
type GormWarehouseRepository struct {
	db *gorm.DB
}

func NewGormWarehouseRepository(db *gorm.DB) *GormWarehouseRepository {
	return &GormWarehouseRepository{db: db}
}

func (r *GormWarehouseRepository) FindByID(ctx context.Context, id string) (*domain.Warehouse, error) {
	var model WarehouseModel
	err := r.db.WithContext(ctx).Where("warehouse_id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWarehouseNotFound
		}
		return nil, err
	}
	return toDomainWarehouse(&model), nil
}
