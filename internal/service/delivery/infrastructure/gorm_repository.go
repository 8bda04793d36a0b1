// internal/service/delivery/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"orchard/internal/service/delivery/domain"
)

// DeliveryModel 对应数据库中的 delivery 表
type DeliveryModel struct {
	DeliveryID    string `gorm:"primaryKey"`
	OrderID       string `gorm:"uniqueIndex"`
	CustomerID    string
	CustomerEmail string
	Status        string `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (DeliveryModel) TableName() string {
	return "delivery"
}

func toDomainDelivery(m *DeliveryModel) *domain.Delivery {
	return &domain.Delivery{
		ID:            m.DeliveryID,
		OrderID:       m.OrderID,
		CustomerID:    m.CustomerID,
		CustomerEmail: m.CustomerEmail,
		Status:        domain.DeliveryStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// GormDeliveryRepository 是 DeliveryRepository 的 GORM 实现
type GormDeliveryRepository struct {
	db *gorm.DB
}

func NewGormDeliveryRepository(db *gorm.DB) *GormDeliveryRepository {
	return &GormDeliveryRepository{db: db}
}

func (r *GormDeliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	model := DeliveryModel{
		DeliveryID:    d.ID,
		OrderID:       d.OrderID,
		CustomerID:    d.CustomerID,
		CustomerEmail: d.CustomerEmail,
		Status:        string(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *GormDeliveryRepository) FindByOrder(ctx context.Context, orderID string) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainDelivery(&model), nil
}

func (r *GormDeliveryRepository) FindActive(ctx context.Context) ([]*domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []string{
			string(domain.StatusDelivered),
			string(domain.StatusLost),
			string(domain.StatusCancelled),
		}).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Delivery, 0, len(models))
	for i := range models {
		out = append(out, toDomainDelivery(&models[i]))
	}
	return out, nil
}

func (r *GormDeliveryRepository) Save(ctx context.Context, d *domain.Delivery) error {
	return r.db.WithContext(ctx).Model(&DeliveryModel{}).
		Where("delivery_id = ?", d.ID).
		Updates(map[string]interface{}{
			"status":     string(d.Status),
			"updated_at": d.UpdatedAt,
		}).Error
}
