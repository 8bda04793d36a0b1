// internal/service/store/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"orchard/internal/service/store/domain"
)

// OrderModel 对应数据库中的 store_order 表
type OrderModel struct {
	OrderID       string `gorm:"primaryKey"`
	UserID        string `gorm:"index"`
	CustomerEmail string
	ProductID     string
	Quantity      int
	Amount        float64 `gorm:"type:decimal(12,2)"`
	Currency      string  `gorm:"type:char(3)"`
	State         string  `gorm:"index:idx_state_updated"`
	FailureReason string  `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index:idx_state_updated"`
}

func (OrderModel) TableName() string {
	return "store_order"
}

func toDomainOrder(m *OrderModel) *domain.Order {
	return &domain.Order{
		ID:            m.OrderID,
		UserID:        m.UserID,
		CustomerEmail: m.CustomerEmail,
		ProductID:     m.ProductID,
		Quantity:      m.Quantity,
		Amount:        m.Amount,
		Currency:      m.Currency,
		State:         domain.State(m.State),
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toOrderModel(o *domain.Order) *OrderModel {
	return &OrderModel{
		OrderID:       o.ID,
		UserID:        o.UserID,
		CustomerEmail: o.CustomerEmail,
		ProductID:     o.ProductID,
		Quantity:      o.Quantity,
		Amount:        o.Amount,
		Currency:      o.Currency,
		State:         string(o.State),
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	// 主键冲突时整行覆盖，Save 同时承担创建和更新
	return r.db.WithContext(ctx).Save(toOrderModel(order)).Error
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Where("order_id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindStalled(ctx context.Context, states []domain.State, before time.Time) ([]*domain.Order, error) {
	stateStrs := make([]string, 0, len(states))
	for _, s := range states {
		stateStrs = append(stateStrs, string(s))
	}
	var models []OrderModel
	err := r.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ?", stateStrs, before).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, toDomainOrder(&models[i]))
	}
	return out, nil
}
