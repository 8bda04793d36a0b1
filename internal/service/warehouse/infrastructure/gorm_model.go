// internal/service/warehouse/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"orchard/internal/service/warehouse/domain"
)

// ReservationModel 对应数据库中的 stock_reservation 表
type ReservationModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	OrderID     string `gorm:"index:idx_order_status"`
	WarehouseID string
	ProductID   string
	Quantity    int
	Status      string `gorm:"index:idx_order_status"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ReservationModel) TableName() string {
	return "stock_reservation"
}

// WarehouseModel 对应数据库中的 warehouse 表
type WarehouseModel struct {
	WarehouseID string `gorm:"primaryKey"`
	Name        string
	Address     string
	Status      string `gorm:"default:ACTIVE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (WarehouseModel) TableName() string {
	return "warehouse"
}

func toDomainReservation(m *ReservationModel) *domain.Reservation {
	return &domain.Reservation{
		OrderID:     m.OrderID,
		WarehouseID: m.WarehouseID,
		ProductID:   m.ProductID,
		Quantity:    m.Quantity,
		Status:      domain.ReservationStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toDomainWarehouse(m *WarehouseModel) *domain.Warehouse {
	return &domain.Warehouse{
		ID:      m.WarehouseID,
		Name:    m.Name,
		Address: m.Address,
		Status:  m.Status,
	}
}
