// internal/service/warehouse/domain/reservation.go
package domain

import "time"

// ReservationStatus 预占记录的生命周期状态。
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation 记录一个订单在某个仓库对某个商品的预占。
// CONFIRMED / RELEASED 是终态，不允许再次流转，
// 这样重复的确认/释放请求会被显式拒绝而不是静默吞掉。
type Reservation struct {
	OrderID     string
	WarehouseID string
	ProductID   string
	Quantity    int
	Status      ReservationStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewReservation 创建一条 RESERVED 状态的预占记录。
func NewReservation(orderID, warehouseID, productID string, qty int) *Reservation {
	now := time.Now()
	return &Reservation{
		OrderID:     orderID,
		WarehouseID: warehouseID,
		ProductID:   productID,
		Quantity:    qty,
		Status:      ReservationReserved,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Confirm 将预占转为确认。只有 RESERVED 状态可以流转。
func (r *Reservation) Confirm() error {
	if r.Status != ReservationReserved {
		return ErrInvalidStatusTransition
	}
	r.Status = ReservationConfirmed
	r.UpdatedAt = time.Now()
	return nil
}

// Release 将预占释放回库存。只有 RESERVED 状态可以流转。
func (r *Reservation) Release() error {
	if r.Status != ReservationReserved {
		return ErrInvalidStatusTransition
	}
	r.Status = ReservationReleased
	r.UpdatedAt = time.Now()
	return nil
}
