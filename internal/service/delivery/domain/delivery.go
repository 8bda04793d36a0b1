// internal/service/delivery/domain/delivery.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	StatusRequestReceived DeliveryStatus = "REQUEST_RECEIVED"
	StatusPickedUp        DeliveryStatus = "PICKED_UP"
	StatusInTransit       DeliveryStatus = "IN_TRANSIT"
	StatusDelivered       DeliveryStatus = "DELIVERED"
	StatusLost            DeliveryStatus = "LOST"
	StatusCancelled       DeliveryStatus = "CANCELLED"
)

// Delivery 一次配送的生命周期记录。
// DELIVERED / LOST / CANCELLED 是终态，之后任何流转都必须被拒绝。
type Delivery struct {
	ID            string
	OrderID       string
	CustomerID    string
	CustomerEmail string
	Status        DeliveryStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewDelivery(orderID, customerID, customerEmail string) *Delivery {
	now := time.Now()
	return &Delivery{
		ID:            "DLV-" + uuid.NewString(),
		OrderID:       orderID,
		CustomerID:    customerID,
		CustomerEmail: customerEmail,
		Status:        StatusRequestReceived,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewCancelledPlaceholder 为"取消先于配送请求到达"的乱序场景占位。
// 后到的配送请求会撞上这条 CANCELLED 记录而被拒绝，
// 不会为一个已取消的订单重新开启配送生命周期。
func NewCancelledPlaceholder(orderID string) *Delivery {
	d := NewDelivery(orderID, "", "")
	d.Status = StatusCancelled
	return d
}

func (d *Delivery) IsTerminal() bool {
	switch d.Status {
	case StatusDelivered, StatusLost, StatusCancelled:
		return true
	}
	return false
}

// Advance 把配送推进恰好一步。lost 只在 IN_TRANSIT 这一跳生效。
func (d *Delivery) Advance(lost bool) (DeliveryStatus, error) {
	switch d.Status {
	case StatusRequestReceived:
		d.Status = StatusPickedUp
	case StatusPickedUp:
		d.Status = StatusInTransit
	case StatusInTransit:
		if lost {
			d.Status = StatusLost
		} else {
			d.Status = StatusDelivered
		}
	default:
		return d.Status, ErrDeliveryTerminal
	}
	d.UpdatedAt = time.Now()
	return d.Status, nil
}

// Cancel 显式取消。终态配送不允许取消，已取消的重复取消是 no-op。
func (d *Delivery) Cancel() error {
	if d.Status == StatusCancelled {
		return nil
	}
	if d.IsTerminal() {
		return ErrDeliveryTerminal
	}
	d.Status = StatusCancelled
	d.UpdatedAt = time.Now()
	return nil
}
