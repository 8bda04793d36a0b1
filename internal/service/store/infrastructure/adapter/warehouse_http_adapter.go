// internal/service/store/infrastructure/adapter/warehouse_http_adapter.go
package adapter

import (
	"context"
	"fmt"

	"orchard/internal/pkg/httpclient"
	"orchard/internal/service/store/domain/port"
)

// WarehouseHTTPAdapter 实现了 port.WarehouseService 接口。
type WarehouseHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

// NewWarehouseHTTPAdapter 创建一个新的仓库服务适配器。
func NewWarehouseHTTPAdapter(client *httpclient.Client, baseURL string) *WarehouseHTTPAdapter {
	return &WarehouseHTTPAdapter{client: client, baseURL: baseURL}
}

type availabilityResponse struct {
	Available  bool `json:"available"`
	Warehouses []struct {
		WarehouseID       string `json:"warehouseId"`
		AllocatedQuantity int    `json:"allocatedQuantity"`
	} `json:"warehouses"`
}

func (a *WarehouseHTTPAdapter) CheckAvailability(ctx context.Context, productID string, qty int) (bool, []port.WarehouseAllocation, error) {
	req := map[string]interface{}{"productId": productID, "quantity": qty}
	var resp availabilityResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/check_availability", req, &resp); err != nil {
		return false, nil, fmt.Errorf("check availability: %w", err)
	}
	if !resp.Available {
		return false, nil, nil
	}
	allocations := make([]port.WarehouseAllocation, 0, len(resp.Warehouses))
	for _, w := range resp.Warehouses {
		allocations = append(allocations, port.WarehouseAllocation{
			WarehouseID: w.WarehouseID,
			Quantity:    w.AllocatedQuantity,
		})
	}
	return true, allocations, nil
}

func (a *WarehouseHTTPAdapter) ReserveStock(ctx context.Context, orderID, productID string, qty int, allocations []port.WarehouseAllocation) error {
	req := map[string]interface{}{
		"orderId":     orderID,
		"productId":   productID,
		"quantity":    qty,
		"allocations": allocations,
	}
	if err := a.client.PostJSON(ctx, a.baseURL+"/reserve_stock", req, nil); err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	return nil
}

func (a *WarehouseHTTPAdapter) ConfirmReservation(ctx context.Context, orderID string) error {
	req := map[string]interface{}{"orderId": orderID}
	if err := a.client.PostJSON(ctx, a.baseURL+"/confirm_reservation", req, nil); err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	return nil
}

// ReleaseStock 实现了释放库存的补偿逻辑。
func (a *WarehouseHTTPAdapter) ReleaseStock(ctx context.Context, orderID, reason string) error {
	req := map[string]interface{}{"orderId": orderID, "reason": reason}
	if err := a.client.PostJSON(ctx, a.baseURL+"/release_stock", req, nil); err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}
