// internal/service/warehouse/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"orchard/internal/service/warehouse/application"
	"orchard/internal/service/warehouse/domain"
)

// WarehouseHandler 封装了 warehouse 服务的 HTTP 处理器
type WarehouseHandler struct {
	service *application.WarehouseService
}

// NewWarehouseHandler 创建一个新的 HTTP 处理器实例
func NewWarehouseHandler(service *application.WarehouseService) *WarehouseHandler {
	return &WarehouseHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *WarehouseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/check_availability", h.handleCheckAvailability)
	mux.HandleFunc("/reserve_stock", h.handleReserveStock)
	mux.HandleFunc("/confirm_reservation", h.handleConfirmReservation)
	mux.HandleFunc("/release_stock", h.handleReleaseStock)
	mux.HandleFunc("/update_stock", h.handleUpdateStock)
}

type reserveStockRequest struct {
	OrderID     string                   `json:"orderId"`
	ProductID   string                   `json:"productId"`
	Quantity    int                      `json:"quantity"`
	Allocations []application.Allocation `json:"allocations"`
}

type settleRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

type updateStockRequest struct {
	WarehouseID string `json:"warehouseId"`
	ProductID   string `json:"productId"`
	Operation   string `json:"operation"`
	Quantity    int    `json:"quantity"`
}

func (h *WarehouseHandler) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.CheckAvailability(ctx, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *WarehouseHandler) handleReserveStock(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req reserveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.ReserveStock(ctx, req.OrderID, req.ProductID, req.Quantity, req.Allocations); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"orderId": req.OrderID,
	})
}

func (h *WarehouseHandler) handleConfirmReservation(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.ConfirmReservation(ctx, req.OrderID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"orderId": req.OrderID,
	})
}

// handleReleaseStock 是补偿接口的处理器
func (h *WarehouseHandler) handleReleaseStock(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.ReleaseStock(ctx, req.OrderID, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"orderId": req.OrderID,
	})
}

func (h *WarehouseHandler) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req updateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.service.UpdateStock(ctx, req.WarehouseID, req.ProductID, req.Operation, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"warehouseId":       rec.WarehouseID,
		"productId":         rec.ProductID,
		"availableQuantity": rec.Available,
		"reservedQuantity":  rec.Reserved,
		"version":           rec.Version,
	})
}

func extract(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

// writeDomainError 根据错误类型返回不同的 HTTP 状态码
func writeDomainError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrInventoryNotFound),
		errors.Is(err, domain.ErrWarehouseNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidStatusTransition):
		statusCode = http.StatusForbidden
	case errors.Is(err, domain.ErrAllocationMismatch),
		errors.Is(err, domain.ErrInvalidQuantity):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrReservationConflict):
		// 重试耗尽后的乐观冲突，客户端可以稍后重试
		statusCode = http.StatusConflict
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
