package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"orchard/internal/pkg/logger"
	"orchard/internal/service/store/application"
	"orchard/internal/service/store/domain"
)

const serviceName = "store-service"

// StoreHandler 封装了 store 服务的 HTTP 处理器
type StoreHandler struct {
	service *application.OrderApplicationService
}

// NewStoreHandler 创建一个新的 HTTP 处理器实例
func NewStoreHandler(service *application.OrderApplicationService) *StoreHandler {
	return &StoreHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *StoreHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/create_order", h.createOrderHandler)
	mux.HandleFunc("/cancel_order", h.cancelOrderHandler)
	mux.HandleFunc("/get_order", h.getOrderHandler)
}

func (h *StoreHandler) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "store.CreateOrderHandler")
	defer span.End()

	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.String("order.user_id", req.UserID),
		attribute.String("order.product_id", req.ProductID),
		attribute.Int("order.quantity", req.Quantity),
	)

	resp, err := h.service.RequestOrderCreation(ctx, &req)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to accept order creation request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

func (h *StoreHandler) cancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "store.CancelOrderHandler")
	defer span.End()

	var req struct {
		OrderID string `json:"orderId"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" {
		http.Error(w, "orderId is required", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	if err := h.service.CancelOrder(ctx, req.OrderID, req.Reason); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"orderId": req.OrderID, "status": string(domain.StateCancelled)})
}

func (h *StoreHandler) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		http.Error(w, "orderId is required", http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}

func extract(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	logger.Ctx(ctx).Warn().Err(err).Msg("order operation rejected")
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidOrderState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidOrder):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
