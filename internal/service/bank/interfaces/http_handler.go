// internal/service/bank/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"orchard/internal/service/bank/application"
	"orchard/internal/service/bank/domain"
)

// BankHandler 封装了 bank 服务的 HTTP 处理器
type BankHandler struct {
	service *application.BankService
}

// NewBankHandler 创建一个新的 HTTP 处理器实例
func NewBankHandler(service *application.BankService) *BankHandler {
	return &BankHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *BankHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/process_debit", h.handleProcessDebit)
	mux.HandleFunc("/process_refund", h.handleProcessRefund)
}

type debitRequest struct {
	OrderID  string  `json:"orderId"`
	UserID   string  `json:"userId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type refundRequest struct {
	OrderID  string  `json:"orderId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type transactionResponse struct {
	BankTxID string  `json:"bankTxId"`
	OrderID  string  `json:"orderId"`
	TxType   string  `json:"txType"`
	Status   string  `json:"status"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Message  string  `json:"message,omitempty"`
}

func (h *BankHandler) handleProcessDebit(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req debitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.service.ProcessDebit(ctx, req.OrderID, req.UserID, req.Amount, req.Currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeTransaction(w, tx)
}

// handleProcessRefund 是补偿接口的处理器
func (h *BankHandler) handleProcessRefund(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.service.ProcessRefund(ctx, req.OrderID, req.Amount, req.Currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeTransaction(w, tx)
}

func extract(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

// writeDomainError 根据错误类型返回不同的 HTTP 状态码
func writeDomainError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrNoDebitToRefund):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrRefundExceedsDebit):
		statusCode = http.StatusForbidden
	case errors.Is(err, domain.ErrSettlementDeclined):
		// 银行侧拒绝是瞬时结果，客户端可以重试
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}

func writeTransaction(w http.ResponseWriter, tx *domain.Transaction) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactionResponse{
		BankTxID: tx.BankTxID,
		OrderID:  tx.OrderID,
		TxType:   string(tx.TxType),
		Status:   string(tx.Status),
		Amount:   tx.Amount,
		Currency: tx.Currency,
		Message:  tx.Message,
	})
}
