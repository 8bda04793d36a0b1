// internal/service/store/infrastructure/adapter/bank_http_adapter.go
package adapter

import (
	"context"
	"fmt"

	"orchard/internal/pkg/httpclient"
)

// BankHTTPAdapter 实现了 port.BankService 接口。
type BankHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

// NewBankHTTPAdapter 创建一个新的支付服务适配器。
func NewBankHTTPAdapter(client *httpclient.Client, baseURL string) *BankHTTPAdapter {
	return &BankHTTPAdapter{client: client, baseURL: baseURL}
}

type transactionResponse struct {
	BankTxID string `json:"bankTxId"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

func (a *BankHTTPAdapter) Debit(ctx context.Context, orderID, userID string, amount float64, currency string) (string, error) {
	req := map[string]interface{}{
		"orderId":  orderID,
		"userId":   userID,
		"amount":   amount,
		"currency": currency,
	}
	var resp transactionResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/process_debit", req, &resp); err != nil {
		return "", fmt.Errorf("debit: %w", err)
	}
	if resp.Status != "SUCCEEDED" {
		return "", fmt.Errorf("debit for order %s rejected: %s", orderID, resp.Message)
	}
	return resp.BankTxID, nil
}

// Refund 实现了退款的补偿逻辑。
func (a *BankHTTPAdapter) Refund(ctx context.Context, orderID string, amount float64, currency string) error {
	req := map[string]interface{}{
		"orderId":  orderID,
		"amount":   amount,
		"currency": currency,
	}
	var resp transactionResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/process_refund", req, &resp); err != nil {
		return fmt.Errorf("refund: %w", err)
	}
	if resp.Status != "SUCCEEDED" {
		return fmt.Errorf("refund for order %s rejected: %s", orderID, resp.Message)
	}
	return nil
}
