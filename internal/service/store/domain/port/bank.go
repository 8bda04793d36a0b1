// internal/service/store/domain/port/bank.go
package port

import "context"

// BankService 是支付服务的出站端口。
// Debit/Refund 都是幂等的：重复请求返回原始结果而不是重复扣款。
type BankService interface {
	// Debit 为订单扣款，返回银行流水号。
	Debit(ctx context.Context, orderID, userID string, amount float64, currency string) (bankTxID string, err error)

	// Refund 是 Debit 的补偿操作。
	Refund(ctx context.Context, orderID string, amount float64, currency string) error
}
