// internal/service/bank/domain/repository.go
package domain

import "context"

// AccountRepository 账户余额的持久化契约。
type AccountRepository interface {
	FindByUser(ctx context.Context, userID string) (*Account, error)
	// Transfer 在同一事务内从 from 扣出 amount 并划入 to。
	// from 余额不足时返回 ErrInsufficientFunds，整个划转不生效。
	Transfer(ctx context.Context, fromUserID, toUserID string, amount float64, currency string) error
}

// TransactionRepository 支付流水的持久化契约。
type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	Save(ctx context.Context, tx *Transaction) error
	// FindSucceeded 返回 (orderId, txType) 维度的 SUCCEEDED 流水，
	// 不存在时返回 nil, nil。
	FindSucceeded(ctx context.Context, orderID string, txType TxType) (*Transaction, error)
}

// TransactionResult 是对外广播的流水结果事件。
type TransactionResult struct {
	OrderID  string   `json:"orderId"`
	BankTxID string   `json:"bankTxId"`
	TxType   TxType   `json:"txType"`
	Status   TxStatus `json:"status"`
	Amount   float64  `json:"amount"`
	Currency string   `json:"currency"`
	Message  string   `json:"message,omitempty"`
}

// ResultPublisher 把流水结果投递给通知方。
type ResultPublisher interface {
	PublishResult(ctx context.Context, result *TransactionResult) error
}
