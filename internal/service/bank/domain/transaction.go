// internal/service/bank/domain/transaction.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

type TxType string

const (
	TxTypeDebit  TxType = "DEBIT"
	TxTypeRefund TxType = "REFUND"
)

type TxStatus string

const (
	TxStatusRequested TxStatus = "REQUESTED"
	TxStatusSucceeded TxStatus = "SUCCEEDED"
	TxStatusFailed    TxStatus = "FAILED"
)

// Transaction 是支付流水账的一条记录。
// 创建时为 REQUESTED，之后恰好流转一次到终态，永不删除。
// FAILED 的记录同样落库，既是审计凭据也是排查线索；
// (orderId, txType) 维度最多只允许一条 SUCCEEDED，这是幂等回放的依据。
type Transaction struct {
	BankTxID  string
	OrderID   string
	UserID    string
	TxType    TxType
	Amount    float64
	Currency  string
	Status    TxStatus
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTransaction 创建一条 REQUESTED 状态的流水。
func NewTransaction(orderID, userID string, txType TxType, amount float64, currency string) *Transaction {
	now := time.Now()
	return &Transaction{
		BankTxID:  "TX-" + uuid.NewString(),
		OrderID:   orderID,
		UserID:    userID,
		TxType:    txType,
		Amount:    amount,
		Currency:  currency,
		Status:    TxStatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (t *Transaction) MarkSucceeded(message string) error {
	if t.Status != TxStatusRequested {
		return ErrInvalidStatusTransition
	}
	t.Status = TxStatusSucceeded
	t.Message = message
	t.UpdatedAt = time.Now()
	return nil
}

func (t *Transaction) MarkFailed(reason string) error {
	if t.Status != TxStatusRequested {
		return ErrInvalidStatusTransition
	}
	t.Status = TxStatusFailed
	t.Message = reason
	t.UpdatedAt = time.Now()
	return nil
}
