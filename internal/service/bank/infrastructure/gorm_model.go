// internal/service/bank/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"orchard/internal/service/bank/domain"
)

// TransactionModel 对应数据库中的 bank_transaction 表
type TransactionModel struct {
	BankTxID  string `gorm:"primaryKey"`
	OrderID   string `gorm:"index:idx_order_type_status"`
	UserID    string
	TxType    string  `gorm:"index:idx_order_type_status"`
	Amount    float64 `gorm:"type:decimal(12,2)"`
	Currency  string  `gorm:"type:char(3)"`
	Status    string  `gorm:"index:idx_order_type_status"`
	Message   string  `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TransactionModel) TableName() string {
	return "bank_transaction"
}

// AccountModel 对应数据库中的 bank_account 表
type AccountModel struct {
	UserID    string  `gorm:"primaryKey"`
	Currency  string  `gorm:"type:char(3)"`
	Balance   float64 `gorm:"type:decimal(12,2)"`
	UpdatedAt time.Time
}

func (AccountModel) TableName() string {
	return "bank_account"
}

func toDomainTransaction(m *TransactionModel) *domain.Transaction {
	return &domain.Transaction{
		BankTxID:  m.BankTxID,
		OrderID:   m.OrderID,
		UserID:    m.UserID,
		TxType:    domain.TxType(m.TxType),
		Amount:    m.Amount,
		Currency:  m.Currency,
		Status:    domain.TxStatus(m.Status),
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toTransactionModel(t *domain.Transaction) *TransactionModel {
	return &TransactionModel{
		BankTxID:  t.BankTxID,
		OrderID:   t.OrderID,
		UserID:    t.UserID,
		TxType:    string(t.TxType),
		Amount:    t.Amount,
		Currency:  t.Currency,
		Status:    string(t.Status),
		Message:   t.Message,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
