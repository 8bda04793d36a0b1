// internal/service/bank/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"orchard/internal/service/bank/domain"
)

// GormTransactionRepository 是 TransactionRepository 的 GORM 实现
type GormTransactionRepository struct {
	db *gorm.DB
}

func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

func (r *GormTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	return r.db.WithContext(ctx).Create(toTransactionModel(tx)).Error
}

func (r *GormTransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	return r.db.WithContext(ctx).Model(&TransactionModel{}).
		Where("bank_tx_id = ?", tx.BankTxID).
		Updates(map[string]interface{}{
			"status":     string(tx.Status),
			"message":    tx.Message,
			"updated_at": tx.UpdatedAt,
		}).Error
}

func (r *GormTransactionRepository) FindSucceeded(ctx context.Context, orderID string, txType domain.TxType) (*domain.Transaction, error) {
	var model TransactionModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND tx_type = ? AND status = ?",
			orderID, string(txType), string(domain.TxStatusSucceeded)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainTransaction(&model), nil
}

// GormAccountRepository 是 AccountRepository 的 GORM 实现
type GormAccountRepository struct {
	db *gorm.DB
}

func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

func (r *GormAccountRepository) FindByUser(ctx context.Context, userID string) (*domain.Account, error) {
	var model AccountModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &domain.Account{
		UserID:    model.UserID,
		Currency:  model.Currency,
		Balance:   model.Balance,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// Transfer 扣出方带余额条件做原子扣减，RowsAffected==0 视为余额不足。
// 两条 UPDATE 在同一数据库事务里，划转要么整体生效要么整体回滚。
func (r *GormAccountRepository) Transfer(ctx context.Context, fromUserID, toUserID string, amount float64, currency string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		debit := tx.Model(&AccountModel{}).
			Where("user_id = ? AND currency = ? AND balance >= ?", fromUserID, currency, amount).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance - ?", amount),
				"updated_at": time.Now(),
			})
		if debit.Error != nil {
			return debit.Error
		}
		if debit.RowsAffected == 0 {
			return domain.ErrInsufficientFunds
		}

		credit := tx.Model(&AccountModel{}).
			Where("user_id = ? AND currency = ?", toUserID, currency).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance + ?", amount),
				"updated_at": time.Now(),
			})
		if credit.Error != nil {
			return credit.Error
		}
		if credit.RowsAffected == 0 {
			return domain.ErrAccountNotFound
		}
		return nil
	})
}
