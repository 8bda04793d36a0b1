// internal/service/bank/domain/account.go
package domain

import "time"

// StoreAccountUserID 店铺收款账户。客户扣款后资金划入这里，
// 退款时再从这里划出。
const StoreAccountUserID = "STORE-MAIN"

// Account 账户余额，(userId, currency) 唯一。
// 余额只能由成功的流水驱动变化，balance >= 0 由扣款前置检查保证。
type Account struct {
	UserID    string
	Currency  string
	Balance   float64
	UpdatedAt time.Time
}

// CanDebit 扣款前置检查。
func (a *Account) CanDebit(amount float64, currency string) error {
	if a.Currency != currency {
		return ErrCurrencyMismatch
	}
	if a.Balance < amount {
		return ErrInsufficientFunds
	}
	return nil
}
