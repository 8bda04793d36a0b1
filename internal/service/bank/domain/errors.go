// internal/service/bank/domain/errors.go
package domain

import "errors"

var (
	// ErrAccountNotFound 账户不存在。
	ErrAccountNotFound = errors.New("account not found")
	// ErrCurrencyMismatch 账户币种与请求币种不一致。
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrInsufficientFunds 余额不足。
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSettlementDeclined 银行侧结算被拒，模拟真实渠道的不确定性。
	ErrSettlementDeclined = errors.New("settlement declined by bank")
	// ErrNoDebitToRefund 退款找不到对应的成功扣款。
	ErrNoDebitToRefund = errors.New("no succeeded debit found for refund")
	// ErrRefundExceedsDebit 退款金额超出原扣款金额。
	ErrRefundExceedsDebit = errors.New("refund amount exceeds original debit")
	// ErrInvalidStatusTransition 流水已处于终态。
	ErrInvalidStatusTransition = errors.New("invalid transaction status transition")
)
