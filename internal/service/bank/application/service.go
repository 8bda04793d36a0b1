// internal/service/bank/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orchard/internal/pkg/logger"
	"orchard/internal/service/bank/domain"
)

// SettlementDecider 决定一笔结算在银行侧是否被接受。
// 生产实现是概率模拟，测试里注入确定性结果。
type SettlementDecider func() bool

// ProbabilisticSettlement 以 successRate 的概率接受结算。
func ProbabilisticSettlement(successRate float64) SettlementDecider {
	return func() bool {
		return rand.Float64() < successRate
	}
}

// BankService 支付流水账。
// 所有业务规则失败（余额不足、币种不符、超额退款）都会落一条
// FAILED 流水再返回错误，而不是只返回错误。
type BankService struct {
	accounts domain.AccountRepository
	txs      domain.TransactionRepository
	results  domain.ResultPublisher
	settle   SettlementDecider
	tracer   trace.Tracer
}

func NewBankService(
	accounts domain.AccountRepository,
	txs domain.TransactionRepository,
	results domain.ResultPublisher,
	settle SettlementDecider,
	tracer trace.Tracer,
) *BankService {
	return &BankService{
		accounts: accounts,
		txs:      txs,
		results:  results,
		settle:   settle,
		tracer:   tracer,
	}
}

// ProcessDebit 为订单扣款。
// 幂等：同一订单已有 SUCCEEDED 的 DEBIT 时直接返回那条流水，
// 余额不会被扣第二次，这让 saga 侧的重试消息天然安全。
func (s *BankService) ProcessDebit(ctx context.Context, orderID, userID string, amount float64, currency string) (*domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "bank.ProcessDebit")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("user.id", userID),
		attribute.Float64("amount", amount),
	)

	if existing, err := s.txs.FindSucceeded(ctx, orderID, domain.TxTypeDebit); err != nil {
		return nil, fmt.Errorf("lookup debit for order %s: %w", orderID, err)
	} else if existing != nil {
		logger.Ctx(ctx).Info().
			Str("order", orderID).
			Str("bankTx", existing.BankTxID).
			Msg("duplicate debit request, replaying original result")
		span.AddEvent("idempotent replay")
		return existing, nil
	}

	tx := domain.NewTransaction(orderID, userID, domain.TxTypeDebit, amount, currency)
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	account, err := s.accounts.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return tx, s.fail(ctx, tx, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("lookup account %s: %w", userID, err)
	}
	if err := account.CanDebit(amount, currency); err != nil {
		return tx, s.fail(ctx, tx, err)
	}

	if !s.settle() {
		span.SetStatus(codes.Error, "settlement declined")
		return tx, s.fail(ctx, tx, domain.ErrSettlementDeclined)
	}

	// 客户余额划入店铺账户，同一事务内完成
	if err := s.accounts.Transfer(ctx, userID, domain.StoreAccountUserID, amount, currency); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			// 并发扣款把余额抢光了，前置检查已经过时
			return tx, s.fail(ctx, tx, domain.ErrInsufficientFunds)
		}
		return nil, fmt.Errorf("transfer for order %s: %w", orderID, err)
	}

	return tx, s.succeed(ctx, tx, "debit settled")
}

// ProcessRefund 为订单退款。要求存在对应的 SUCCEEDED 扣款，
// 金额不得超过原扣款，币种必须一致。重复退款按幂等回放处理。
func (s *BankService) ProcessRefund(ctx context.Context, orderID string, amount float64, currency string) (*domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "bank.ProcessRefund")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Float64("amount", amount))

	if existing, err := s.txs.FindSucceeded(ctx, orderID, domain.TxTypeRefund); err != nil {
		return nil, fmt.Errorf("lookup refund for order %s: %w", orderID, err)
	} else if existing != nil {
		logger.Ctx(ctx).Info().
			Str("order", orderID).
			Str("bankTx", existing.BankTxID).
			Msg("duplicate refund request, replaying original result")
		span.AddEvent("idempotent replay")
		return existing, nil
	}

	debit, err := s.txs.FindSucceeded(ctx, orderID, domain.TxTypeDebit)
	if err != nil {
		return nil, fmt.Errorf("lookup debit for order %s: %w", orderID, err)
	}
	if debit == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNoDebitToRefund)
	}

	tx := domain.NewTransaction(orderID, debit.UserID, domain.TxTypeRefund, amount, currency)
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	if currency != debit.Currency {
		return tx, s.fail(ctx, tx, domain.ErrCurrencyMismatch)
	}
	if amount > debit.Amount {
		return tx, s.fail(ctx, tx, domain.ErrRefundExceedsDebit)
	}

	if !s.settle() {
		span.SetStatus(codes.Error, "settlement declined")
		return tx, s.fail(ctx, tx, domain.ErrSettlementDeclined)
	}

	// 店铺账户划回客户
	if err := s.accounts.Transfer(ctx, domain.StoreAccountUserID, debit.UserID, amount, currency); err != nil {
		return nil, fmt.Errorf("refund transfer for order %s: %w", orderID, err)
	}

	return tx, s.succeed(ctx, tx, "refund settled")
}

func (s *BankService) succeed(ctx context.Context, tx *domain.Transaction, message string) error {
	if err := tx.MarkSucceeded(message); err != nil {
		return err
	}
	if err := s.txs.Save(ctx, tx); err != nil {
		return fmt.Errorf("save transaction %s: %w", tx.BankTxID, err)
	}
	s.publish(ctx, tx)
	logger.Ctx(ctx).Info().
		Str("order", tx.OrderID).
		Str("bankTx", tx.BankTxID).
		Str("type", string(tx.TxType)).
		Float64("amount", tx.Amount).
		Msg("✅ transaction settled")
	return nil
}

// fail 把流水标成 FAILED 落库后返回业务错误，调用方据此终止当前步骤。
func (s *BankService) fail(ctx context.Context, tx *domain.Transaction, cause error) error {
	if err := tx.MarkFailed(cause.Error()); err != nil {
		return err
	}
	if err := s.txs.Save(ctx, tx); err != nil {
		return fmt.Errorf("save transaction %s: %w", tx.BankTxID, err)
	}
	s.publish(ctx, tx)
	logger.Ctx(ctx).Warn().
		Str("order", tx.OrderID).
		Str("bankTx", tx.BankTxID).
		Str("type", string(tx.TxType)).
		Err(cause).
		Msg("transaction failed")
	return cause
}

// publish 结果广播是尽力而为，投递失败不影响流水本身的终态。
func (s *BankService) publish(ctx context.Context, tx *domain.Transaction) {
	if s.results == nil {
		return
	}
	result := &domain.TransactionResult{
		OrderID:  tx.OrderID,
		BankTxID: tx.BankTxID,
		TxType:   tx.TxType,
		Status:   tx.Status,
		Amount:   tx.Amount,
		Currency: tx.Currency,
		Message:  tx.Message,
	}
	if err := s.results.PublishResult(ctx, result); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", tx.OrderID).Msg("failed to publish transaction result")
	}
}
