package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"

	"orchard/internal/service/bank/domain"
)

// ---- in-memory fakes ----

type memAccounts struct {
	mu       sync.Mutex
	balances map[string]*domain.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{balances: make(map[string]*domain.Account)}
}

func (a *memAccounts) put(userID, currency string, balance float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[userID] = &domain.Account{UserID: userID, Currency: currency, Balance: balance}
}

func (a *memAccounts) FindByUser(_ context.Context, userID string) (*domain.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.balances[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (a *memAccounts) Transfer(_ context.Context, fromUserID, toUserID string, amount float64, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	from, ok := a.balances[fromUserID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if from.Balance < amount {
		return domain.ErrInsufficientFunds
	}
	from.Balance -= amount
	if to, ok := a.balances[toUserID]; ok {
		to.Balance += amount
	}
	return nil
}

func (a *memAccounts) balance(userID string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[userID].Balance
}

type memTransactions struct {
	mu   sync.Mutex
	rows []*domain.Transaction
}

func (t *memTransactions) Create(_ context.Context, tx *domain.Transaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, tx)
	return nil
}

func (t *memTransactions) Save(_ context.Context, tx *domain.Transaction) error {
	return nil
}

func (t *memTransactions) FindSucceeded(_ context.Context, orderID string, txType domain.TxType) (*domain.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range t.rows {
		if row.OrderID == orderID && row.TxType == txType && row.Status == domain.TxStatusSucceeded {
			return row, nil
		}
	}
	return nil, nil
}

func (t *memTransactions) countByStatus(orderID string, status domain.TxStatus) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, row := range t.rows {
		if row.OrderID == orderID && row.Status == status {
			n++
		}
	}
	return n
}

type memResults struct {
	mu      sync.Mutex
	results []*domain.TransactionResult
}

func (p *memResults) PublishResult(_ context.Context, result *domain.TransactionResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
	return nil
}

func alwaysApprove() bool { return true }
func alwaysDecline() bool { return false }

func newTestBank(accounts *memAccounts, txs *memTransactions, results *memResults, settle SettlementDecider) *BankService {
	return NewBankService(accounts, txs, results, settle, otel.Tracer("bank-test"))
}

func seedAccounts(customerBalance float64) *memAccounts {
	accounts := newMemAccounts()
	accounts.put("user-1", "USD", customerBalance)
	accounts.put(domain.StoreAccountUserID, "USD", 0)
	return accounts
}

// ---- ProcessDebit ----

func TestProcessDebit_Success(t *testing.T) {
	accounts := seedAccounts(100)
	txs := &memTransactions{}
	results := &memResults{}
	svc := newTestBank(accounts, txs, results, alwaysApprove)

	tx, err := svc.ProcessDebit(context.Background(), "ORD-1", "user-1", 20, "USD")
	if err != nil {
		t.Fatalf("ProcessDebit: %v", err)
	}
	if tx.Status != domain.TxStatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", tx.Status)
	}
	if got := accounts.balance("user-1"); got != 80 {
		t.Errorf("customer balance = %.2f, want 80", got)
	}
	if got := accounts.balance(domain.StoreAccountUserID); got != 20 {
		t.Errorf("store balance = %.2f, want 20", got)
	}
	if len(results.results) != 1 || results.results[0].Status != domain.TxStatusSucceeded {
		t.Errorf("expected one SUCCEEDED result event, got %+v", results.results)
	}
}

// 同一订单重复扣款：返回原始流水，余额只动一次。
func TestProcessDebit_IdempotentReplay(t *testing.T) {
	accounts := seedAccounts(100)
	txs := &memTransactions{}
	svc := newTestBank(accounts, txs, &memResults{}, alwaysApprove)
	ctx := context.Background()

	first, err := svc.ProcessDebit(ctx, "ORD-1", "user-1", 20, "USD")
	if err != nil {
		t.Fatalf("first debit: %v", err)
	}
	second, err := svc.ProcessDebit(ctx, "ORD-1", "user-1", 20, "USD")
	if err != nil {
		t.Fatalf("replayed debit: %v", err)
	}
	if second.BankTxID != first.BankTxID {
		t.Errorf("replay returned a new transaction %s, want %s", second.BankTxID, first.BankTxID)
	}
	if got := accounts.balance("user-1"); got != 80 {
		t.Errorf("balance = %.2f, want 80 (debited exactly once)", got)
	}
}

func TestProcessDebit_InsufficientFunds(t *testing.T) {
	accounts := seedAccounts(10)
	txs := &memTransactions{}
	svc := newTestBank(accounts, txs, &memResults{}, alwaysApprove)

	_, err := svc.ProcessDebit(context.Background(), "ORD-1", "user-1", 20, "USD")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	// 失败同样留痕
	if n := txs.countByStatus("ORD-1", domain.TxStatusFailed); n != 1 {
		t.Errorf("FAILED rows = %d, want 1", n)
	}
	if got := accounts.balance("user-1"); got != 10 {
		t.Errorf("balance = %.2f, must be unchanged", got)
	}
}

func TestProcessDebit_CurrencyMismatch(t *testing.T) {
	accounts := seedAccounts(100)
	txs := &memTransactions{}
	svc := newTestBank(accounts, txs, &memResults{}, alwaysApprove)

	_, err := svc.ProcessDebit(context.Background(), "ORD-1", "user-1", 20, "EUR")
	if !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Fatalf("err = %v, want ErrCurrencyMismatch", err)
	}
	if n := txs.countByStatus("ORD-1", domain.TxStatusFailed); n != 1 {
		t.Errorf("FAILED rows = %d, want 1", n)
	}
}

func TestProcessDebit_AccountNotFound(t *testing.T) {
	txs := &memTransactions{}
	svc := newTestBank(newMemAccounts(), txs, &memResults{}, alwaysApprove)

	_, err := svc.ProcessDebit(context.Background(), "ORD-1", "ghost", 20, "USD")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
	if n := txs.countByStatus("ORD-1", domain.TxStatusFailed); n != 1 {
		t.Errorf("FAILED rows = %d, want 1", n)
	}
}

func TestProcessDebit_SettlementDeclined(t *testing.T) {
	accounts := seedAccounts(100)
	txs := &memTransactions{}
	results := &memResults{}
	svc := newTestBank(accounts, txs, results, alwaysDecline)

	_, err := svc.ProcessDebit(context.Background(), "ORD-1", "user-1", 20, "USD")
	if !errors.Is(err, domain.ErrSettlementDeclined) {
		t.Fatalf("err = %v, want ErrSettlementDeclined", err)
	}
	if got := accounts.balance("user-1"); got != 100 {
		t.Errorf("balance = %.2f, declined settlement must not move money", got)
	}
	// 拒绝之后重试应该可以成功，因为没有 SUCCEEDED 记录挡路
	svc2 := newTestBank(accounts, txs, results, alwaysApprove)
	tx, err := svc2.ProcessDebit(context.Background(), "ORD-1", "user-1", 20, "USD")
	if err != nil || tx.Status != domain.TxStatusSucceeded {
		t.Fatalf("retry after decline: tx=%+v err=%v", tx, err)
	}
}

// ---- ProcessRefund ----

func TestProcessRefund_FullFlow(t *testing.T) {
	accounts := seedAccounts(100)
	txs := &memTransactions{}
	svc := newTestBank(accounts, txs, &memResults{}, alwaysApprove)
	ctx := context.Background()

	if _, err := svc.ProcessDebit(ctx, "ORD-1", "user-1", 20, "USD"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	// 超额退款必须被拒绝，无论账户余额多少
	_, err := svc.ProcessRefund(ctx, "ORD-1", 25, "USD")
	if !errors.Is(err, domain.ErrRefundExceedsDebit) {
		t.Fatalf("oversized refund err = %v, want ErrRefundExceedsDebit", err)
	}

	tx, err := svc.ProcessRefund(ctx, "ORD-1", 20, "USD")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if tx.Status != domain.TxStatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", tx.Status)
	}
	if got := accounts.balance("user-1"); got != 100 {
		t.Errorf("customer balance = %.2f, want 100 after full refund", got)
	}
	if got := accounts.balance(domain.StoreAccountUserID); got != 0 {
		t.Errorf("store balance = %.2f, want 0 after full refund", got)
	}
}

func TestProcessRefund_NoDebit(t *testing.T) {
	svc := newTestBank(seedAccounts(100), &memTransactions{}, &memResults{}, alwaysApprove)

	_, err := svc.ProcessRefund(context.Background(), "ORD-404", 20, "USD")
	if !errors.Is(err, domain.ErrNoDebitToRefund) {
		t.Fatalf("err = %v, want ErrNoDebitToRefund", err)
	}
}

func TestProcessRefund_IdempotentReplay(t *testing.T) {
	accounts := seedAccounts(100)
	svc := newTestBank(accounts, &memTransactions{}, &memResults{}, alwaysApprove)
	ctx := context.Background()

	if _, err := svc.ProcessDebit(ctx, "ORD-1", "user-1", 20, "USD"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	first, err := svc.ProcessRefund(ctx, "ORD-1", 20, "USD")
	if err != nil {
		t.Fatalf("first refund: %v", err)
	}
	second, err := svc.ProcessRefund(ctx, "ORD-1", 20, "USD")
	if err != nil {
		t.Fatalf("replayed refund: %v", err)
	}
	if second.BankTxID != first.BankTxID {
		t.Errorf("replay created a new refund %s, want %s", second.BankTxID, first.BankTxID)
	}
	if got := accounts.balance("user-1"); got != 100 {
		t.Errorf("balance = %.2f, refund must apply exactly once", got)
	}
}

func TestProcessRefund_CurrencyMismatch(t *testing.T) {
	svc := newTestBank(seedAccounts(100), &memTransactions{}, &memResults{}, alwaysApprove)
	ctx := context.Background()

	if _, err := svc.ProcessDebit(ctx, "ORD-1", "user-1", 20, "USD"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	_, err := svc.ProcessRefund(ctx, "ORD-1", 20, "EUR")
	if !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Fatalf("err = %v, want ErrCurrencyMismatch", err)
	}
}
