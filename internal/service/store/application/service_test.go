package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"orchard/internal/service/store/domain"
	"orchard/internal/service/store/domain/port"
)

// ---- in-memory fakes ----

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*domain.Order)}
}

func (r *memOrders) Save(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *memOrders) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *memOrders) FindStalled(_ context.Context, states []domain.State, before time.Time) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		for _, s := range states {
			if o.State == s && o.UpdatedAt.Before(before) {
				cp := *o
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (r *memOrders) state(id string) domain.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id].State
}

// ageOrder 把订单的更新时间拨回过去，模拟停滞。
func (r *memOrders) ageOrder(id string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[id].UpdatedAt = time.Now().Add(-d)
}

type fakeWarehouse struct {
	mu           sync.Mutex
	available    bool
	reserveErr   error
	confirmErr   error
	reserved     map[string]bool // orderID -> has RESERVED rows
	releaseCalls []string
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{available: true, reserved: make(map[string]bool)}
}

func (w *fakeWarehouse) CheckAvailability(_ context.Context, _ string, qty int) (bool, []port.WarehouseAllocation, error) {
	if !w.available {
		return false, nil, nil
	}
	return true, []port.WarehouseAllocation{{WarehouseID: "WH-A", Quantity: qty}}, nil
}

func (w *fakeWarehouse) ReserveStock(_ context.Context, orderID, _ string, _ int, _ []port.WarehouseAllocation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reserveErr != nil {
		return w.reserveErr
	}
	w.reserved[orderID] = true
	return nil
}

func (w *fakeWarehouse) ConfirmReservation(_ context.Context, orderID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.confirmErr != nil {
		return w.confirmErr
	}
	if !w.reserved[orderID] {
		return errors.New("reservation not found")
	}
	w.reserved[orderID] = false // CONFIRMED 之后不再有 RESERVED 行
	return nil
}

func (w *fakeWarehouse) ReleaseStock(_ context.Context, orderID, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseCalls = append(w.releaseCalls, orderID)
	if !w.reserved[orderID] {
		return errors.New("reservation not found")
	}
	w.reserved[orderID] = false
	return nil
}

func (w *fakeWarehouse) releases(orderID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, id := range w.releaseCalls {
		if id == orderID {
			n++
		}
	}
	return n
}

type fakeBank struct {
	mu       sync.Mutex
	debitErr error
	debits   map[string]float64
	refunds  map[string]float64
}

func newFakeBank() *fakeBank {
	return &fakeBank{debits: make(map[string]float64), refunds: make(map[string]float64)}
}

func (b *fakeBank) Debit(_ context.Context, orderID, _ string, amount float64, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.debitErr != nil {
		return "", b.debitErr
	}
	b.debits[orderID] = amount
	return "TX-" + orderID, nil
}

func (b *fakeBank) Refund(_ context.Context, orderID string, amount float64, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.debits[orderID]; !ok {
		return errors.New("no succeeded debit found for refund")
	}
	b.refunds[orderID] = amount
	return nil
}

func (b *fakeBank) refunded(orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.refunds[orderID]
	return ok
}

type fakeDelivery struct {
	mu        sync.Mutex
	requests  []string
	cancels   []string
	reqErr    error
}

func (d *fakeDelivery) RequestDelivery(_ context.Context, req *port.DeliveryRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reqErr != nil {
		return d.reqErr
	}
	d.requests = append(d.requests, req.OrderID)
	return nil
}

func (d *fakeDelivery) CancelDelivery(_ context.Context, orderID, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancels = append(d.cancels, orderID)
	return nil
}

func (d *fakeDelivery) cancelled(orderID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.cancels {
		if id == orderID {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*port.Notification
}

func (n *fakeNotifier) Send(_ context.Context, notification *port.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifier) subjects(orderID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, note := range n.sent {
		if note.OrderID == orderID {
			out = append(out, note.Subject)
		}
	}
	return out
}

type passAllRules struct{}

func (passAllRules) Validate(_ context.Context, _ *domain.Order) error { return nil }

type rejectAllRules struct{}

func (rejectAllRules) Validate(_ context.Context, _ *domain.Order) error {
	return domain.ErrOrderValidationFailed
}

type noopProducer struct{}

func (noopProducer) PublishOrderCreation(_ context.Context, _ *domain.OrderCreationRequested) error {
	return nil
}

type testEnv struct {
	orders    *memOrders
	warehouse *fakeWarehouse
	bank      *fakeBank
	delivery  *fakeDelivery
	notifier  *fakeNotifier
	svc       *OrderApplicationService
}

func newTestEnv(rules port.OrderRuleEngine) *testEnv {
	env := &testEnv{
		orders:    newMemOrders(),
		warehouse: newFakeWarehouse(),
		bank:      newFakeBank(),
		delivery:  &fakeDelivery{},
		notifier:  &fakeNotifier{},
	}
	env.svc = NewOrderApplicationService(
		env.orders, 30*time.Second, otel.Tracer("store-test"), noopProducer{},
		rules, env.warehouse, env.bank, env.delivery, env.notifier,
	)
	return env
}

func creationEvent(orderID string) *domain.OrderCreationRequested {
	return &domain.OrderCreationRequested{
		EventID:       orderID,
		UserID:        "user-1",
		CustomerEmail: "user-1@example.com",
		ProductID:     "P1",
		Quantity:      2,
		Amount:        20,
		Currency:      "USD",
	}
}

// ---- saga happy path ----

func TestSaga_HappyPath(t *testing.T) {
	env := newTestEnv(passAllRules{})

	if err := env.svc.HandleOrderCreationEvent(context.Background(), creationEvent("ORD-1")); err != nil {
		t.Fatalf("HandleOrderCreationEvent: %v", err)
	}
	if got := env.orders.state("ORD-1"); got != domain.StateDeliveryRequested {
		t.Errorf("state = %s, want DELIVERY_REQUESTED", got)
	}
	if len(env.delivery.requests) != 1 {
		t.Errorf("delivery requests = %d, want 1", len(env.delivery.requests))
	}
	if env.bank.debits["ORD-1"] != 20 {
		t.Errorf("debit = %.2f, want 20", env.bank.debits["ORD-1"])
	}
	// 预占已被确认，不能再有 RESERVED 行
	if env.warehouse.reserved["ORD-1"] {
		t.Error("reservation still RESERVED after payment, want CONFIRMED")
	}
	subjects := env.notifier.subjects("ORD-1")
	if len(subjects) != 1 || subjects[0] != "ORDER_PLACED" {
		t.Errorf("notifications = %v, want [ORDER_PLACED]", subjects)
	}
}

// ---- stage failures trigger compensation ----

func TestSaga_ValidationFailure(t *testing.T) {
	env := newTestEnv(rejectAllRules{})

	err := env.svc.HandleOrderCreationEvent(context.Background(), creationEvent("ORD-1"))
	if !errors.Is(err, domain.ErrOrderValidationFailed) {
		t.Fatalf("err = %v, want ErrOrderValidationFailed", err)
	}
	if got := env.orders.state("ORD-1"); got != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", got)
	}
	// 验证失败时还没预占任何资源，不应有释放调用
	if n := env.warehouse.releases("ORD-1"); n != 0 {
		t.Errorf("release calls = %d, want 0", n)
	}
	if env.bank.refunded("ORD-1") {
		t.Error("refund issued for order that never paid")
	}
}

func TestSaga_PaymentFailureReleasesStock(t *testing.T) {
	env := newTestEnv(passAllRules{})
	env.bank.debitErr = errors.New("insufficient funds")

	err := env.svc.HandleOrderCreationEvent(context.Background(), creationEvent("ORD-1"))
	if err == nil {
		t.Fatal("expected saga to fail on debit")
	}
	if got := env.orders.state("ORD-1"); got != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", got)
	}
	// 扣款失败：释放预占但不退款
	if n := env.warehouse.releases("ORD-1"); n != 1 {
		t.Errorf("release calls = %d, want 1", n)
	}
	if env.warehouse.reserved["ORD-1"] {
		t.Error("reservation still held after compensation")
	}
	if env.bank.refunded("ORD-1") {
		t.Error("refund issued although debit never succeeded")
	}
	subjects := env.notifier.subjects("ORD-1")
	if len(subjects) != 1 || subjects[0] != "ORDER_FAILED" {
		t.Errorf("notifications = %v, want [ORDER_FAILED]", subjects)
	}
}

func TestSaga_DeliveryFailureRefundsAndCancels(t *testing.T) {
	env := newTestEnv(passAllRules{})
	env.delivery.reqErr = errors.New("kafka unavailable")

	err := env.svc.HandleOrderCreationEvent(context.Background(), creationEvent("ORD-1"))
	if err == nil {
		t.Fatal("expected saga to fail on delivery request")
	}
	if got := env.orders.state("ORD-1"); got != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", got)
	}
	// 扣款已成功：必须退款；预占已确认，释放是容忍的 no-op
	if !env.bank.refunded("ORD-1") {
		t.Error("expected refund after post-payment failure")
	}
	if n := env.warehouse.releases("ORD-1"); n != 1 {
		t.Errorf("release calls = %d, want 1 (tolerated no-op)", n)
	}
}

func TestSaga_UnavailableStock(t *testing.T) {
	env := newTestEnv(passAllRules{})
	env.warehouse.available = false

	err := env.svc.HandleOrderCreationEvent(context.Background(), creationEvent("ORD-1"))
	if err == nil {
		t.Fatal("expected saga to fail when stock is unavailable")
	}
	if env.bank.debits["ORD-1"] != 0 {
		t.Error("debit issued although reservation never happened")
	}
	if got := env.orders.state("ORD-1"); got != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", got)
	}
}

// ---- delivery status events ----

func TestHandleDeliveryStatus_Delivered(t *testing.T) {
	env := newTestEnv(passAllRules{})
	ctx := context.Background()

	if err := env.svc.HandleOrderCreationEvent(ctx, creationEvent("ORD-1")); err != nil {
		t.Fatalf("saga: %v", err)
	}
	err := env.svc.HandleDeliveryStatusEvent(ctx, &domain.DeliveryStatusChanged{
		OrderID:   "ORD-1",
		NewStatus: "DELIVERED",
		Message:   "Your package has been delivered. Enjoy!",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("HandleDeliveryStatusEvent: %v", err)
	}
	if got := env.orders.state("ORD-1"); got != domain.StateDelivered {
		t.Errorf("state = %s, want DELIVERED", got)
	}
	if env.bank.refunded("ORD-1") {
		t.Error("refund issued for delivered order")
	}
}

func TestHandleDeliveryStatus_LostRefunds(t *testing.T) {
	env := newTestEnv(passAllRules{})
	ctx := context.Background()

	if err := env.svc.HandleOrderCreationEvent(ctx, creationEvent("ORD-1")); err != nil {
		t.Fatalf("saga: %v", err)
	}
	err := env.svc.HandleDeliveryStatusEvent(ctx, &domain.DeliveryStatusChanged{
		OrderID:   "ORD-1",
		NewStatus: "LOST",
		Message:   "We are sorry, your package appears to be lost.",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("HandleDeliveryStatusEvent: %v", err)
	}
	if got := env.orders.state("ORD-1"); got != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", got)
	}
	if !env.bank.refunded("ORD-1") {
		t.Error("expected refund for lost package")
	}
}

func TestHandleDeliveryStatus_UnknownOrderIgnored(t *testing.T) {
	env := newTestEnv(passAllRules{})

	err := env.svc.HandleDeliveryStatusEvent(context.Background(), &domain.DeliveryStatusChanged{
		OrderID:   "ORD-404",
		NewStatus: "DELIVERED",
	})
	if err != nil {
		t.Fatalf("unknown order must be ignored, got %v", err)
	}
}

// ---- cancellation ----

func TestCancelOrder_AfterPayment(t *testing.T) {
	env := newTestEnv(passAllRules{})
	ctx := context.Background()

	if err := env.svc.HandleOrderCreationEvent(ctx, creationEvent("ORD-1")); err != nil {
		t.Fatalf("saga: %v", err)
	}
	if err := env.svc.CancelOrder(ctx, "ORD-1", "USER_CANCELLED"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if got := env.orders.state("ORD-1"); got != domain.StateCancelled {
		t.Errorf("state = %s, want CANCELLED", got)
	}
	if !env.bank.refunded("ORD-1") {
		t.Error("expected refund when cancelling a paid order")
	}
	if !env.delivery.cancelled("ORD-1") {
		t.Error("expected delivery cancellation to be dispatched")
	}
}

func TestCancelOrder_TerminalRejected(t *testing.T) {
	env := newTestEnv(passAllRules{})
	ctx := context.Background()

	if err := env.svc.HandleOrderCreationEvent(ctx, creationEvent("ORD-1")); err != nil {
		t.Fatalf("saga: %v", err)
	}
	if err := env.svc.HandleDeliveryStatusEvent(ctx, &domain.DeliveryStatusChanged{
		OrderID: "ORD-1", NewStatus: "DELIVERED",
	}); err != nil {
		t.Fatalf("delivered event: %v", err)
	}

	err := env.svc.CancelOrder(ctx, "ORD-1", "USER_CANCELLED")
	if !errors.Is(err, domain.ErrInvalidOrderState) {
		t.Fatalf("err = %v, want ErrInvalidOrderState", err)
	}
	if env.bank.refunded("ORD-1") {
		t.Error("refund issued for rejected cancellation")
	}
}

func TestCancelOrder_NotFound(t *testing.T) {
	env := newTestEnv(passAllRules{})
	err := env.svc.CancelOrder(context.Background(), "ORD-404", "USER_CANCELLED")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

// ---- timeout monitor ----

func newTestMonitor(env *testEnv) *TimeoutMonitor {
	return NewTimeoutMonitor(
		env.orders, env.warehouse, env.bank, env.delivery, env.notifier,
		15*time.Second, 5*time.Second, otel.Tracer("monitor-test"),
	)
}

// 停在待支付：只释放库存，不退款。
func TestTimeoutMonitor_PendingPaymentReleasesOnly(t *testing.T) {
	env := newTestEnv(passAllRules{})
	ctx := context.Background()

	order, err := domain.NewOrder(creationEvent("ORD-1"))
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	order.MarkAsPendingValidation()
	order.MarkAsPendingPayment()
	env.orders.Save(ctx, order)
	env.warehouse.reserved["ORD-1"] = true
	env.orders.ageOrder("ORD-1", time.Minute)

	newTestMonitor(env).Scan(ctx)

	if got := env.orders.state("ORD-1"); got != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", got)
	}
	if n := env.warehouse.releases("ORD-1"); n != 1 {
		t.Errorf("release calls = %d, want 1", n)
	}
	if env.bank.refunded("ORD-1") {
		t.Error("refund issued although no debit had succeeded")
	}
}

// 停在支付成功之后：退款加释放。
func TestTimeoutMonitor_PostPaymentRefundsAndReleases(t *testing.T) {
	env := newTestEnv(passAllRules{})
	ctx := context.Background()

	order, err := domain.NewOrder(creationEvent("ORD-2"))
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	order.MarkAsPendingValidation()
	order.MarkAsPendingPayment()
	order.MarkAsPaymentSuccessful()
	env.orders.Save(ctx, order)
	env.bank.debits["ORD-2"] = 20
	env.orders.ageOrder("ORD-2", time.Minute)

	newTestMonitor(env).Scan(ctx)

	if got := env.orders.state("ORD-2"); got != domain.StateFailed {
		t.Errorf("state = %s, want FAILED", got)
	}
	if !env.bank.refunded("ORD-2") {
		t.Error("expected refund for post-payment timeout")
	}
}

// 未超时的在途订单不被碰。
func TestTimeoutMonitor_FreshOrdersUntouched(t *testing.T) {
	env := newTestEnv(passAllRules{})
	ctx := context.Background()

	order, err := domain.NewOrder(creationEvent("ORD-3"))
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	order.MarkAsPendingValidation()
	order.MarkAsPendingPayment()
	env.orders.Save(ctx, order)

	newTestMonitor(env).Scan(ctx)

	if got := env.orders.state("ORD-3"); got != domain.StatePendingPayment {
		t.Errorf("state = %s, fresh order must not be compensated", got)
	}
}
