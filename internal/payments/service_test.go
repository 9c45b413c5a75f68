package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/internal/cart"
	"github.com/mowistore/storefront-backend/internal/orders"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	"github.com/mowistore/storefront-backend/pkg/enums"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
)

type stubTxnRepo struct {
	byIntent map[string]*models.Transaction
	updates  int
}

func newStubTxnRepo(txns ...*models.Transaction) *stubTxnRepo {
	repo := &stubTxnRepo{byIntent: make(map[string]*models.Transaction)}
	for _, txn := range txns {
		repo.byIntent[txn.GatewayIntentID] = txn
	}
	return repo
}

func (s *stubTxnRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubTxnRepo) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	s.byIntent[txn.GatewayIntentID] = txn
	return txn, nil
}

func (s *stubTxnRepo) Update(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	s.updates++
	s.byIntent[txn.GatewayIntentID] = txn
	return txn, nil
}

func (s *stubTxnRepo) FindByIntentID(ctx context.Context, intentID string) (*models.Transaction, error) {
	txn, ok := s.byIntent[intentID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return txn, nil
}

func (s *stubTxnRepo) FindByIntentIDForUpdate(ctx context.Context, intentID string) (*models.Transaction, error) {
	return s.FindByIntentID(ctx, intentID)
}

func (s *stubTxnRepo) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error) {
	for _, txn := range s.byIntent {
		if txn.OrderID == orderID {
			return txn, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type stubOrdersRepo struct {
	orders map[uuid.UUID]*models.Order
}

func newStubOrdersRepo(list ...*models.Order) *stubOrdersRepo {
	repo := &stubOrdersRepo{orders: make(map[uuid.UUID]*models.Order)}
	for _, order := range list {
		repo.orders[order.ID] = order
	}
	return repo
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository {
	return s
}

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) CreateLines(ctx context.Context, lines []models.OrderLine) error {
	panic("not implemented")
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (s *stubOrdersRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) FindLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	order, ok := s.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	order.Status = status
	return nil
}

type stubCartRepo struct {
	cart  *models.Cart
	lines map[uuid.UUID]*models.CartLine
}

func newStubCartRepo(c *models.Cart, lines ...*models.CartLine) *stubCartRepo {
	repo := &stubCartRepo{cart: c, lines: make(map[uuid.UUID]*models.CartLine)}
	for _, line := range lines {
		repo.lines[line.ID] = line
	}
	return repo
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) cart.Repository {
	return s
}

func (s *stubCartRepo) Create(ctx context.Context, c *models.Cart) (*models.Cart, error) {
	panic("not implemented")
}

func (s *stubCartRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if s.cart == nil || s.cart.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.cart, nil
}

func (s *stubCartRepo) FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.FindByUserID(ctx, userID)
}

func (s *stubCartRepo) FindLine(ctx context.Context, lineID uuid.UUID) (*models.CartLine, error) {
	panic("not implemented")
}

func (s *stubCartRepo) FindLineByProduct(ctx context.Context, cartID, productID uuid.UUID) (*models.CartLine, error) {
	panic("not implemented")
}

func (s *stubCartRepo) CreateLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error) {
	panic("not implemented")
}

func (s *stubCartRepo) UpdateLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error) {
	panic("not implemented")
}

func (s *stubCartRepo) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	panic("not implemented")
}

func (s *stubCartRepo) DeleteLines(ctx context.Context, cartID uuid.UUID) error {
	for id, line := range s.lines {
		if line.CartID == cartID {
			delete(s.lines, id)
		}
	}
	return nil
}

type stubGateway struct {
	createIntent func(ctx context.Context, amountMinor int64, currency string, orderID uuid.UUID) (*stripe.PaymentIntent, error)
	getIntent    func(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	created      []int64
}

func (s *stubGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, orderID uuid.UUID) (*stripe.PaymentIntent, error) {
	s.created = append(s.created, amountMinor)
	if s.createIntent != nil {
		return s.createIntent(ctx, amountMinor, currency, orderID)
	}
	return &stripe.PaymentIntent{ID: "pi_" + orderID.String()[:8], ClientSecret: "secret"}, nil
}

func (s *stubGateway) GetIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if s.getIntent != nil {
		return s.getIntent(ctx, id)
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func price(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func newTestService(t *testing.T, repo Repository, ordersRepo orders.Repository, carts cart.Repository, gateway Gateway) Service {
	t.Helper()
	svc, err := NewService(repo, ordersRepo, carts, gateway, stubTxRunner{}, testLogger(), nil, time.Second)
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	return svc
}

func TestCreateIntentRecordsPendingTransaction(t *testing.T) {
	order := &models.Order{ID: uuid.New(), UserID: uuid.New(), Total: price("25.00"), Status: enums.OrderStatusPending, PaymentMethod: "stripe"}
	txns := newStubTxnRepo()
	gateway := &stubGateway{}
	svc := newTestService(t, txns, newStubOrdersRepo(order), newStubCartRepo(nil), gateway)

	result, err := svc.CreateIntent(context.Background(), order.ID, decimal.Zero)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(gateway.created) != 1 || gateway.created[0] != 2500 {
		t.Fatalf("expected gateway amount 2500 got %v", gateway.created)
	}
	if !result.Amount.Equal(price("25.00")) {
		t.Fatalf("expected amount 25.00 got %s", result.Amount)
	}
	txn, ok := txns.byIntent[result.IntentID]
	if !ok {
		t.Fatal("expected transaction recorded")
	}
	if txn.Status != enums.TransactionStatusPending {
		t.Fatalf("expected pending transaction got %s", txn.Status)
	}
}

func TestCreateIntentRejectsNonPendingOrder(t *testing.T) {
	order := &models.Order{ID: uuid.New(), Total: price("25.00"), Status: enums.OrderStatusPaid}
	svc := newTestService(t, newStubTxnRepo(), newStubOrdersRepo(order), newStubCartRepo(nil), &stubGateway{})

	_, err := svc.CreateIntent(context.Background(), order.ID, decimal.Zero)
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict got %v", err)
	}
}

func TestCreateIntentMatchingAmountCharges(t *testing.T) {
	order := &models.Order{ID: uuid.New(), UserID: uuid.New(), Total: price("25.00"), Status: enums.OrderStatusPending, PaymentMethod: "stripe"}
	gateway := &stubGateway{}
	svc := newTestService(t, newStubTxnRepo(), newStubOrdersRepo(order), newStubCartRepo(nil), gateway)

	result, err := svc.CreateIntent(context.Background(), order.ID, price("25.00"))
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !result.Amount.Equal(price("25.00")) {
		t.Fatalf("expected amount 25.00 got %s", result.Amount)
	}
	if len(gateway.created) != 1 || gateway.created[0] != 2500 {
		t.Fatalf("expected gateway amount 2500 got %v", gateway.created)
	}
}

func TestCreateIntentRejectsMismatchedAmount(t *testing.T) {
	order := &models.Order{ID: uuid.New(), UserID: uuid.New(), Total: price("25.00"), Status: enums.OrderStatusPending}
	txns := newStubTxnRepo()
	gateway := &stubGateway{}
	svc := newTestService(t, txns, newStubOrdersRepo(order), newStubCartRepo(nil), gateway)

	_, err := svc.CreateIntent(context.Background(), order.ID, price("20.00"))
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error got %v", err)
	}
	if len(gateway.created) != 0 {
		t.Fatalf("expected no gateway call got %v", gateway.created)
	}
	if len(txns.byIntent) != 0 {
		t.Fatalf("expected no transaction got %d", len(txns.byIntent))
	}
}

func TestCreateIntentGatewayTimeout(t *testing.T) {
	order := &models.Order{ID: uuid.New(), Total: price("25.00"), Status: enums.OrderStatusPending}
	txns := newStubTxnRepo()
	gateway := &stubGateway{
		createIntent: func(ctx context.Context, amountMinor int64, currency string, orderID uuid.UUID) (*stripe.PaymentIntent, error) {
			return nil, context.DeadlineExceeded
		},
	}
	svc := newTestService(t, txns, newStubOrdersRepo(order), newStubCartRepo(nil), gateway)

	_, err := svc.CreateIntent(context.Background(), order.ID, decimal.Zero)
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeGatewayTimeout {
		t.Fatalf("expected gateway timeout got %v", err)
	}
	if len(txns.byIntent) != 0 {
		t.Fatalf("expected no transaction got %d", len(txns.byIntent))
	}
}

func TestConfirmSettlesAndClearsCart(t *testing.T) {
	userID := uuid.New()
	order := &models.Order{ID: uuid.New(), UserID: userID, Total: price("25.00"), Status: enums.OrderStatusPending}
	txn := &models.Transaction{
		ID:              uuid.New(),
		GatewayIntentID: "pi_123",
		OrderID:         order.ID,
		Amount:          price("25.00"),
		Status:          enums.TransactionStatusPending,
	}
	cartID := uuid.New()
	leftover := &models.CartLine{ID: uuid.New(), CartID: cartID, ProductID: uuid.New(), Quantity: 1, Subtotal: price("5.00")}
	carts := newStubCartRepo(&models.Cart{ID: cartID, UserID: userID}, leftover)

	svc := newTestService(t, newStubTxnRepo(txn), newStubOrdersRepo(order), carts, &stubGateway{})

	result, err := svc.Confirm(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.State != enums.PaymentStateSettled {
		t.Fatalf("expected settled got %s", result.State)
	}
	if txn.Status != enums.TransactionStatusSettled || txn.SettledAt == nil {
		t.Fatalf("expected settled transaction got %s", txn.Status)
	}
	if order.Status != enums.OrderStatusPaid {
		t.Fatalf("expected order paid got %s", order.Status)
	}
	if len(carts.lines) != 0 {
		t.Fatalf("expected cart cleared got %d lines", len(carts.lines))
	}
}

func TestConfirmTwiceIsIdempotent(t *testing.T) {
	order := &models.Order{ID: uuid.New(), UserID: uuid.New(), Total: price("25.00"), Status: enums.OrderStatusPending}
	txn := &models.Transaction{
		ID:              uuid.New(),
		GatewayIntentID: "pi_123",
		OrderID:         order.ID,
		Amount:          price("25.00"),
		Status:          enums.TransactionStatusPending,
	}
	txns := newStubTxnRepo(txn)
	svc := newTestService(t, txns, newStubOrdersRepo(order), newStubCartRepo(nil), &stubGateway{})

	if _, err := svc.Confirm(context.Background(), "pi_123"); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	firstSettledAt := txn.SettledAt

	result, err := svc.Confirm(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("second confirm failed: %v", err)
	}
	if result.State != enums.PaymentStateSettled {
		t.Fatalf("expected settled got %s", result.State)
	}
	if txns.updates != 1 {
		t.Fatalf("expected single settle write got %d", txns.updates)
	}
	if txn.SettledAt != firstSettledAt {
		t.Fatal("expected settle timestamp unchanged")
	}
}

func TestConfirmFailedStateNotPersisted(t *testing.T) {
	order := &models.Order{ID: uuid.New(), UserID: uuid.New(), Total: price("25.00"), Status: enums.OrderStatusPending}
	txn := &models.Transaction{
		ID:              uuid.New(),
		GatewayIntentID: "pi_123",
		OrderID:         order.ID,
		Amount:          price("25.00"),
		Status:          enums.TransactionStatusPending,
	}
	gateway := &stubGateway{
		getIntent: func(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
		},
	}
	txns := newStubTxnRepo(txn)
	svc := newTestService(t, txns, newStubOrdersRepo(order), newStubCartRepo(nil), gateway)

	result, err := svc.Confirm(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.State != enums.PaymentStateFailed {
		t.Fatalf("expected failed state got %s", result.State)
	}
	// The row stays pending so the confirmation can be retried.
	if txn.Status != enums.TransactionStatusPending {
		t.Fatalf("expected pending transaction got %s", txn.Status)
	}
	if txns.updates != 0 {
		t.Fatalf("expected no writes got %d", txns.updates)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("expected order still pending got %s", order.Status)
	}
}

func TestConfirmUnknownIntent(t *testing.T) {
	svc := newTestService(t, newStubTxnRepo(), newStubOrdersRepo(), newStubCartRepo(nil), &stubGateway{})

	_, err := svc.Confirm(context.Background(), "pi_missing")
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestConfirmRequiresPaymentMethodState(t *testing.T) {
	order := &models.Order{ID: uuid.New(), UserID: uuid.New(), Total: price("25.00"), Status: enums.OrderStatusPending}
	txn := &models.Transaction{
		ID:              uuid.New(),
		GatewayIntentID: "pi_123",
		OrderID:         order.ID,
		Amount:          price("25.00"),
		Status:          enums.TransactionStatusPending,
	}
	gateway := &stubGateway{
		getIntent: func(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil
		},
	}
	svc := newTestService(t, newStubTxnRepo(txn), newStubOrdersRepo(order), newStubCartRepo(nil), gateway)

	result, err := svc.Confirm(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if result.State != enums.PaymentStatePendingInput {
		t.Fatalf("expected requires_payment_method got %s", result.State)
	}
	if txn.Status != enums.TransactionStatusPending {
		t.Fatalf("expected pending transaction got %s", txn.Status)
	}
}
