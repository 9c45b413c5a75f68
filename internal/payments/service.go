package payments

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/mowistore/storefront-backend/pkg/metrics"
)

const defaultGatewayTimeout = 10 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes payment intent creation and reconciliation.
type Service interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*IntentResult, error)
	Confirm(ctx context.Context, intentID string) (*ConfirmResult, error)
	StatusByOrder(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error)
}

// IntentResult carries the gateway handle clients need to collect payment.
type IntentResult struct {
	IntentID     string
	ClientSecret string
	OrderID      uuid.UUID
	Amount       decimal.Decimal
}

// ConfirmResult reports the reconciled state of a payment intent.
type ConfirmResult struct {
	IntentID string
	OrderID  uuid.UUID
	State    enums.PaymentState
	Amount   decimal.Decimal
}

type service struct {
	repo    Repository
	orders  orders.Repository
	carts   cart.Repository
	gateway Gateway
	tx      txRunner
	logg    *logger.Logger
	checks  *metrics.CheckoutMetrics
	timeout time.Duration
}

// NewService builds a payment service with the required dependencies.
func NewService(repo Repository, ordersRepo orders.Repository, carts cart.Repository, gateway Gateway, tx txRunner, logg *logger.Logger, checks *metrics.CheckoutMetrics, timeout time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &service{
		repo:    repo,
		orders:  ordersRepo,
		carts:   carts,
		gateway: gateway,
		tx:      tx,
		logg:    logg,
		checks:  checks,
		timeout: timeout,
	}, nil
}

// CreateIntent registers a payment intent with the gateway for the order's
// full total. A caller-supplied amount must match the order total; a zero
// amount means "charge the total". Nothing is persisted when the gateway
// call fails.
func (s *service) CreateIntent(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*IntentResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is not awaiting payment")
	}
	if !amount.IsZero() && !amount.Equal(order.Total) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match order total").
			WithDetails(map[string]any{"order_total": order.Total.StringFixed(2)})
	}
	amountMinor := order.Total.Shift(2).IntPart()
	if amountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	intent, err := s.gateway.CreateIntent(callCtx, amountMinor, "", order.ID)
	if err != nil {
		s.checks.IncFailure("create_intent")
		return nil, mapGatewayError(err, "create payment intent")
	}

	txn := &models.Transaction{
		GatewayIntentID: intent.ID,
		OrderID:         order.ID,
		Amount:          order.Total,
		Status:          enums.TransactionStatusPending,
		PaymentMethod:   order.PaymentMethod,
	}
	if _, err := s.repo.Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction")
	}

	s.checks.IncSuccess("create_intent")
	s.logg.Info(s.logg.WithIntentID(ctx, intent.ID), "payment intent created")
	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		OrderID:      order.ID,
		Amount:       order.Total,
	}, nil
}

// Confirm reconciles the intent's current gateway state into the local books.
// Only a succeeded intent is persisted; every other state is reported to the
// caller without touching the transaction row, so confirmation can be retried.
func (s *service) Confirm(ctx context.Context, intentID string) (*ConfirmResult, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	intent, err := s.gateway.GetIntent(callCtx, intentID)
	if err != nil {
		s.checks.IncFailure("confirm")
		return nil, mapGatewayError(err, "retrieve payment intent")
	}

	var result *ConfirmResult
	var settledUser uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		txn, err := repo.FindByIntentIDForUpdate(ctx, intentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock transaction")
		}

		if txn.Status == enums.TransactionStatusSettled {
			result = &ConfirmResult{
				IntentID: intentID,
				OrderID:  txn.OrderID,
				State:    enums.PaymentStateSettled,
				Amount:   txn.Amount,
			}
			return nil
		}

		state := mapIntentStatus(intent.Status)
		result = &ConfirmResult{
			IntentID: intentID,
			OrderID:  txn.OrderID,
			State:    state,
			Amount:   txn.Amount,
		}
		if state != enums.PaymentStateSettled {
			return nil
		}

		now := time.Now().UTC()
		txn.Status = enums.TransactionStatusSettled
		txn.SettledAt = &now
		if _, err := repo.Update(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle transaction")
		}
		if err := ordersRepo.UpdateStatus(ctx, txn.OrderID, enums.OrderStatusPaid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}

		order, err := ordersRepo.FindByID(ctx, txn.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		settledUser = order.UserID
		return nil
	})
	if err != nil {
		s.checks.IncFailure("confirm")
		return nil, err
	}

	if result.State == enums.PaymentStateSettled && settledUser != uuid.Nil {
		s.checks.IncSettled()
		// Leftover cart lines are cleaned up best-effort. The payment stays
		// settled even when this fails.
		if cartRec, err := s.carts.FindByUserID(ctx, settledUser); err == nil {
			if err := s.carts.DeleteLines(ctx, cartRec.ID); err != nil {
				s.logg.Error(s.logg.WithIntentID(ctx, intentID), "clearing cart after settlement", err)
			}
		}
	}

	s.checks.IncSuccess("confirm")
	return result, nil
}

func (s *service) StatusByOrder(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	txn, err := s.repo.FindLatestByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no transaction for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return txn, nil
}

func mapIntentStatus(status stripe.PaymentIntentStatus) enums.PaymentState {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentStateSettled
	case stripe.PaymentIntentStatusProcessing:
		return enums.PaymentStateProcessing
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return enums.PaymentStatePendingInput
	default:
		return enums.PaymentStateFailed
	}
}

func mapGatewayError(err error, action string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, action)
}
