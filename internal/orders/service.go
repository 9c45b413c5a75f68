package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/internal/cart"
	"github.com/mowistore/storefront-backend/internal/products"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	"github.com/mowistore/storefront-backend/pkg/enums"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
	"github.com/mowistore/storefront-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes order operations, including the checkout orchestration.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	Lines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (*models.Order, error)
}

// CheckoutInput carries the data needed to convert a cart into an order.
type CheckoutInput struct {
	UserID        uuid.UUID
	PaymentMethod string
}

type service struct {
	repo    Repository
	carts   cart.Repository
	catalog products.Repository
	tx      txRunner
	logg    *logger.Logger
	checks  *metrics.CheckoutMetrics
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, carts cart.Repository, catalog products.Repository, tx txRunner, logg *logger.Logger, checks *metrics.CheckoutMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		carts:   carts,
		catalog: catalog,
		tx:      tx,
		logg:    logg,
		checks:  checks,
	}, nil
}

// Checkout turns the user's cart into a pending order inside a single
// transaction. The cart row is locked so concurrent checkouts for the same
// user serialize and the loser finds an empty cart.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	method := strings.TrimSpace(input.PaymentMethod)
	if method == "" {
		method = "stripe"
	}

	started := time.Now()
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartsRepo := s.carts.WithTx(tx)
		catalogRepo := s.catalog.WithTx(tx)
		ordersRepo := s.repo.WithTx(tx)

		locked, err := cartsRepo.FindByUserIDForUpdate(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}

		// Read lines fresh from the DB rather than trusting any snapshot the
		// caller may hold.
		current, err := cartsRepo.FindByUserID(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(current.Lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}

		order = &models.Order{
			UserID:        input.UserID,
			Total:         current.Total(),
			Status:        enums.OrderStatusPending,
			PaymentMethod: method,
		}
		if _, err := ordersRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		lines := make([]models.OrderLine, 0, len(current.Lines))
		for _, cl := range current.Lines {
			product, err := catalogRepo.FindByIDForUpdate(ctx, cl.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "product no longer exists")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}

			// Freeze the price as of checkout time.
			lines = append(lines, models.OrderLine{
				OrderID:   order.ID,
				ProductID: cl.ProductID,
				Quantity:  cl.Quantity,
				UnitPrice: product.Price,
			})

			applied, err := catalogRepo.DecrementStock(ctx, cl.ProductID, cl.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
			if !applied {
				// Insufficient stock does not fail the checkout. The order is
				// taken anyway and the shelf count stays where it is.
				s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()),
					fmt.Sprintf("stock not decremented for product %s (requested %d)", cl.ProductID, cl.Quantity))
				continue
			}
			if err := catalogRepo.IncrementSoldCount(ctx, cl.ProductID, cl.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment sold count")
			}
		}
		if err := ordersRepo.CreateLines(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order lines")
		}
		order.Lines = lines

		// Cleanup failure must not undo the order.
		if err := cartsRepo.DeleteLines(ctx, locked.ID); err != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "clearing cart after checkout", err)
		}
		return nil
	})
	if err != nil {
		s.checks.IncFailure("checkout")
		return nil, err
	}

	s.checks.IncSuccess("checkout")
	s.checks.ObserveDuration("checkout", time.Since(started))
	return order, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) Lines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	lines, err := s.repo.FindLinesByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order lines")
	}
	return lines, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	order.Status = status
	return order, nil
}
