package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/internal/products"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart operations keyed by the owning user.
type Service interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddLine(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.Cart, error)
	SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.Cart, error)
	RemoveLine(ctx context.Context, userID, lineID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo     Repository
	products products.Repository
	tx       txRunner
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, productsRepo products.Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if productsRepo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, products: productsRepo, tx: tx}, nil
}

func (s *service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	cart, err := s.repo.FindByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	created, err := s.repo.Create(ctx, &models.Cart{UserID: userID})
	if err != nil {
		// Lost a race against another request creating the same cart.
		if existing, findErr := s.repo.FindByUserID(ctx, userID); findErr == nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	created.Lines = []models.CartLine{}
	return created, nil
}

func (s *service) AddLine(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	cart, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		productsRepo := s.products.WithTx(tx)

		if _, err := repo.FindByUserIDForUpdate(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}

		product, err := productsRepo.FindByID(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.IsActive {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}

		line, err := repo.FindLineByProduct(ctx, cart.ID, productID)
		switch {
		case err == nil:
			// Merge into the existing line and re-price the subtotal.
			line.Quantity += qty
			line.Subtotal = product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			if _, err := repo.UpdateLine(ctx, line); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
			}
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			newLine := &models.CartLine{
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  qty,
				Subtotal:  product.Price.Mul(decimal.NewFromInt(int64(qty))),
			}
			if _, err := repo.CreateLine(ctx, newLine); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart line")
			}
			return nil
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, userID)
}

func (s *service) SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	var dropped bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindByUserIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}

		line, err := repo.FindLineByProduct(ctx, cart.ID, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}

		if qty <= 0 {
			// Non-positive quantities drop the line before the call is rejected,
			// matching the storefront's historical behavior. The delete has to
			// commit, so the rejection is raised only after the transaction ends.
			if err := repo.DeleteLine(ctx, line.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
			}
			dropped = true
			return nil
		}

		line.Quantity = qty
		line.Subtotal = line.Product.Price.Mul(decimal.NewFromInt(int64(qty)))
		if _, err := repo.UpdateLine(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if dropped {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	return s.reload(ctx, userID)
}

func (s *service) RemoveLine(ctx context.Context, userID, lineID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if lineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "line id required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindByUserIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}

		line, err := repo.FindLine(ctx, lineID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}
		if line.CartID != cart.ID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "cart line does not belong to user")
		}

		if err := repo.DeleteLine(ctx, line.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, userID)
}

// Clear empties the user's cart. Clearing an absent or already empty cart is a no-op.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if err := s.repo.DeleteLines(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) reload(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return cart, nil
}
