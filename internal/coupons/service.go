package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/pkg/db"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	"github.com/mowistore/storefront-backend/pkg/enums"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput carries the fields accepted when registering a coupon.
type CreateInput struct {
	Code          string
	Description   *string
	DiscountType  enums.DiscountType
	DiscountValue decimal.Decimal
	MinimumAmount decimal.Decimal
	MaxUses       int
	StartsAt      *time.Time
	EndsAt        *time.Time
}

// Quote reports the discount a coupon would apply to the given amount.
type Quote struct {
	Coupon   *models.Coupon
	Amount   decimal.Decimal
	Discount decimal.Decimal
	Payable  decimal.Decimal
}

// Service exposes coupon management and redemption.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	Validate(ctx context.Context, code string, amount decimal.Decimal) (*Quote, error)
	Redeem(ctx context.Context, code string, userID uuid.UUID, orderID *uuid.UUID, amount decimal.Decimal) (*Quote, error)
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds a coupon service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupons repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}
	if !input.DiscountType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type")
	}
	if !input.DiscountValue.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount value must be positive")
	}
	if input.DiscountType == enums.DiscountTypePercentage && input.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	if input.MinimumAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum amount cannot be negative")
	}
	if input.StartsAt != nil && input.EndsAt != nil && input.EndsAt.Before(*input.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon window ends before it starts")
	}

	coupon := &models.Coupon{
		Code:          code,
		Description:   input.Description,
		DiscountType:  input.DiscountType,
		DiscountValue: input.DiscountValue,
		MinimumAmount: input.MinimumAmount,
		MaxUses:       input.MaxUses,
		IsActive:      true,
		StartsAt:      input.StartsAt,
		EndsAt:        input.EndsAt,
	}
	created, err := s.repo.Create(ctx, coupon)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	return created, nil
}

func (s *service) List(ctx context.Context) ([]models.Coupon, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	return list, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon id required")
	}
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if !coupon.IsActive {
		return coupon, nil
	}
	coupon.IsActive = false
	updated, err := s.repo.Update(ctx, coupon)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate coupon")
	}
	return updated, nil
}

// Validate checks the coupon against the given amount without consuming a use.
func (s *service) Validate(ctx context.Context, code string, amount decimal.Decimal) (*Quote, error) {
	coupon, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.checkEligibility(coupon, amount); err != nil {
		return nil, err
	}
	return buildQuote(coupon, amount), nil
}

// Redeem validates the coupon and consumes one use atomically.
func (s *service) Redeem(ctx context.Context, code string, userID uuid.UUID, orderID *uuid.UUID, amount decimal.Decimal) (*Quote, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var quote *Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		coupon, err := s.lookupWith(ctx, repo, code)
		if err != nil {
			return err
		}
		if err := s.checkEligibility(coupon, amount); err != nil {
			return err
		}

		if err := repo.IncrementUsedCount(ctx, coupon.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume coupon use")
		}
		usage := &models.CouponUsage{
			CouponID: coupon.ID,
			UserID:   userID,
			OrderID:  orderID,
		}
		if err := repo.RecordUsage(ctx, usage); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon usage")
		}

		coupon.UsedCount++
		quote = buildQuote(coupon, amount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *service) lookup(ctx context.Context, code string) (*models.Coupon, error) {
	return s.lookupWith(ctx, s.repo, code)
}

func (s *service) lookupWith(ctx context.Context, repo Repository, code string) (*models.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}
	coupon, err := repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return coupon, nil
}

func (s *service) checkEligibility(coupon *models.Coupon, amount decimal.Decimal) error {
	now := time.Now().UTC()
	if !coupon.IsActive {
		return pkgerrors.New(pkgerrors.CodeConflict, "coupon is not active")
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return pkgerrors.New(pkgerrors.CodeConflict, "coupon is not active yet")
	}
	if coupon.EndsAt != nil && now.After(*coupon.EndsAt) {
		return pkgerrors.New(pkgerrors.CodeConflict, "coupon has expired")
	}
	if coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses {
		return pkgerrors.New(pkgerrors.CodeConflict, "coupon has no uses left")
	}
	if amount.LessThan(coupon.MinimumAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "order amount below coupon minimum")
	}
	return nil
}

func buildQuote(coupon *models.Coupon, amount decimal.Decimal) *Quote {
	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		discount = amount.Mul(coupon.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	default:
		discount = coupon.DiscountValue
	}
	if discount.GreaterThan(amount) {
		discount = amount
	}
	return &Quote{
		Coupon:   coupon,
		Amount:   amount,
		Discount: discount,
		Payable:  amount.Sub(discount),
	}
}
