package coupons

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/pkg/db/models"
	"github.com/mowistore/storefront-backend/pkg/enums"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
)

type stubCouponsRepo struct {
	byCode map[string]*models.Coupon
	usages []*models.CouponUsage
}

func newStubCouponsRepo(coupons ...*models.Coupon) *stubCouponsRepo {
	repo := &stubCouponsRepo{byCode: make(map[string]*models.Coupon)}
	for _, coupon := range coupons {
		repo.byCode[coupon.Code] = coupon
	}
	return repo
}

func (s *stubCouponsRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubCouponsRepo) Create(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	if _, ok := s.byCode[coupon.Code]; ok {
		return nil, gorm.ErrDuplicatedKey
	}
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	s.byCode[coupon.Code] = coupon
	return coupon, nil
}

func (s *stubCouponsRepo) Update(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	s.byCode[coupon.Code] = coupon
	return coupon, nil
}

func (s *stubCouponsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	for _, coupon := range s.byCode {
		if coupon.ID == id {
			return coupon, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCouponsRepo) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, ok := s.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return coupon, nil
}

func (s *stubCouponsRepo) List(ctx context.Context) ([]models.Coupon, error) {
	var list []models.Coupon
	for _, coupon := range s.byCode {
		list = append(list, *coupon)
	}
	return list, nil
}

func (s *stubCouponsRepo) IncrementUsedCount(ctx context.Context, id uuid.UUID) error {
	coupon, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	coupon.UsedCount++
	return nil
}

func (s *stubCouponsRepo) RecordUsage(ctx context.Context, usage *models.CouponUsage) error {
	s.usages = append(s.usages, usage)
	return nil
}

func (s *stubCouponsRepo) CountUsagesByUser(ctx context.Context, couponID, userID uuid.UUID) (int64, error) {
	var count int64
	for _, usage := range s.usages {
		if usage.CouponID == couponID && usage.UserID == userID {
			count++
		}
	}
	return count, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func price(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func percentCoupon(code string, value string) *models.Coupon {
	return &models.Coupon{
		ID:            uuid.New(),
		Code:          code,
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: price(value),
		IsActive:      true,
	}
}

func TestCreateNormalizesCode(t *testing.T) {
	svc, err := NewService(newStubCouponsRepo(), stubTxRunner{})
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}

	coupon, err := svc.Create(context.Background(), CreateInput{
		Code:          "  spring10 ",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: price("10"),
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if coupon.Code != "SPRING10" {
		t.Fatalf("expected uppercased code got %s", coupon.Code)
	}
}

func TestCreateRejectsOversizedPercentage(t *testing.T) {
	svc, _ := NewService(newStubCouponsRepo(), stubTxRunner{})

	_, err := svc.Create(context.Background(), CreateInput{
		Code:          "TOOMUCH",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: price("150"),
	})
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error got %v", err)
	}
}

func TestValidatePercentageQuote(t *testing.T) {
	repo := newStubCouponsRepo(percentCoupon("SPRING10", "10"))
	svc, _ := NewService(repo, stubTxRunner{})

	quote, err := svc.Validate(context.Background(), "spring10", price("25.00"))
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !quote.Discount.Equal(price("2.50")) {
		t.Fatalf("expected discount 2.50 got %s", quote.Discount)
	}
	if !quote.Payable.Equal(price("22.50")) {
		t.Fatalf("expected payable 22.50 got %s", quote.Payable)
	}
	if len(repo.usages) != 0 {
		t.Fatal("validate must not consume a use")
	}
}

func TestValidateFixedDiscountCappedAtAmount(t *testing.T) {
	coupon := &models.Coupon{
		ID:            uuid.New(),
		Code:          "BIGFIX",
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: price("50.00"),
		IsActive:      true,
	}
	svc, _ := NewService(newStubCouponsRepo(coupon), stubTxRunner{})

	quote, err := svc.Validate(context.Background(), "BIGFIX", price("20.00"))
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !quote.Discount.Equal(price("20.00")) {
		t.Fatalf("expected discount capped at 20.00 got %s", quote.Discount)
	}
	if !quote.Payable.IsZero() {
		t.Fatalf("expected payable zero got %s", quote.Payable)
	}
}

func TestValidateExpiredCoupon(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	coupon := percentCoupon("OLD", "10")
	coupon.EndsAt = &past
	svc, _ := NewService(newStubCouponsRepo(coupon), stubTxRunner{})

	_, err := svc.Validate(context.Background(), "OLD", price("25.00"))
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict got %v", err)
	}
}

func TestValidateBelowMinimum(t *testing.T) {
	coupon := percentCoupon("MIN", "10")
	coupon.MinimumAmount = price("50.00")
	svc, _ := NewService(newStubCouponsRepo(coupon), stubTxRunner{})

	_, err := svc.Validate(context.Background(), "MIN", price("25.00"))
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error got %v", err)
	}
}

func TestRedeemConsumesUse(t *testing.T) {
	coupon := percentCoupon("ONCE", "10")
	coupon.MaxUses = 1
	repo := newStubCouponsRepo(coupon)
	svc, _ := NewService(repo, stubTxRunner{})

	userID := uuid.New()
	quote, err := svc.Redeem(context.Background(), "ONCE", userID, nil, price("25.00"))
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !quote.Discount.Equal(price("2.50")) {
		t.Fatalf("expected discount 2.50 got %s", quote.Discount)
	}
	if coupon.UsedCount != 1 {
		t.Fatalf("expected used count 1 got %d", coupon.UsedCount)
	}
	if len(repo.usages) != 1 || repo.usages[0].UserID != userID {
		t.Fatalf("expected usage recorded got %+v", repo.usages)
	}

	// The single use is gone.
	_, err = svc.Redeem(context.Background(), "ONCE", userID, nil, price("25.00"))
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict got %v", err)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	coupon := percentCoupon("GONE", "10")
	svc, _ := NewService(newStubCouponsRepo(coupon), stubTxRunner{})

	first, err := svc.Deactivate(context.Background(), coupon.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if first.IsActive {
		t.Fatal("expected inactive coupon")
	}
	second, err := svc.Deactivate(context.Background(), coupon.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if second.IsActive {
		t.Fatal("expected inactive coupon")
	}
}
