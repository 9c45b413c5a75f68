package coupons

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/pkg/db/models"
)

// Repository defines persistence operations for coupons and their usage log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error)
	Update(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	IncrementUsedCount(ctx context.Context, id uuid.UUID) error
	RecordUsage(ctx context.Context, usage *models.CouponUsage) error
	CountUsagesByUser(ctx context.Context, couponID, userID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a coupon repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	if err := r.db.WithContext(ctx).Create(coupon).Error; err != nil {
		return nil, err
	}
	return coupon, nil
}

func (r *repository) Update(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	if err := r.db.WithContext(ctx).Save(coupon).Error; err != nil {
		return nil, err
	}
	return coupon, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("upper(code) = ?", strings.ToUpper(code)).
		First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) List(ctx context.Context) ([]models.Coupon, error) {
	var list []models.Coupon
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) IncrementUsedCount(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", id).
		Update("used_count", gorm.Expr("used_count + 1")).Error
}

func (r *repository) RecordUsage(ctx context.Context, usage *models.CouponUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

func (r *repository) CountUsagesByUser(ctx context.Context, couponID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponUsage{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
