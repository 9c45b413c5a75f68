package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mowistore/storefront-backend/pkg/enums"
)

// Coupon models a discount code. The checkout flow does not consume coupons
// today; they are managed through the admin surface only.
type Coupon struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code          string             `gorm:"column:code;not null;uniqueIndex"`
	Description   *string            `gorm:"column:description"`
	DiscountType  enums.DiscountType `gorm:"column:discount_type;not null"`
	DiscountValue decimal.Decimal    `gorm:"column:discount_value;type:numeric(10,2);not null"`
	MinimumAmount decimal.Decimal    `gorm:"column:minimum_amount;type:numeric(10,2);not null;default:0"`
	MaxUses       int                `gorm:"column:max_uses;not null;default:0"`
	UsedCount     int                `gorm:"column:used_count;not null;default:0"`
	IsActive      bool               `gorm:"column:is_active;not null;default:true"`
	StartsAt      *time.Time         `gorm:"column:starts_at"`
	EndsAt        *time.Time         `gorm:"column:ends_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
