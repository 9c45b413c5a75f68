package models

import (
	"time"

	"github.com/google/uuid"
)

// CouponUsage records one redemption of a coupon by a user.
type CouponUsage struct {
	ID       uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CouponID uuid.UUID  `gorm:"column:coupon_id;type:uuid;not null;index"`
	UserID   uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID  *uuid.UUID `gorm:"column:order_id;type:uuid"`
	UsedAt   time.Time  `gorm:"column:used_at;autoCreateTime"`
}
