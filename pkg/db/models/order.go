package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mowistore/storefront-backend/pkg/enums"
)

// Order is the immutable snapshot produced from a cart at checkout.
// Only Status changes after creation; total and lines are write-once.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Total         decimal.Decimal   `gorm:"column:total;type:numeric(10,2);not null"`
	Status        enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	PaymentMethod string            `gorm:"column:payment_method;not null"`
	Lines         []OrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
