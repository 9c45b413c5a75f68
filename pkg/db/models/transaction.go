package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mowistore/storefront-backend/pkg/enums"
)

// Transaction records one payment attempt against the gateway, keyed by the
// gateway's payment-intent identifier. At most one transaction per order
// reaches the settled state.
type Transaction struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GatewayIntentID string                  `gorm:"column:gateway_intent_id;not null;uniqueIndex"`
	OrderID         uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Amount          decimal.Decimal         `gorm:"column:amount;type:numeric(10,2);not null"`
	Status          enums.TransactionStatus `gorm:"column:status;not null;default:'pending'"`
	PaymentMethod   string                  `gorm:"column:payment_method;not null;default:'stripe'"`
	FailureDetail   *string                 `gorm:"column:failure_detail"`
	SettledAt       *time.Time              `gorm:"column:settled_at"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
