package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is one product entry within a cart. Subtotal is denormalized:
// it is recomputed on every quantity mutation, never derived at read time.
type CartLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID    uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_product"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_product"`
	Product   *Product        `gorm:"foreignKey:ProductID"`
	Quantity  int             `gorm:"column:quantity;not null"`
	Subtotal  decimal.Decimal `gorm:"column:subtotal;type:numeric(10,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
