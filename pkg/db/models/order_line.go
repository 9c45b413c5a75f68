package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine captures one product at checkout time. UnitPrice is the product's
// price when the order was created, not a live reference.
type OrderLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Product   *Product        `gorm:"foreignKey:ProductID"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// Subtotal is the frozen line amount.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
