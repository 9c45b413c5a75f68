package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog listing. The checkout path is the only writer of
// Stock and SoldCount; everything else is plain CRUD.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Description *string         `gorm:"column:description"`
	CategoryID  *uuid.UUID      `gorm:"column:category_id;type:uuid"`
	Category    *Category       `gorm:"foreignKey:CategoryID"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	Stock       int             `gorm:"column:stock;not null;default:0"`
	SoldCount   int             `gorm:"column:sold_count;not null;default:0"`
	ImageURL    *string         `gorm:"column:image_url"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
