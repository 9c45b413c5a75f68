package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is a user rating for a product, 1 through 5 stars.
type Review struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Rating    int       `gorm:"column:rating;not null"`
	Comment   *string   `gorm:"column:comment"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
