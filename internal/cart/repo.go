package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mowistore/storefront-backend/pkg/db/models"
)

// Repository defines persistence operations for carts and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, cart *models.Cart) (*models.Cart, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindLine(ctx context.Context, lineID uuid.UUID) (*models.CartLine, error)
	FindLineByProduct(ctx context.Context, cartID, productID uuid.UUID) (*models.CartLine, error)
	CreateLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error)
	UpdateLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error)
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
	DeleteLines(ctx context.Context, cartID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("cart_lines.created_at ASC")
		}).
		Preload("Lines.Product").
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindByUserIDForUpdate locks the cart row so concurrent mutations on the same
// cart serialize. Callers must run it inside a transaction.
func (r *repository) FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) FindLine(ctx context.Context, lineID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Preload("Product").
		First(&line, "id = ?", lineID).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *repository) FindLineByProduct(ctx context.Context, cartID, productID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *repository) CreateLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error) {
	if err := r.db.WithContext(ctx).Create(line).Error; err != nil {
		return nil, err
	}
	return line, nil
}

func (r *repository) UpdateLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error) {
	if err := r.db.WithContext(ctx).Save(line).Error; err != nil {
		return nil, err
	}
	return line, nil
}

func (r *repository) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.CartLine{}, "id = ?", lineID).Error
}

func (r *repository) DeleteLines(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.CartLine{}, "cart_id = ?", cartID).Error
}
