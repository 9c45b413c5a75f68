package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mowistore/storefront-backend/pkg/db/models"
	"github.com/mowistore/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for the product catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) (*models.Product, error)
	Update(ctx context.Context, product *models.Product) (*models.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListActive(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Product, error)
	SearchByName(ctx context.Context, query string, limit int) ([]models.Product, error)
	ListByCategory(ctx context.Context, categoryID uuid.UUID, limit int) ([]models.Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	IncrementSoldCount(ctx context.Context, id uuid.UUID, qty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a product repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

func (r *repository) Update(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDForUpdate loads the product row under a FOR UPDATE lock. Callers must
// run it inside a transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListActive(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Product, error) {
	q := r.db.WithContext(ctx).
		Preload("Category").
		Where("is_active = ?", true).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var list []models.Product
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) SearchByName(ctx context.Context, query string, limit int) ([]models.Product, error) {
	var list []models.Product
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND lower(name) LIKE lower(?)", true, "%"+query+"%").
		Order("sold_count DESC, name ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) ListByCategory(ctx context.Context, categoryID uuid.UUID, limit int) ([]models.Product, error) {
	var list []models.Product
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND category_id = ?", true, categoryID).
		Order("name ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// DecrementStock takes qty units off the shelf only when enough stock remains.
// It reports whether the decrement was applied.
func (r *repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) IncrementSoldCount(ctx context.Context, id uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("sold_count", gorm.Expr("sold_count + ?", qty)).Error
}
