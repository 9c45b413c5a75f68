package reviews

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/pkg/db/models"
)

// Repository defines persistence operations for product reviews.
type Repository interface {
	Create(ctx context.Context, review *models.Review) (*models.Review, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Review, error)
	AverageRating(ctx context.Context, productID uuid.UUID) (float64, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reviews repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, review *models.Review) (*models.Review, error) {
	if err := r.db.WithContext(ctx).Create(review).Error; err != nil {
		return nil, err
	}
	return review, nil
}

func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Review, error) {
	var list []models.Review
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) AverageRating(ctx context.Context, productID uuid.UUID) (float64, int64, error) {
	type aggregate struct {
		Avg   float64
		Count int64
	}
	var agg aggregate
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("product_id = ?", productID).
		Scan(&agg).Error
	if err != nil {
		return 0, 0, err
	}
	return agg.Avg, agg.Count, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Review{}, "id = ?", id).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}
