package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/internal/products"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
)

// CreateInput carries the fields accepted when submitting a review.
type CreateInput struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	Rating    int
	Comment   *string
}

// Summary aggregates a product's review stats.
type Summary struct {
	ProductID     uuid.UUID
	AverageRating float64
	ReviewCount   int64
}

// Service exposes review operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Review, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Review, error)
	Summarize(ctx context.Context, productID uuid.UUID) (*Summary, error)
	Delete(ctx context.Context, userID, reviewID uuid.UUID) error
}

type service struct {
	repo    Repository
	catalog products.Repository
}

// NewService builds a review service with the required dependencies.
func NewService(repo Repository, catalog products.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("products repository required")
	}
	return &service{repo: repo, catalog: catalog}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Review, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	if input.Comment != nil {
		trimmed := strings.TrimSpace(*input.Comment)
		if trimmed == "" {
			input.Comment = nil
		} else {
			input.Comment = &trimmed
		}
	}

	if _, err := s.catalog.FindByID(ctx, input.ProductID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	review := &models.Review{
		UserID:    input.UserID,
		ProductID: input.ProductID,
		Rating:    input.Rating,
		Comment:   input.Comment,
	}
	created, err := s.repo.Create(ctx, review)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
	}
	return created, nil
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Review, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	list, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	return list, nil
}

func (s *service) Summarize(ctx context.Context, productID uuid.UUID) (*Summary, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	avg, count, err := s.repo.AverageRating(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate reviews")
	}
	return &Summary{ProductID: productID, AverageRating: avg, ReviewCount: count}, nil
}

func (s *service) Delete(ctx context.Context, userID, reviewID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if reviewID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "review id required")
	}
	review, err := s.repo.FindByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review")
	}
	if review.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "review does not belong to user")
	}
	if err := s.repo.Delete(ctx, reviewID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete review")
	}
	return nil
}
