package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/pagination"
)

const searchLimit = 50

// Service exposes catalog operations for controllers and other services.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, params pagination.Params) ([]models.Product, string, error)
	Search(ctx context.Context, query string) ([]models.Product, error)
	ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]models.Product, error)
	Create(ctx context.Context, input CreateInput) (*models.Product, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreateInput carries the fields accepted when registering a product.
type CreateInput struct {
	Name        string
	Description *string
	CategoryID  *uuid.UUID
	Price       decimal.Decimal
	Stock       int
	ImageURL    *string
}

// UpdateInput carries optional fields for a partial product update.
type UpdateInput struct {
	Name        *string
	Description *string
	CategoryID  *uuid.UUID
	Price       *decimal.Decimal
	Stock       *int
	ImageURL    *string
	IsActive    *bool
}

type service struct {
	repo Repository
}

// NewService builds a catalog service with the required dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) ([]models.Product, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	list, err := s.repo.ListActive(ctx, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	next := ""
	if len(list) > limit {
		list = list[:limit]
		last := list[len(list)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, next, nil
}

func (s *service) Search(ctx context.Context, query string) ([]models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search query required")
	}
	list, err := s.repo.SearchByName(ctx, query, searchLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search products")
	}
	return list, nil
}

func (s *service) ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]models.Product, error) {
	if categoryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category id required")
	}
	list, err := s.repo.ListByCategory(ctx, categoryID, pagination.MaxLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products by category")
	}
	return list, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	if input.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}

	product := &models.Product{
		Name:        name,
		Description: input.Description,
		CategoryID:  input.CategoryID,
		Price:       input.Price,
		Stock:       input.Stock,
		ImageURL:    input.ImageURL,
		IsActive:    true,
	}
	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return created, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Product, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name cannot be empty")
		}
		product.Name = name
	}
	if input.Description != nil {
		product.Description = input.Description
	}
	if input.CategoryID != nil {
		product.CategoryID = input.CategoryID
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
		}
		product.Price = *input.Price
	}
	if input.Stock != nil {
		if *input.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
		}
		product.Stock = *input.Stock
	}
	if input.ImageURL != nil {
		product.ImageURL = input.ImageURL
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}

	updated, err := s.repo.Update(ctx, product)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	return nil
}
