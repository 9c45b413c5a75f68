package categories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/pkg/db"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
)

// Service exposes category operations.
type Service interface {
	Create(ctx context.Context, name string, description *string) (*models.Category, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Category, error)
	List(ctx context.Context) ([]models.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
}

// NewService builds a category service with the required dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("categories repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, name string, description *string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name required")
	}
	created, err := s.repo.Create(ctx, &models.Category{Name: name, Description: description})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create category")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category id required")
	}
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	return category, nil
}

func (s *service) List(ctx context.Context) ([]models.Category, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return list, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete category")
	}
	return nil
}
