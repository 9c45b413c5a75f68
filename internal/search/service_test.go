package search

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/internal/products"
	"github.com/mowistore/storefront-backend/pkg/config"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
	"github.com/mowistore/storefront-backend/pkg/logger"
	"github.com/mowistore/storefront-backend/pkg/pagination"
)

type stubCatalogRepo struct {
	active []models.Product
}

func (s *stubCatalogRepo) WithTx(tx *gorm.DB) products.Repository {
	return s
}

func (s *stubCatalogRepo) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) Update(ctx context.Context, product *models.Product) (*models.Product, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) Delete(ctx context.Context, id uuid.UUID) error {
	panic("not implemented")
}

func (s *stubCatalogRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) ListActive(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Product, error) {
	return s.active, nil
}

func (s *stubCatalogRepo) SearchByName(ctx context.Context, query string, limit int) ([]models.Product, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) ListByCategory(ctx context.Context, categoryID uuid.UUID, limit int) ([]models.Product, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) IncrementSoldCount(ctx context.Context, id uuid.UUID, qty int) error {
	panic("not implemented")
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func sampleProduct(name string) models.Product {
	return models.Product{ID: uuid.New(), Name: name, Price: decimal.RequireFromString("9.99"), IsActive: true}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, err := NewService(config.GeminiConfig{}, &stubCatalogRepo{}, testLogger())
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}

	_, err = svc.Search(context.Background(), "   ")
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error got %v", err)
	}
}

func TestSearchEmptyCatalog(t *testing.T) {
	svc, _ := NewService(config.GeminiConfig{APIKey: "key"}, &stubCatalogRepo{}, testLogger())

	result, err := svc.Search(context.Background(), "mate")
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if len(result.Products) != 0 {
		t.Fatalf("expected no products got %d", len(result.Products))
	}
	if result.Message != "catalog is empty" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestSearchDegradesWithoutAPIKey(t *testing.T) {
	catalog := &stubCatalogRepo{active: []models.Product{sampleProduct("mate gourd")}}
	svc, _ := NewService(config.GeminiConfig{}, catalog, testLogger())

	result, err := svc.Search(context.Background(), "something for drinking mate")
	if err != nil {
		t.Fatalf("degraded search must not error, got %v", err)
	}
	if len(result.Products) != 0 {
		t.Fatalf("expected empty products got %d", len(result.Products))
	}
	if result.Message != "search assistant unavailable" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestMatchProductsParsesIDs(t *testing.T) {
	first := sampleProduct("mate gourd")
	second := sampleProduct("yerba")
	third := sampleProduct("thermos")
	catalog := []models.Product{first, second, third}

	answer := fmt.Sprintf("%s, %s\n%s", first.ID, second.ID, first.ID)
	matched := matchProducts(answer, catalog)
	if len(matched) != 2 {
		t.Fatalf("expected two unique matches got %d", len(matched))
	}
	if matched[0].ID != first.ID || matched[1].ID != second.ID {
		t.Fatalf("unexpected match order %v", matched)
	}
}

func TestMatchProductsNoResultsMarker(t *testing.T) {
	catalog := []models.Product{sampleProduct("mate gourd")}
	if matched := matchProducts("no_results", catalog); len(matched) != 0 {
		t.Fatalf("expected no matches got %d", len(matched))
	}
}

func TestMatchProductsIgnoresUnknownIDs(t *testing.T) {
	catalog := []models.Product{sampleProduct("mate gourd")}
	answer := uuid.NewString() + ", not-a-uuid"
	if matched := matchProducts(answer, catalog); len(matched) != 0 {
		t.Fatalf("expected no matches got %d", len(matched))
	}
}

func TestFormatCatalogListsEntries(t *testing.T) {
	product := sampleProduct("mate gourd")
	formatted := formatCatalog([]models.Product{product})
	if !strings.Contains(formatted, "ID:"+product.ID.String()) {
		t.Fatalf("expected id in catalog listing got %q", formatted)
	}
	if !strings.Contains(formatted, "$9.99") {
		t.Fatalf("expected price in catalog listing got %q", formatted)
	}
}
