package products

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/pkg/db/models"
	"github.com/mowistore/storefront-backend/pkg/pagination"
)

func setupProductsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	categories := `
CREATE TABLE IF NOT EXISTS categories (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  description TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	products := `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  category_id TEXT,
  price TEXT NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0,
  sold_count INTEGER NOT NULL DEFAULT 0,
  image_url TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(categories).Error)
	require.NoError(t, db.Exec(products).Error)
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, name string, priceValue string, stock int, active bool, createdAt time.Time) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:        uuid.New(),
		Name:      name,
		Price:     decimal.RequireFromString(priceValue),
		Stock:     stock,
		IsActive:  active,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func TestDecrementStockGuard(t *testing.T) {
	db := setupProductsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	product := seedProduct(t, db, "mate gourd", "10.00", 3, true, time.Now())

	applied, err := repo.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.True(t, applied)

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 1, reloaded.Stock)

	// Asking for more than remains leaves the row untouched.
	applied, err = repo.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 1, reloaded.Stock)
}

// Two checkouts racing for the last unit: exactly one decrement may apply
// and the stock never drops below zero.
func TestDecrementStockConcurrentLastUnit(t *testing.T) {
	db := setupProductsTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection so concurrent sqlite writers queue instead of erroring.
	sqlDB.SetMaxOpenConns(1)

	repo := NewRepository(db)
	ctx := context.Background()
	product := seedProduct(t, db, "last thermos", "20.00", 1, true, time.Now())

	results := make(chan bool, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := repo.DecrementStock(ctx, product.ID, 1)
			assert.NoError(t, err)
			results <- applied
		}()
	}
	wg.Wait()
	close(results)

	appliedCount := 0
	for applied := range results {
		if applied {
			appliedCount++
		}
	}
	assert.Equal(t, 1, appliedCount)

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 0, reloaded.Stock)
}

func TestSearchByNameOrdersBySoldCount(t *testing.T) {
	db := setupProductsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Now()
	slow := seedProduct(t, db, "Yerba Clasica", "5.00", 10, true, now)
	fast := seedProduct(t, db, "Yerba Premium", "8.00", 10, true, now)
	seedProduct(t, db, "Thermos", "20.00", 10, true, now)
	hidden := seedProduct(t, db, "Yerba Retired", "5.00", 0, false, now)

	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", fast.ID).Update("sold_count", 50).Error)
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", slow.ID).Update("sold_count", 5).Error)

	list, err := repo.SearchByName(ctx, "yerba", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, fast.ID, list[0].ID)
	assert.Equal(t, slow.ID, list[1].ID)
	for _, item := range list {
		assert.NotEqual(t, hidden.ID, item.ID)
	}
}

func TestListActiveCursorPagination(t *testing.T) {
	db := setupProductsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var seeded []*models.Product
	for i := 0; i < 5; i++ {
		seeded = append(seeded, seedProduct(t, db, "item", "1.00", 1, true, base.Add(time.Duration(i)*time.Minute)))
	}

	first, err := repo.ListActive(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	// Newest first.
	assert.Equal(t, seeded[4].ID, first[0].ID)
	assert.Equal(t, seeded[3].ID, first[1].ID)

	cursor := &pagination.Cursor{CreatedAt: first[1].CreatedAt, ID: first[1].ID}
	second, err := repo.ListActive(ctx, cursor, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, seeded[2].ID, second[0].ID)
	assert.Equal(t, seeded[1].ID, second[1].ID)
}
