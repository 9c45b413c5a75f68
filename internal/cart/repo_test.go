package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mowistore/storefront-backend/internal/products"
	"github.com/mowistore/storefront-backend/pkg/db/models"
	pkgerrors "github.com/mowistore/storefront-backend/pkg/errors"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
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
);`, `
CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS cart_lines (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  subtotal TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (cart_id, product_id)
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

// gormTxRunner mirrors db.Client.WithTx: the closure runs in a real
// transaction and a non-nil return rolls it back.
type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func seedCartWithLine(t *testing.T, db *gorm.DB, userID uuid.UUID, product *models.Product, qty int) *models.CartLine {
	t.Helper()

	cartRec := &models.Cart{ID: uuid.New(), UserID: userID}
	require.NoError(t, db.Create(cartRec).Error)
	line := &models.CartLine{
		ID:        uuid.New(),
		CartID:    cartRec.ID,
		ProductID: product.ID,
		Quantity:  qty,
		Subtotal:  product.Price.Mul(decimal.NewFromInt(int64(qty))),
	}
	require.NoError(t, db.Create(line).Error)
	return line
}

func seedCartProduct(t *testing.T, db *gorm.DB, name, priceValue string) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:        uuid.New(),
		Name:      name,
		Price:     decimal.RequireFromString(priceValue),
		Stock:     10,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// Setting a non-positive quantity reports a validation error, yet the line
// removal must still commit. A runner that rolls back on error would undo
// the delete if the rejection were raised inside the transaction.
func TestSetQuantityZeroDeleteSurvivesRejection(t *testing.T) {
	db := setupCartTestDB(t)
	ctx := context.Background()

	userID := uuid.New()
	product := seedCartProduct(t, db, "yerba", "5.50")
	line := seedCartWithLine(t, db, userID, product, 2)

	svc, err := NewService(NewRepository(db), products.NewRepository(db), gormTxRunner{db: db})
	require.NoError(t, err)

	_, err = svc.SetQuantity(ctx, userID, product.ID, 0)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeValidation, domainErr.Code())

	var remaining int64
	require.NoError(t, db.Model(&models.CartLine{}).Where("id = ?", line.ID).Count(&remaining).Error)
	assert.Zero(t, remaining, "line delete must commit despite the rejected call")
}

func TestSetQuantityRepricesAgainstRealDB(t *testing.T) {
	db := setupCartTestDB(t)
	ctx := context.Background()

	userID := uuid.New()
	product := seedCartProduct(t, db, "yerba", "5.50")
	seedCartWithLine(t, db, userID, product, 1)

	svc, err := NewService(NewRepository(db), products.NewRepository(db), gormTxRunner{db: db})
	require.NoError(t, err)

	cartRec, err := svc.SetQuantity(ctx, userID, product.ID, 4)
	require.NoError(t, err)
	require.Len(t, cartRec.Lines, 1)
	assert.Equal(t, 4, cartRec.Lines[0].Quantity)
	assert.True(t, cartRec.Lines[0].Subtotal.Equal(decimal.RequireFromString("22.00")))
}

func TestFindLineByProductLoadsProduct(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	product := seedCartProduct(t, db, "thermos", "20.00")
	line := seedCartWithLine(t, db, userID, product, 1)

	found, err := repo.FindLineByProduct(ctx, line.CartID, product.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Product)
	assert.Equal(t, product.Name, found.Product.Name)
	assert.True(t, found.Product.Price.Equal(product.Price))
}
