package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mowistore/storefront-backend/pkg/db/models"
)

// Repository defines persistence operations for payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	Update(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Transaction, error)
	FindByIntentIDForUpdate(ctx context.Context, intentID string) (*models.Transaction, error)
	FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a transactions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) Update(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := r.db.WithContext(ctx).Save(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) FindByIntentID(ctx context.Context, intentID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("gateway_intent_id = ?", intentID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByIntentIDForUpdate locks the transaction row so concurrent confirmations
// of the same intent serialize. Callers must run it inside a transaction.
func (r *repository) FindByIntentIDForUpdate(ctx context.Context, intentID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_intent_id = ?", intentID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
