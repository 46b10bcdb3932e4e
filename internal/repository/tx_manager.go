package repository

import (
	"context"

	"gorm.io/gorm"
)

type txCtxKey struct{}

// TransactionManager runs multi-table writes inside one transaction.
// Onboarding completion and subscription provisioning go through RunInTx
// so a mid-sequence failure rolls everything back.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type txManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &txManager{db: db}
}

// RunInTx opens a transaction and injects it into the context handed to fn,
// so repositories called inside fn join the same transaction transparently.
func (m *txManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txCtxKey{}, tx))
	})
}

// GetDB returns the transaction carried by ctx, or rootDB outside one.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txCtxKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
