package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/zenbill/zenbill/internal/loyalty/domain"
	pkgdb "github.com/zenbill/zenbill/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindProgram(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.LoyaltyProgram, error) {
	var program domain.LoyaltyProgram
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		First(&program).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &program, nil
}

func (r *repo) InsertProgram(ctx context.Context, db *gorm.DB, program *domain.LoyaltyProgram) error {
	return db.WithContext(ctx).Create(program).Error
}

func (r *repo) FindEarnByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*domain.LoyaltyTransaction, error) {
	var txn domain.LoyaltyTransaction
	err := db.WithContext(ctx).
		Where("invoice_id = ? AND transaction_type = ?", invoiceID, domain.TransactionTypeEarn).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.LoyaltyTransaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) FindCustomerLoyaltyForUpdate(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID) (*domain.CustomerLoyalty, error) {
	var loyalty domain.CustomerLoyalty
	err := pkgdb.ForUpdate(db.WithContext(ctx)).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		First(&loyalty).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loyalty, nil
}

func (r *repo) SaveCustomerLoyalty(ctx context.Context, db *gorm.DB, loyalty *domain.CustomerLoyalty) error {
	return db.WithContext(ctx).Save(loyalty).Error
}
