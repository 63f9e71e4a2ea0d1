package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/zenbill/zenbill/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Create(customer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, email, phone, credit_balance, created_at, updated_at
		 FROM customers WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) AddCredit(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, delta float64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET credit_balance = ROUND(credit_balance + ?, 2), updated_at = CURRENT_TIMESTAMP
		 WHERE tenant_id = ? AND id = ?`,
		delta,
		tenantID,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) SubtractCreditClamped(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, amount float64) error {
	// CASE instead of GREATEST so the clamp works on postgres, mysql and sqlite alike.
	result := db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET credit_balance = ROUND(CASE WHEN credit_balance - ? < 0 THEN 0 ELSE credit_balance - ? END, 2),
		     updated_at = CURRENT_TIMESTAMP
		 WHERE tenant_id = ? AND id = ?`,
		amount,
		amount,
		tenantID,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
