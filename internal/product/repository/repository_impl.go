package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/zenbill/zenbill/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, sku, type, unit_price, tax_rate_pct, stock_quantity, created_at, updated_at
		 FROM products WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}

// The guarded UPDATE makes the availability check and the decrement one
// atomic statement: zero rows affected on an existing product means there was
// not enough stock.
func (r *repo) DecrementStock(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, quantity float64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock_quantity = stock_quantity - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE tenant_id = ? AND id = ? AND stock_quantity >= ?`,
		quantity,
		tenantID,
		id,
		quantity,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	existing, err := r.FindByID(ctx, db, tenantID, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientStock
}

func (r *repo) IncrementStock(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, quantity float64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock_quantity = stock_quantity + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE tenant_id = ? AND id = ?`,
		quantity,
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
