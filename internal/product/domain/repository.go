package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository methods accept the gorm handle explicitly so stock mutations can
// share the orchestrator's transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Product, error)
	// DecrementStock atomically consumes quantity, failing with
	// ErrInsufficientStock when not enough is available.
	DecrementStock(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, quantity float64) error
	// IncrementStock returns quantity to inventory.
	IncrementStock(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, quantity float64) error
}
