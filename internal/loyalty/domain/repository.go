package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository methods accept the gorm handle explicitly so settlement and
// redemption can run inside their callers' transactions.
type Repository interface {
	FindProgram(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*LoyaltyProgram, error)
	InsertProgram(ctx context.Context, db *gorm.DB, program *LoyaltyProgram) error

	// FindEarnByInvoice is the settlement idempotency guard.
	FindEarnByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*LoyaltyTransaction, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *LoyaltyTransaction) error

	FindCustomerLoyaltyForUpdate(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID) (*CustomerLoyalty, error)
	SaveCustomerLoyalty(ctx context.Context, db *gorm.DB, loyalty *CustomerLoyalty) error
}
