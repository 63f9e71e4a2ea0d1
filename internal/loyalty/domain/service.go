package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service is the loyalty settlement contract.
type Service interface {
	// ProcessInvoice performs the post-commit EARN settlement for one
	// invoice. It is idempotent: repeated calls for the same invoice leave
	// exactly one EARN transaction.
	ProcessInvoice(ctx context.Context, invoiceID snowflake.ID) error

	// Redeem debits available cashback inside the caller's transaction. It
	// is the synchronous counterpart used by invoice create/update when the
	// payload applies cashback.
	Redeem(ctx context.Context, tx *gorm.DB, tenantID, customerID, invoiceID snowflake.ID, amount float64) error

	// GetCustomerLoyalty returns the rolling aggregate, or nil when the
	// customer has no loyalty activity yet.
	GetCustomerLoyalty(ctx context.Context, tenantID, customerID snowflake.ID) (*CustomerLoyalty, error)
}
