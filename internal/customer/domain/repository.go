package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository methods accept the gorm handle explicitly so callers can run
// them inside an enclosing transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Customer, error)
	// AddCredit increments the credit balance by delta, which may be negative.
	AddCredit(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, delta float64) error
	// SubtractCreditClamped decrements the credit balance by amount, never
	// letting it drop below zero.
	SubtractCreditClamped(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, amount float64) error
}
