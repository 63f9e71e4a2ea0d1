// Package domain contains persistence models for the loyalty program.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionType distinguishes cashback accrual from redemption.
type TransactionType string

const (
	TransactionTypeEarn   TransactionType = "EARN"
	TransactionTypeRedeem TransactionType = "REDEEM"
)

// Tier is the customer's loyalty classification, derived from lifetime spend.
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// Tier thresholds on total amount spent.
const (
	SilverThreshold   = 50_000.0
	GoldThreshold     = 100_000.0
	PlatinumThreshold = 250_000.0
)

// LoyaltyProgram is the tenant's active cashback policy. One active program
// per tenant; missing programs are lazily initialized from config defaults.
type LoyaltyProgram struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_loyalty_program_tenant"`

	CashbackPercentage    float64 `gorm:"type:numeric(6,2);not null"`
	MinimumPurchaseAmount float64 `gorm:"type:numeric(14,2);not null"`
	MaximumCashbackAmount float64 `gorm:"type:numeric(14,2);not null"`

	IsActive bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (LoyaltyProgram) TableName() string { return "loyalty_programs" }

// LoyaltyTransaction is one cashback movement. At most one EARN exists per
// invoice: the settlement processor checks before writing, and the partial
// unique index on invoice_id closes the race between concurrent settlements.
type LoyaltyTransaction struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TenantID   snowflake.ID `gorm:"column:tenant_id;not null;index"`
	CustomerID snowflake.ID `gorm:"not null;index"`
	InvoiceID  snowflake.ID `gorm:"not null;index:idx_loyalty_txn_invoice;uniqueIndex:ux_loyalty_earn_invoice,where:transaction_type = 'EARN'"`

	Type TransactionType `gorm:"column:transaction_type;type:text;not null;index:idx_loyalty_txn_invoice"`

	// CashbackAmount is positive for EARN and negative for REDEEM.
	CashbackAmount float64 `gorm:"type:numeric(14,2);not null"`
	InvoiceTotal   float64 `gorm:"type:numeric(14,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (LoyaltyTransaction) TableName() string { return "loyalty_transactions" }

// CustomerLoyalty is the per-customer rolling aggregate.
type CustomerLoyalty struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TenantID   snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_customer_loyalty,priority:1"`
	CustomerID snowflake.ID `gorm:"not null;uniqueIndex:ux_customer_loyalty,priority:2"`

	TotalAmountSpent    float64 `gorm:"type:numeric(14,2);not null;default:0"`
	TotalOrders         int64   `gorm:"not null;default:0"`
	AvailableCashback   float64 `gorm:"type:numeric(14,2);not null;default:0"`
	TotalCashbackEarned float64 `gorm:"type:numeric(14,2);not null;default:0"`

	Tier          Tier              `gorm:"type:text;not null;default:'BRONZE'"`
	TierBenefits  datatypes.JSONMap `gorm:"type:jsonb"`
	TierExpiresAt *time.Time        `gorm:""`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (CustomerLoyalty) TableName() string { return "customer_loyalty" }

// TierForSpend returns the highest tier whose threshold the spend meets.
func TierForSpend(totalAmountSpent float64) Tier {
	switch {
	case totalAmountSpent >= PlatinumThreshold:
		return TierPlatinum
	case totalAmountSpent >= GoldThreshold:
		return TierGold
	case totalAmountSpent >= SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// TierRank orders tiers so upgrades can be distinguished from downgrades.
func TierRank(t Tier) int {
	switch t {
	case TierPlatinum:
		return 3
	case TierGold:
		return 2
	case TierSilver:
		return 1
	default:
		return 0
	}
}

// BenefitsFor returns the benefits map attached to a tier.
func BenefitsFor(t Tier) datatypes.JSONMap {
	switch t {
	case TierPlatinum:
		return datatypes.JSONMap{"cashback_multiplier": 2.0, "priority_support": true, "free_delivery": true}
	case TierGold:
		return datatypes.JSONMap{"cashback_multiplier": 1.5, "priority_support": true, "free_delivery": false}
	case TierSilver:
		return datatypes.JSONMap{"cashback_multiplier": 1.2, "priority_support": false, "free_delivery": false}
	default:
		return datatypes.JSONMap{"cashback_multiplier": 1.0, "priority_support": false, "free_delivery": false}
	}
}
