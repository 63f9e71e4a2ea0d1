// Package domain contains persistence models for products.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ProductType distinguishes stock-tracked goods from untracked offerings.
type ProductType string

const (
	ProductTypeGoods   ProductType = "GOODS"
	ProductTypeService ProductType = "SERVICE"
	ProductTypeDigital ProductType = "DIGITAL"
)

// TracksStock reports whether selling this product type consumes inventory.
func (t ProductType) TracksStock() bool { return t == ProductTypeGoods }

// Product is a tenant-scoped sellable item. StockQuantity is only meaningful
// for GOODS and must never go negative.
type Product struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"column:tenant_id;not null;index"`

	Name string      `gorm:"type:text;not null"`
	SKU  string      `gorm:"column:sku;type:text"`
	Type ProductType `gorm:"type:text;not null;default:'GOODS'"`

	UnitPrice     float64 `gorm:"type:numeric(14,2);not null;default:0"`
	TaxRatePct    float64 `gorm:"column:tax_rate_pct;type:numeric(6,2);not null;default:0"`
	StockQuantity float64 `gorm:"type:numeric(14,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }
