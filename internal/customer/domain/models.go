// Package domain contains persistence models for customers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer is a tenant-scoped billing counterparty. CreditBalance tracks the
// running exposure created by issued invoices and released by payments.
type Customer struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"column:tenant_id;not null;index"`

	Name  string `gorm:"type:text;not null"`
	Email string `gorm:"type:text"`
	Phone string `gorm:"type:text"`

	CreditBalance float64 `gorm:"type:numeric(14,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
