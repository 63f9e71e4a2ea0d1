// Package domain contains persistence models and contracts for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// InvoiceType represents the commercial document kind.
type InvoiceType string

const (
	InvoiceTypeStandard InvoiceType = "STANDARD"
	InvoiceTypeProforma InvoiceType = "PROFORMA"
	InvoiceTypeCredit   InvoiceType = "CREDIT"
	InvoiceTypeDebit    InvoiceType = "DEBIT"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "DRAFT"
	InvoiceStatusSent    InvoiceStatus = "SENT"
	InvoiceStatusViewed  InvoiceStatus = "VIEWED"
	InvoiceStatusPartial InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// TaxKind is the closed set of tax categories an item may carry. Aggregation
// keys on this enum plus the rate, never on free-form tax names.
type TaxKind string

const (
	TaxKindGST  TaxKind = "GST"
	TaxKindCGST TaxKind = "CGST"
	TaxKindSGST TaxKind = "SGST"
	TaxKindIGST TaxKind = "IGST"
	TaxKindNone TaxKind = "NONE"
)

// Valid reports whether k is one of the known tax kinds.
func (k TaxKind) Valid() bool {
	switch k {
	case TaxKindGST, TaxKindCGST, TaxKindSGST, TaxKindIGST, TaxKindNone:
		return true
	}
	return false
}

// Invoice is the tenant-scoped financial document.
//
// Invariants maintained by the mutation service:
//
//	TotalAmount = round2(SubTotal - DiscountTotal + TaxTotal)
//	BalanceDue  = round2(TotalAmount - AmountPaid - CashbackApplied), never negative
type Invoice struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"column:tenant_id;not null;index:idx_invoices_tenant_created"`

	InvoiceNumber string       `gorm:"type:text;not null;index"`
	CustomerID    snowflake.ID `gorm:"not null;index"`

	Type   InvoiceType   `gorm:"type:text;not null;default:'STANDARD'"`
	Status InvoiceStatus `gorm:"type:text;not null;default:'DRAFT'"`

	IssueDate    time.Time    `gorm:"not null"`
	DueDate      time.Time    `gorm:"not null"`
	PaymentTerms PaymentTerms `gorm:"type:text;not null;default:'NET_15'"`

	SubTotal        float64 `gorm:"type:numeric(14,2);not null;default:0"`
	DiscountTotal   float64 `gorm:"type:numeric(14,2);not null;default:0"`
	TaxTotal        float64 `gorm:"type:numeric(14,2);not null;default:0"`
	TotalAmount     float64 `gorm:"type:numeric(14,2);not null;default:0"`
	AmountPaid      float64 `gorm:"type:numeric(14,2);not null;default:0"`
	BalanceDue      float64 `gorm:"type:numeric(14,2);not null;default:0"`
	CashbackApplied float64 `gorm:"type:numeric(14,2);not null;default:0"`

	PaidDate *time.Time `gorm:""`
	Notes    *string    `gorm:"type:text"`

	CreatedAt time.Time      `gorm:"not null;index:idx_invoices_tenant_created,sort:desc"`
	UpdatedAt time.Time      `gorm:"not null"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is a line on an invoice. Items are replaced wholesale on
// update, never patched in place.
//
// Invariant: LineTotal = TaxableAmount + TaxAmount,
// TaxableAmount = Quantity*UnitPrice - DiscountAmount.
type InvoiceItem struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;index"`
	InvoiceID snowflake.ID `gorm:"not null;index"`

	ProductID   *snowflake.ID `gorm:"index"`
	Description string        `gorm:"type:text"`

	Quantity    float64 `gorm:"type:numeric(14,2);not null"`
	UnitPrice   float64 `gorm:"type:numeric(14,2);not null"`
	DiscountPct float64 `gorm:"column:discount_pct;type:numeric(6,2);not null;default:0"`
	TaxRatePct  float64 `gorm:"column:tax_rate_pct;type:numeric(6,2);not null;default:0"`
	TaxKind     TaxKind `gorm:"type:text;not null;default:'GST'"`

	DiscountAmount float64 `gorm:"type:numeric(14,2);not null;default:0"`
	TaxableAmount  float64 `gorm:"type:numeric(14,2);not null;default:0"`
	TaxAmount      float64 `gorm:"type:numeric(14,2);not null;default:0"`
	LineTotal      float64 `gorm:"type:numeric(14,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// TaxDetail aggregates the invoice's items by (kind, rate); one row per
// distinct pair.
type TaxDetail struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;index"`
	InvoiceID snowflake.ID `gorm:"not null;index"`

	Kind         TaxKind `gorm:"type:text;not null"`
	RatePct      float64 `gorm:"column:rate_pct;type:numeric(6,2);not null"`
	TaxableValue float64 `gorm:"type:numeric(14,2);not null;default:0"`
	TaxAmount    float64 `gorm:"type:numeric(14,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (TaxDetail) TableName() string { return "invoice_tax_details" }

// PaymentStatus represents payment row states.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment records a settlement against an invoice.
type Payment struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;index"`
	InvoiceID snowflake.ID `gorm:"not null;index"`

	Amount      float64       `gorm:"type:numeric(14,2);not null"`
	Method      string        `gorm:"type:text;not null;default:'CASH'"`
	Status      PaymentStatus `gorm:"type:text;not null"`
	PaymentDate time.Time     `gorm:"not null"`
	Reference   *string       `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
