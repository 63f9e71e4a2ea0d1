package domain

import (
	"context"
	"time"
)

// LineItemInput is one requested invoice line. The numeric fields are typed
// loosely on purpose: upstream clients have shipped amounts as strings (and
// occasionally as corrupted concatenations like "12.50.30"), so the
// calculator coerces each one defensively instead of failing the invoice.
type LineItemInput struct {
	ProductID   *string `json:"product_id,omitempty"`
	Description string  `json:"description"`
	Quantity    any     `json:"quantity"`
	UnitPrice   any     `json:"unit_price"`
	DiscountPct any     `json:"discount_pct"`
	TaxRatePct  any     `json:"tax_rate_pct"`
	TaxKind     TaxKind `json:"tax_kind,omitempty"`
}

// CreateInvoiceRequest is the payload for invoice creation.
type CreateInvoiceRequest struct {
	CustomerID   string          `json:"customer_id"`
	Type         InvoiceType     `json:"type,omitempty"`
	IssueDate    *time.Time      `json:"issue_date,omitempty"`
	PaymentTerms PaymentTerms    `json:"payment_terms,omitempty"`
	Items        []LineItemInput `json:"items"`
	Cashback     any             `json:"cashback,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
}

// UpdateInvoiceRequest fully replaces the invoice's items; partial item
// patches are not supported.
type UpdateInvoiceRequest struct {
	IssueDate    *time.Time      `json:"issue_date,omitempty"`
	PaymentTerms *PaymentTerms   `json:"payment_terms,omitempty"`
	Items        []LineItemInput `json:"items"`
	Cashback     any             `json:"cashback,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
}

// AddPaymentRequest records a settlement against an invoice.
type AddPaymentRequest struct {
	InvoiceID   string     `json:"invoice_id"`
	Amount      any        `json:"amount"`
	Method      string     `json:"method,omitempty"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
	Reference   *string    `json:"reference,omitempty"`
}

// ListInvoicesRequest selects a keyset page of invoices.
type ListInvoicesRequest struct {
	Cursor     string         `json:"cursor,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Search     string         `json:"search,omitempty"`
	Status     *InvoiceStatus `json:"status,omitempty"`
	CustomerID *string        `json:"customer_id,omitempty"`
	DateFrom   *time.Time     `json:"date_from,omitempty"`
	DateTo     *time.Time     `json:"date_to,omitempty"`
}

// ListInvoicesResponse is one page plus the continuation cursor.
type ListInvoicesResponse struct {
	Data       []Invoice `json:"data"`
	NextCursor *string   `json:"next_cursor"`
	HasMore    bool      `json:"has_more"`
}

// InvoiceDetail bundles an invoice with its lines and tax aggregates.
type InvoiceDetail struct {
	Invoice    Invoice       `json:"invoice"`
	Items      []InvoiceItem `json:"items"`
	TaxDetails []TaxDetail   `json:"tax_details"`
}

// Service is the invoice mutation and retrieval contract. Every mutation is
// atomic across invoice, items, tax details, product stock and customer
// balance; loyalty settlement happens asynchronously after commit.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*InvoiceDetail, error)
	Update(ctx context.Context, invoiceID string, req UpdateInvoiceRequest) (*InvoiceDetail, error)
	Get(ctx context.Context, invoiceID string) (*InvoiceDetail, error)
	List(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)
	AddPayment(ctx context.Context, req AddPaymentRequest) (*Payment, error)
	Delete(ctx context.Context, invoiceID string) error
}
