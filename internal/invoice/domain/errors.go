package domain

import "errors"

var (
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrCustomerNotFound    = errors.New("customer_not_found")
	ErrInvalidState        = errors.New("invalid_state")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrValidation          = errors.New("validation_failed")
	ErrNoItems             = errors.New("invoice_requires_items")
)
