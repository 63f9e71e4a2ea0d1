package domain

import "errors"

var (
	ErrNotFound      = errors.New("customer_not_found")
	ErrInvalidTenant = errors.New("invalid_tenant")
)
