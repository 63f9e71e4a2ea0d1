package domain

import "errors"

var (
	ErrNotFound          = errors.New("product_not_found")
	ErrInsufficientStock = errors.New("insufficient_stock")
)
