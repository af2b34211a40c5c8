package order

import "errors"

var (
	// ErrOrderNotFound is returned when an order lookup matches nothing.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrder is returned when creating an order whose number already exists.
	ErrDuplicateOrder = errors.New("order number already exists")
)
