package order

import (
	"time"
)

// Status represents the payment status of an order.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Order represents a storefront order tracked by the gateway bridge.
// Orders are created by the storefront checkout flow and mutated here
// only through payment reconciliation.
type Order struct {
	ID            uint64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Number        string     `json:"number" gorm:"uniqueIndex;not null"`
	Key           string     `json:"-" gorm:"column:order_key;not null"`
	Status        Status     `json:"status" gorm:"not null;default:pending"`
	Currency      string     `json:"currency" gorm:"default:USD"`
	TotalCents    int64      `json:"total_cents"`
	ShippingCents int64      `json:"shipping_cents"`
	TaxCents      int64      `json:"tax_cents"`
	Email         string     `json:"email"`
	CustomerName  string     `json:"customer_name"`
	TransactionID string     `json:"transaction_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Relations
	Items []Item `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	Meta  []Meta `json:"-" gorm:"foreignKey:OrderID"`
	Notes []Note `json:"-" gorm:"foreignKey:OrderID"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// IsPending returns true if the order is awaiting payment.
func (o *Order) IsPending() bool {
	return o.Status == StatusPending
}

// IsPaid returns true if the order has been paid.
func (o *Order) IsPaid() bool {
	return o.Status == StatusPaid
}

// KeyMatches checks the order key carried on return/cancel URLs.
func (o *Order) KeyMatches(key string) bool {
	return key != "" && o.Key == key
}

// Item represents a line item in an order.
type Item struct {
	ID          uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID     uint64 `json:"order_id" gorm:"not null;index"`
	Description string `json:"description" gorm:"not null"`
	AmountCents int64  `json:"amount_cents"`
}

// TableName returns the database table name.
func (Item) TableName() string {
	return "order_items"
}

// Meta is an opaque key/value entry attached to an order. The gateway
// stores its session back-references here; the composite index supports
// reverse lookup by key and value.
type Meta struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   uint64 `json:"order_id" gorm:"not null;uniqueIndex:idx_order_meta_key"`
	MetaKey   string `json:"meta_key" gorm:"not null;uniqueIndex:idx_order_meta_key;index:idx_meta_lookup"`
	MetaValue string `json:"meta_value" gorm:"index:idx_meta_lookup"`
}

// TableName returns the database table name.
func (Meta) TableName() string {
	return "order_meta"
}

// Note is an append-only audit note on an order.
type Note struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   uint64    `json:"order_id" gorm:"not null;index"`
	Text      string    `json:"text" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (Note) TableName() string {
	return "order_notes"
}
