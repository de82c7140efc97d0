package models

import "time"

// order status
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusCancelled = "CANCELLED"
)

var validNext = map[string]map[string]bool{
	OrderStatusPending:   {OrderStatusPending: true, OrderStatusPaid: true, OrderStatusCancelled: true},
	OrderStatusPaid:      {},
	OrderStatusCancelled: {},
}

// CanTransition reports whether an order may move from one status to another.
// PAID and CANCELLED are terminal; PENDING->PENDING is a permitted no-op.
func CanTransition(from, to string) bool {
	return validNext[from][to]
}

// Order is order entity
type Order struct {
	ID          string
	BuyerID     string
	TxRef       string
	TotalAmount float64
	Currency    string
	Status      string
	PaymentURL  *string
	Items       []OrderItem
	CreatedAt   time.Time
}

// OrderItem is a single order line with the product price snapshot
// taken at order creation time.
type OrderItem struct {
	ID           uint64
	OrderID      string
	ProductID    string
	Quantity     int
	PriceAtOrder float64
}
