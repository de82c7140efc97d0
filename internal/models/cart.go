package models

// CartItem is entity cart item. Cart rows are owned per-buyer and are
// consumed atomically at checkout.
type CartItem struct {
	ID        uint64
	BuyerID   string
	ProductID string
	Quantity  int

	// product snapshot loaded together with the cart row
	ProductPrice float64
	ProductName  string
}

// Product is owned by the catalog; checkout only decrements Quantity.
type Product struct {
	ID       string
	Name     string
	Price    float64
	Quantity int
}

// User is entity user
type User struct {
	ID    string
	Email string
}

// TokenPayload contains authenticated buyer identity
type TokenPayload struct {
	BuyerID string
}
