package repository

import (
	"context"

	"github.com/abenezerw/gebeya/internal/models"
	"github.com/abenezerw/gebeya/internal/repository/postgres"
)

const (
	selectCartByBuyerIDQuery = `
						SELECT c.id, c.buyer_id, c.product_id, c.quantity, p.price, p.name
						FROM cart_items c
						JOIN products p ON p.id = c.product_id
						WHERE c.buyer_id = $1
						ORDER BY c.id
`
)

// CartRepository implements CartRepository interface
type CartRepository struct {
	db *postgres.DB
}

// NewCartRepository creates new CartRepository instance
func NewCartRepository(db *postgres.DB) *CartRepository {
	return &CartRepository{db: db}
}

// GetCartItems returns buyer cart rows with the current product snapshot
func (cr *CartRepository) GetCartItems(ctx context.Context, buyerID string) ([]models.CartItem, error) {
	rows, err := cr.db.Query(ctx, selectCartByBuyerIDQuery, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.CartItem{}

	for rows.Next() {
		item := models.CartItem{}
		err = rows.Scan(&item.ID, &item.BuyerID, &item.ProductID, &item.Quantity,
			&item.ProductPrice, &item.ProductName)
		if err != nil {
			continue
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
