package repository

import (
	"context"
	"errors"
	"time"

	"github.com/abenezerw/gebeya/internal/models"
	"github.com/abenezerw/gebeya/internal/repository/postgres"
	"github.com/jackc/pgx/v5"
)

const (
	insertOrderQuery = `
						INSERT INTO orders (id, buyer_id, tx_ref, total_amount, currency, status)
						VALUES ($1, $2, $3, $4, $5, $6)
						RETURNING created_at
`
	insertOrderItemQuery = `
						INSERT INTO order_items (order_id, product_id, quantity, price_at_order)
						VALUES ($1, $2, $3, $4)
`
	decrementStockQuery = `
						UPDATE products SET quantity = quantity - $2
						WHERE id = $1 AND quantity >= $2
`
	deleteCartQuery = `
						DELETE FROM cart_items WHERE buyer_id = $1
`
	selectOrderByIDQuery = `
						SELECT id, buyer_id, tx_ref, total_amount, currency, status, payment_url, created_at FROM orders
						WHERE id = $1
`
	selectOrderByTxRefQuery = `
						SELECT id, buyer_id, tx_ref, total_amount, currency, status, payment_url, created_at FROM orders
						WHERE tx_ref = $1
`
	selectOrdersByBuyerIDQuery = `
						SELECT id, buyer_id, tx_ref, total_amount, currency, status, payment_url, created_at FROM orders
						WHERE buyer_id = $1
						ORDER BY created_at DESC
`
	selectOrderItemsQuery = `
						SELECT id, order_id, product_id, quantity, price_at_order FROM order_items
						WHERE order_id = $1
						ORDER BY id
`
	updatePaymentURLQuery = `
						UPDATE orders
						SET payment_url = $1, currency = $2
						WHERE id = $3
`
	applyStatusQuery = `
						UPDATE orders
						SET status = $1
						WHERE id = $2 AND status = 'PENDING'
						RETURNING status
`
	selectStatusQuery = `
						SELECT status FROM orders WHERE id = $1
`
	selectPendingOrdersQuery = `
						SELECT id, buyer_id, tx_ref, total_amount, currency, status, payment_url, created_at FROM orders
						WHERE status = 'PENDING' AND created_at < $1
						ORDER BY created_at
`
)

// OrderRepository implements OrderRepository interface
type OrderRepository struct {
	db *postgres.DB
}

// NewOrderRepository creates new OrderRepository instance
func NewOrderRepository(db *postgres.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder persists the order, its items, the stock decrement and the
// cart cleanup inside one transaction. Stock is decremented conditionally;
// a product without enough stock aborts the whole unit with
// models.ErrInsufficientStock and nothing is committed.
func (or *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	return or.db.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrderQuery,
			order.ID, order.BuyerID, order.TxRef, order.TotalAmount, order.Currency, order.Status).
			Scan(&order.CreatedAt)
		if err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID

			if _, err := tx.Exec(ctx, insertOrderItemQuery,
				item.OrderID, item.ProductID, item.Quantity, item.PriceAtOrder); err != nil {
				return err
			}

			cmd, err := tx.Exec(ctx, decrementStockQuery, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if cmd.RowsAffected() == 0 {
				return models.ErrInsufficientStock
			}
		}

		if _, err := tx.Exec(ctx, deleteCartQuery, order.BuyerID); err != nil {
			return err
		}

		return nil
	})
}

// GetOrderByID returns order by id
func (or *OrderRepository) GetOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	return or.scanOrder(or.db.QueryRow(ctx, selectOrderByIDQuery, orderID))
}

// GetOrderByTxRef returns order by transaction reference
func (or *OrderRepository) GetOrderByTxRef(ctx context.Context, txRef string) (*models.Order, error) {
	return or.scanOrder(or.db.QueryRow(ctx, selectOrderByTxRefQuery, txRef))
}

func (or *OrderRepository) scanOrder(row pgx.Row) (*models.Order, error) {
	order := models.Order{}
	err := row.Scan(&order.ID, &order.BuyerID, &order.TxRef, &order.TotalAmount,
		&order.Currency, &order.Status, &order.PaymentURL, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, err
	}

	return &order, nil
}

// GetOrdersByBuyerID gets buyer orders with their items
func (or *OrderRepository) GetOrdersByBuyerID(ctx context.Context, buyerID string) ([]models.Order, error) {
	rows, err := or.db.Query(ctx, selectOrdersByBuyerIDQuery, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}

	for rows.Next() {
		order := models.Order{}
		err = rows.Scan(&order.ID, &order.BuyerID, &order.TxRef, &order.TotalAmount,
			&order.Currency, &order.Status, &order.PaymentURL, &order.CreatedAt)
		if err != nil {
			continue
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := or.getOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (or *OrderRepository) getOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := or.db.Query(ctx, selectOrderItemsQuery, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.OrderItem{}

	for rows.Next() {
		item := models.OrderItem{}
		err = rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.PriceAtOrder)
		if err != nil {
			continue
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// SetPaymentURL attaches the gateway checkout URL and currency to the order
func (or *OrderRepository) SetPaymentURL(ctx context.Context, orderID, paymentURL, currency string) error {
	cmd, err := or.db.Exec(ctx, updatePaymentURLQuery, paymentURL, currency, orderID)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return models.ErrOrderNotFound
	}

	return nil
}

// ApplyStatus writes status only when the order is still PENDING and
// returns the status the order ends up with. An order already in a
// terminal state keeps it; applied reports whether this call wrote.
func (or *OrderRepository) ApplyStatus(ctx context.Context, orderID, status string) (final string, applied bool, err error) {
	err = or.db.QueryRow(ctx, applyStatusQuery, status, orderID).Scan(&final)
	if err == nil {
		return final, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, err
	}

	// order is already terminal (or absent), report the current status
	err = or.db.QueryRow(ctx, selectStatusQuery, orderID).Scan(&final)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, models.ErrOrderNotFound
		}
		return "", false, err
	}

	return final, false, nil
}

// GetPendingOrders returns orders still PENDING that were created before cutoff
func (or *OrderRepository) GetPendingOrders(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	rows, err := or.db.Query(ctx, selectPendingOrdersQuery, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}

	for rows.Next() {
		order := models.Order{}
		err = rows.Scan(&order.ID, &order.BuyerID, &order.TxRef, &order.TotalAmount,
			&order.Currency, &order.Status, &order.PaymentURL, &order.CreatedAt)
		if err != nil {
			continue
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}
