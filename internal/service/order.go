package service

import (
	"context"
	"fmt"
	"time"

	"github.com/abenezerw/gebeya/internal/chapa"
	"github.com/abenezerw/gebeya/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OrderRepository is interface for interacting with order-related data
type OrderRepository interface {
	// CreateOrder persists order, items, stock decrement and cart cleanup atomically
	CreateOrder(ctx context.Context, order *models.Order) error
	// GetOrderByID returns order by id
	GetOrderByID(ctx context.Context, orderID string) (*models.Order, error)
	// GetOrdersByBuyerID gets buyer orders
	GetOrdersByBuyerID(ctx context.Context, buyerID string) ([]models.Order, error)
	// SetPaymentURL attaches checkout URL and currency to the order
	SetPaymentURL(ctx context.Context, orderID, paymentURL, currency string) error
	// GetPendingOrders returns PENDING orders created before cutoff
	GetPendingOrders(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

// CartRepository is interface for interacting with cart-related data
type CartRepository interface {
	// GetCartItems returns buyer cart rows with the current product snapshot
	GetCartItems(ctx context.Context, buyerID string) ([]models.CartItem, error)
}

// UserRepository is interface for interacting with user-related data
type UserRepository interface {
	// GetUserByID returns user by id
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// GatewayClient is interface to the external payment gateway
type GatewayClient interface {
	InitiatePayment(ctx context.Context, req chapa.InitiatePaymentRequest) (*chapa.InitiatePaymentResponse, error)
	VerifyPayment(ctx context.Context, txRef string) (string, error)
}

// CheckoutResult is returned to the client after a successful checkout
type CheckoutResult struct {
	OrderID    string
	PaymentURL string
}

// OrderService implements OrderService interface
type OrderService struct {
	orders   OrderRepository
	cart     CartRepository
	users    UserRepository
	gateway  GatewayClient
	currency string
	logger   *zap.Logger
}

// NewOrderService creates new OrderService instance
func NewOrderService(orders OrderRepository, cart CartRepository, users UserRepository, gateway GatewayClient, currency string, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		cart:     cart,
		users:    users,
		gateway:  gateway,
		currency: currency,
		logger:   logger,
	}
}

func generateTxRef() string {
	return "tx_" + uuid.NewString()
}

// CreateOrderFromCart turns the buyer's cart into a PENDING order, reserves
// stock and hands off to the payment gateway. The order, its items, the
// stock decrement and the cart cleanup commit in one transaction before the
// gateway is contacted; a gateway failure leaves the order PENDING without
// a payment URL, to be resolved by a later retry or reconciliation.
func (os *OrderService) CreateOrderFromCart(ctx context.Context, buyerID string) (*CheckoutResult, error) {
	var (
		user      *models.User
		cartItems []models.CartItem
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = os.users.GetUserByID(gctx, buyerID)
		return err
	})
	g.Go(func() error {
		var err error
		cartItems, err = os.cart.GetCartItems(gctx, buyerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(cartItems) == 0 {
		return nil, models.ErrCartEmpty
	}
	if user.Email == "" {
		return nil, models.ErrInvalidEmail
	}

	order := &models.Order{
		ID:       uuid.NewString(),
		BuyerID:  buyerID,
		TxRef:    generateTxRef(),
		Currency: os.currency,
		Status:   models.OrderStatusPending,
	}

	for _, item := range cartItems {
		order.TotalAmount += item.ProductPrice * float64(item.Quantity)
		order.Items = append(order.Items, models.OrderItem{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PriceAtOrder: item.ProductPrice,
		})
	}

	if err := os.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	payment, err := os.gateway.InitiatePayment(ctx, chapa.InitiatePaymentRequest{
		Amount:  order.TotalAmount,
		Email:   user.Email,
		OrderID: order.ID,
		TxRef:   order.TxRef,
	})
	if err != nil {
		// the order is already committed; it stays PENDING without a
		// payment URL until initiation is retried
		os.logger.Error("payment initiation failed",
			zap.String("order_id", order.ID),
			zap.String("tx_ref", order.TxRef),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentInit, err)
	}

	if err := os.orders.SetPaymentURL(ctx, order.ID, payment.CheckoutURL, os.currency); err != nil {
		return nil, err
	}

	return &CheckoutResult{
		OrderID:    order.ID,
		PaymentURL: payment.CheckoutURL,
	}, nil
}

// RetryPaymentInit re-initiates payment for a PENDING order that has no
// checkout URL yet, reusing the tx_ref assigned at creation time.
func (os *OrderService) RetryPaymentInit(ctx context.Context, orderID string) (string, error) {
	order, err := os.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != models.OrderStatusPending {
		return "", models.ErrPaymentNotPending
	}

	user, err := os.users.GetUserByID(ctx, order.BuyerID)
	if err != nil {
		return "", err
	}

	payment, err := os.gateway.InitiatePayment(ctx, chapa.InitiatePaymentRequest{
		Amount:  order.TotalAmount,
		Email:   user.Email,
		OrderID: order.ID,
		TxRef:   order.TxRef,
	})
	if err != nil {
		os.logger.Error("payment initiation retry failed",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", models.ErrPaymentInit, err)
	}

	if err := os.orders.SetPaymentURL(ctx, order.ID, payment.CheckoutURL, order.Currency); err != nil {
		return "", err
	}

	return payment.CheckoutURL, nil
}

// ListBuyerOrders returns list of buyer orders
func (os *OrderService) ListBuyerOrders(ctx context.Context, buyerID string) ([]models.Order, error) {
	return os.orders.GetOrdersByBuyerID(ctx, buyerID)
}

// PendingOrders returns PENDING orders created before cutoff
func (os *OrderService) PendingOrders(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	return os.orders.GetPendingOrders(ctx, cutoff)
}
