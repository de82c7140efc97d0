package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/abenezerw/gebeya/internal/middleware"
	"github.com/abenezerw/gebeya/internal/models"
	"github.com/abenezerw/gebeya/internal/service"
	"github.com/go-chi/chi/v5"
)

// OrderService is interface for checkout and order listing
type OrderService interface {
	// CreateOrderFromCart turns the buyer's cart into a pending order
	// and hands off to the payment gateway
	CreateOrderFromCart(ctx context.Context, buyerID string) (*service.CheckoutResult, error)
	// RetryPaymentInit re-initiates payment for a pending order
	RetryPaymentInit(ctx context.Context, orderID string) (string, error)
	// ListBuyerOrders returns list of buyer orders
	ListBuyerOrders(ctx context.Context, buyerID string) ([]models.Order, error)
}

// OrderHandler represents HTTP handler for order-related requests
type OrderHandler struct {
	svc OrderService
}

// NewOrderHandler creates new OrderHandler instance
func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type checkoutResponse struct {
	OrderID    string `json:"orderId"`
	PaymentURL string `json:"paymentUrl"`
}

// Checkout creates an order from the buyer's cart
// 200 — order created, checkout URL returned;
// 401 — buyer not authenticated;
// 404 — buyer not found;
// 409 — insufficient product stock;
// 422 — empty cart or unusable email;
// 502 — payment gateway failure.
func (oh *OrderHandler) Checkout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, ok := middleware.BuyerIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		result, err := oh.svc.CreateOrderFromCart(r.Context(), buyerID)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrUserNotFound):
				http.Error(w, "user not found", http.StatusNotFound)
			case errors.Is(err, models.ErrCartEmpty):
				http.Error(w, "cart is empty", http.StatusUnprocessableEntity)
			case errors.Is(err, models.ErrInvalidEmail):
				http.Error(w, "user email missing or malformed", http.StatusUnprocessableEntity)
			case errors.Is(err, models.ErrInsufficientStock):
				http.Error(w, "insufficient product stock", http.StatusConflict)
			case errors.Is(err, models.ErrPaymentInit):
				http.Error(w, "payment initialization failed", http.StatusBadGateway)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(checkoutResponse{
			OrderID:    result.OrderID,
			PaymentURL: result.PaymentURL,
		}); err != nil {
			return
		}
	}
}

// RetryPayment re-initiates payment for a pending order
// 200 — checkout URL returned;
// 404 — order not found;
// 409 — order is not pending;
// 502 — payment gateway failure.
func (oh *OrderHandler) RetryPayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")
		if orderID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		paymentURL, err := oh.svc.RetryPaymentInit(r.Context(), orderID)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, models.ErrPaymentNotPending):
				http.Error(w, "order payment is not pending", http.StatusConflict)
			case errors.Is(err, models.ErrPaymentInit):
				http.Error(w, "payment initialization failed", http.StatusBadGateway)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(map[string]string{"paymentUrl": paymentURL}); err != nil {
			return
		}
	}
}

type orderItemResponse struct {
	ProductID    string  `json:"productId"`
	Quantity     int     `json:"quantity"`
	PriceAtOrder float64 `json:"priceAtOrder"`
}

type orderResponse struct {
	OrderID     string              `json:"orderId"`
	TxRef       string              `json:"txRef"`
	TotalAmount float64             `json:"totalAmount"`
	Currency    string              `json:"currency"`
	Status      string              `json:"status"`
	PaymentURL  *string             `json:"paymentUrl"`
	Items       []orderItemResponse `json:"items"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// ListMyOrders returns the authenticated buyer's orders
// 200 — orders returned;
// 401 — buyer not authenticated;
// 500 — internal error.
func (oh *OrderHandler) ListMyOrders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, ok := middleware.BuyerIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orders, err := oh.svc.ListBuyerOrders(r.Context(), buyerID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		resp := make([]orderResponse, 0, len(orders))
		for _, order := range orders {
			items := make([]orderItemResponse, 0, len(order.Items))
			for _, item := range order.Items {
				items = append(items, orderItemResponse{
					ProductID:    item.ProductID,
					Quantity:     item.Quantity,
					PriceAtOrder: item.PriceAtOrder,
				})
			}
			resp = append(resp, orderResponse{
				OrderID:     order.ID,
				TxRef:       order.TxRef,
				TotalAmount: order.TotalAmount,
				Currency:    order.Currency,
				Status:      order.Status,
				PaymentURL:  order.PaymentURL,
				Items:       items,
				CreatedAt:   order.CreatedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(resp); err != nil {
			return
		}
	}
}
