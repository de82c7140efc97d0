package service

import (
	"context"
	"errors"

	"github.com/abenezerw/gebeya/internal/models"
	"go.uber.org/zap"
)

// ReconcileRepository is interface for the order lookups and status
// writes the reconciler needs
type ReconcileRepository interface {
	// GetOrderByID returns order by id
	GetOrderByID(ctx context.Context, orderID string) (*models.Order, error)
	// GetOrderByTxRef returns order by transaction reference
	GetOrderByTxRef(ctx context.Context, txRef string) (*models.Order, error)
	// ApplyStatus writes status only while the order is PENDING and
	// returns the resulting status
	ApplyStatus(ctx context.Context, orderID, status string) (final string, applied bool, err error)
}

// WebhookPayload is the gateway-delivered payment outcome
type WebhookPayload struct {
	TxRef  string `json:"tx_ref"`
	Status string `json:"status"`
}

// ReconcileResult reports the order status after applying an outcome
type ReconcileResult struct {
	OrderID string
	Status  string
}

// PaymentService resolves order status from gateway-reported payment
// outcomes, via webhook delivery or manual verification. Both paths share
// the same status mapping and the same guarded write: an order only ever
// transitions out of PENDING once.
type PaymentService struct {
	repo     ReconcileRepository
	gateway  GatewayClient
	reverify bool
	logger   *zap.Logger
}

// NewPaymentService creates new PaymentService instance. With reverify set
// the webhook path re-verifies the reported status against the gateway
// instead of trusting the delivered payload.
func NewPaymentService(repo ReconcileRepository, gateway GatewayClient, reverify bool, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		repo:     repo,
		gateway:  gateway,
		reverify: reverify,
		logger:   logger,
	}
}

// ApplyWebhook applies a webhook-delivered payment outcome to its order
func (ps *PaymentService) ApplyWebhook(ctx context.Context, payload WebhookPayload) (*ReconcileResult, error) {
	if payload.TxRef == "" || payload.Status == "" {
		return nil, models.ErrInvalidWebhook
	}

	order, err := ps.repo.GetOrderByTxRef(ctx, payload.TxRef)
	if err != nil {
		return nil, err
	}

	status := payload.Status
	if ps.reverify {
		status, err = ps.gateway.VerifyPayment(ctx, payload.TxRef)
		if err != nil {
			ps.logger.Error("webhook re-verification failed",
				zap.String("tx_ref", payload.TxRef),
				zap.Error(err))
			return nil, models.ErrPaymentVerification
		}
	}

	newStatus := StatusFromGateway(status)
	if !models.CanTransition(order.Status, newStatus) {
		ps.logger.Debug("webhook ignored, order already settled",
			zap.String("order_id", order.ID),
			zap.String("status", order.Status))
		return &ReconcileResult{OrderID: order.ID, Status: order.Status}, nil
	}

	final, applied, err := ps.repo.ApplyStatus(ctx, order.ID, newStatus)
	if err != nil {
		return nil, err
	}
	if !applied {
		ps.logger.Debug("webhook raced a settling write",
			zap.String("order_id", order.ID),
			zap.String("status", final))
	}

	return &ReconcileResult{OrderID: order.ID, Status: final}, nil
}

// PollAndApply verifies the order's payment with the gateway and applies
// the result. Lookup failures surface as-is; verification failures are
// logged with their root cause and reported generically.
func (ps *PaymentService) PollAndApply(ctx context.Context, orderID string) (string, error) {
	order, err := ps.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.TxRef == "" {
		return "", models.ErrTxRefMissing
	}

	gatewayStatus, err := ps.gateway.VerifyPayment(ctx, order.TxRef)
	if err != nil {
		ps.logger.Error("payment verification failed",
			zap.String("order_id", orderID),
			zap.String("tx_ref", order.TxRef),
			zap.Error(err))
		return "", models.ErrPaymentVerification
	}

	newStatus := StatusFromGateway(gatewayStatus)
	if !models.CanTransition(order.Status, newStatus) {
		return order.Status, nil
	}

	final, _, err := ps.repo.ApplyStatus(ctx, orderID, newStatus)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			return "", err
		}
		ps.logger.Error("payment status update failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		return "", models.ErrPaymentVerification
	}

	return final, nil
}
