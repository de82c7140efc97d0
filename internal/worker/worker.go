package worker

import (
	"context"
	"time"

	"github.com/abenezerw/gebeya/internal/models"
	"go.uber.org/zap"
)

// orders younger than this are left to the webhook
const pendingAge = time.Minute

type OrderService interface {
	PendingOrders(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	RetryPaymentInit(ctx context.Context, orderID string) (string, error)
}

type PaymentService interface {
	PollAndApply(ctx context.Context, orderID string) (string, error)
}

// OrderProcessor is worker performs reconciliation of stale pending orders.
// Orders that never received a checkout URL get payment initiation retried;
// the rest are polled against the gateway.
type OrderProcessor struct {
	orders   OrderService
	payments PaymentService
	interval time.Duration
	logger   *zap.Logger
}

// NewOrderProcessor creates new order processor
func NewOrderProcessor(orders OrderService, payments PaymentService, interval time.Duration, logger *zap.Logger) *OrderProcessor {
	return &OrderProcessor{
		orders:   orders,
		payments: payments,
		interval: interval,
		logger:   logger,
	}
}

// ProcessOrders runs the reconcile loop until ctx is cancelled
func (op *OrderProcessor) ProcessOrders(ctx context.Context) {
	orderCh := make(chan models.Order, 10)

	go op.reconcile(ctx, orderCh)

	ticker := time.NewTicker(op.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			op.logger.Debug("order processor is done")
			return
		case <-ticker.C:
			if err := op.feedPendingOrders(ctx, orderCh); err != nil {
				op.logger.Error("error getting pending orders", zap.Error(err))
			}
		}
	}
}

// feedPendingOrders writes stale pending orders to the channel
func (op *OrderProcessor) feedPendingOrders(ctx context.Context, orderCh chan<- models.Order) error {
	orders, err := op.orders.PendingOrders(ctx, time.Now().Add(-pendingAge))
	if err != nil {
		return err
	}

	for _, order := range orders {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case orderCh <- order:
		}
	}

	return nil
}

func (op *OrderProcessor) reconcile(ctx context.Context, orderCh <-chan models.Order) {
	for {
		select {
		case <-ctx.Done():
			op.logger.Debug("reconcile loop is done")
			return
		case order, ok := <-orderCh:
			if !ok {
				return
			}

			if order.PaymentURL == nil {
				op.logger.Debug("retrying payment initiation", zap.String("order_id", order.ID))
				if _, err := op.orders.RetryPaymentInit(ctx, order.ID); err != nil {
					op.logger.Error("payment initiation retry", zap.String("order_id", order.ID), zap.Error(err))
				}
				continue
			}

			op.logger.Debug("polling payment status", zap.String("order_id", order.ID))
			status, err := op.payments.PollAndApply(ctx, order.ID)
			if err != nil {
				op.logger.Error("poll payment status", zap.String("order_id", order.ID), zap.Error(err))
				continue
			}

			op.logger.Debug("order reconciled",
				zap.String("order_id", order.ID),
				zap.String("status", status))
		}
	}
}
