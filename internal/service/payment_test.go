package service

import (
	"context"
	"sync"
	"testing"

	"github.com/abenezerw/gebeya/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeReconcileRepo applies statuses with the same guard the real
// repository uses: writes happen only while the order is PENDING.
type fakeReconcileRepo struct {
	mu         sync.Mutex
	orders     map[string]*models.Order
	applyCalls int
}

func newFakeReconcileRepo(orders ...*models.Order) *fakeReconcileRepo {
	repo := &fakeReconcileRepo{orders: map[string]*models.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (f *fakeReconcileRepo) GetOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (f *fakeReconcileRepo) GetOrderByTxRef(ctx context.Context, txRef string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.TxRef == txRef {
			cp := *order
			return &cp, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeReconcileRepo) ApplyStatus(ctx context.Context, orderID, status string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	order, ok := f.orders[orderID]
	if !ok {
		return "", false, models.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPending {
		return order.Status, false, nil
	}
	order.Status = status
	return status, true, nil
}

func pendingOrder() *models.Order {
	return &models.Order{
		ID:     "order-1",
		TxRef:  "tx_abc",
		Status: models.OrderStatusPending,
	}
}

func TestPaymentService_ApplyWebhook(t *testing.T) {
	tests := []struct {
		name       string
		payload    WebhookPayload
		wantStatus string
	}{
		{
			name:       "success_marks_paid",
			payload:    WebhookPayload{TxRef: "tx_abc", Status: "success"},
			wantStatus: models.OrderStatusPaid,
		},
		{
			name:       "failed_marks_cancelled",
			payload:    WebhookPayload{TxRef: "tx_abc", Status: "failed"},
			wantStatus: models.OrderStatusCancelled,
		},
		{
			name:       "unknown_keeps_pending",
			payload:    WebhookPayload{TxRef: "tx_abc", Status: "processing"},
			wantStatus: models.OrderStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeReconcileRepo(pendingOrder())
			svc := NewPaymentService(repo, &stubGateway{}, false, zap.NewNop())

			result, err := svc.ApplyWebhook(context.Background(), tt.payload)
			require.NoError(t, err)
			assert.Equal(t, "order-1", result.OrderID)
			assert.Equal(t, tt.wantStatus, result.Status)
		})
	}
}

func TestPaymentService_ApplyWebhook_InvalidPayload(t *testing.T) {
	repo := newFakeReconcileRepo(pendingOrder())
	svc := NewPaymentService(repo, &stubGateway{}, false, zap.NewNop())

	for _, payload := range []WebhookPayload{
		{},
		{TxRef: "tx_abc"},
		{Status: "success"},
	} {
		_, err := svc.ApplyWebhook(context.Background(), payload)
		assert.ErrorIs(t, err, models.ErrInvalidWebhook)
	}

	// no state change
	order, _ := repo.GetOrderByID(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestPaymentService_ApplyWebhook_UnknownTxRef(t *testing.T) {
	svc := NewPaymentService(newFakeReconcileRepo(), &stubGateway{}, false, zap.NewNop())

	_, err := svc.ApplyWebhook(context.Background(), WebhookPayload{TxRef: "tx_nope", Status: "success"})
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestPaymentService_ApplyWebhook_ReverifyOverridesPayload(t *testing.T) {
	repo := newFakeReconcileRepo(pendingOrder())
	gateway := &stubGateway{verifyStatus: "success"}
	svc := NewPaymentService(repo, gateway, true, zap.NewNop())

	// a spoofed payload claiming failure is overridden by the gateway answer
	result, err := svc.ApplyWebhook(context.Background(), WebhookPayload{TxRef: "tx_abc", Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, result.Status)
	assert.Equal(t, []string{"tx_abc"}, gateway.verified)
}

func TestPaymentService_ApplyWebhook_ReverifyFailure(t *testing.T) {
	repo := newFakeReconcileRepo(pendingOrder())
	gateway := &stubGateway{verifyErr: models.NewGatewayError("verify", 502, nil)}
	svc := NewPaymentService(repo, gateway, true, zap.NewNop())

	_, err := svc.ApplyWebhook(context.Background(), WebhookPayload{TxRef: "tx_abc", Status: "success"})
	assert.ErrorIs(t, err, models.ErrPaymentVerification)

	order, _ := repo.GetOrderByID(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestPaymentService_ApplyWebhook_ReplayIsIdempotent(t *testing.T) {
	repo := newFakeReconcileRepo(pendingOrder())
	svc := NewPaymentService(repo, &stubGateway{}, false, zap.NewNop())

	payload := WebhookPayload{TxRef: "tx_abc", Status: "success"}

	first, err := svc.ApplyWebhook(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, first.Status)

	second, err := svc.ApplyWebhook(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, second.Status)

	order, _ := repo.GetOrderByID(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusPaid, order.Status)
}

func TestPaymentService_ApplyWebhook_TerminalStatusNotOverwritten(t *testing.T) {
	order := pendingOrder()
	order.Status = models.OrderStatusPaid
	repo := newFakeReconcileRepo(order)
	svc := NewPaymentService(repo, &stubGateway{}, false, zap.NewNop())

	// a late failure report cannot undo a settled payment, and the
	// transition guard skips the write entirely
	result, err := svc.ApplyWebhook(context.Background(), WebhookPayload{TxRef: "tx_abc", Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, result.Status)
	assert.Zero(t, repo.applyCalls)
}

func TestPaymentService_PollAndApply_TerminalNotOverwritten(t *testing.T) {
	order := pendingOrder()
	order.Status = models.OrderStatusCancelled
	repo := newFakeReconcileRepo(order)
	gateway := &stubGateway{verifyStatus: "success"}
	svc := NewPaymentService(repo, gateway, false, zap.NewNop())

	status, err := svc.PollAndApply(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, status)
	assert.Zero(t, repo.applyCalls)
}

func TestPaymentService_PollAndApply(t *testing.T) {
	repo := newFakeReconcileRepo(pendingOrder())
	gateway := &stubGateway{verifyStatus: "success"}
	svc := NewPaymentService(repo, gateway, false, zap.NewNop())

	status, err := svc.PollAndApply(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, status)
	assert.Equal(t, []string{"tx_abc"}, gateway.verified)
}

func TestPaymentService_PollAndApply_OrderNotFound(t *testing.T) {
	svc := NewPaymentService(newFakeReconcileRepo(), &stubGateway{}, false, zap.NewNop())

	_, err := svc.PollAndApply(context.Background(), "order-nope")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestPaymentService_PollAndApply_TxRefMissing(t *testing.T) {
	order := pendingOrder()
	order.TxRef = ""
	svc := NewPaymentService(newFakeReconcileRepo(order), &stubGateway{}, false, zap.NewNop())

	_, err := svc.PollAndApply(context.Background(), "order-1")
	assert.ErrorIs(t, err, models.ErrTxRefMissing)
}

func TestPaymentService_PollAndApply_VerificationFailure(t *testing.T) {
	repo := newFakeReconcileRepo(pendingOrder())
	gateway := &stubGateway{verifyErr: models.NewGatewayError("verify", 500, nil)}
	svc := NewPaymentService(repo, gateway, false, zap.NewNop())

	_, err := svc.PollAndApply(context.Background(), "order-1")
	assert.ErrorIs(t, err, models.ErrPaymentVerification)

	order, _ := repo.GetOrderByID(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

// A webhook and a poll racing with conflicting terminal outcomes must not
// overwrite each other: whichever transition out of PENDING lands first is
// final, and both callers observe the same settled status.
func TestPaymentService_ConcurrentWebhookAndPoll(t *testing.T) {
	for i := 0; i < 50; i++ {
		repo := newFakeReconcileRepo(pendingOrder())
		gateway := &stubGateway{verifyStatus: "failed"}
		svc := NewPaymentService(repo, gateway, false, zap.NewNop())

		var wg sync.WaitGroup
		var webhookStatus, pollStatus string

		wg.Add(2)
		go func() {
			defer wg.Done()
			result, err := svc.ApplyWebhook(context.Background(), WebhookPayload{TxRef: "tx_abc", Status: "success"})
			require.NoError(t, err)
			webhookStatus = result.Status
		}()
		go func() {
			defer wg.Done()
			var err error
			pollStatus, err = svc.PollAndApply(context.Background(), "order-1")
			require.NoError(t, err)
		}()
		wg.Wait()

		order, err := repo.GetOrderByID(context.Background(), "order-1")
		require.NoError(t, err)

		assert.Contains(t, []string{models.OrderStatusPaid, models.OrderStatusCancelled}, order.Status)

		// the loser observed the winner's status, not its own write
		assert.Equal(t, order.Status, webhookStatus)
		assert.Equal(t, order.Status, pollStatus)
	}
}
