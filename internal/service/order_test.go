package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abenezerw/gebeya/internal/chapa"
	"github.com/abenezerw/gebeya/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubOrderRepo struct {
	mu        sync.Mutex
	created   []*models.Order
	createErr error

	orders map[string]*models.Order

	setURLOrderID string
	setURLValue   string
	setURLErr     error

	pending []models.Order
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{orders: map[string]*models.Order{}}
}

func (s *stubOrderRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, order)
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepo) GetOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *stubOrderRepo) GetOrdersByBuyerID(ctx context.Context, buyerID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, order := range s.orders {
		if order.BuyerID == buyerID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubOrderRepo) SetPaymentURL(ctx context.Context, orderID, paymentURL, currency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setURLErr != nil {
		return s.setURLErr
	}
	s.setURLOrderID = orderID
	s.setURLValue = paymentURL
	if order, ok := s.orders[orderID]; ok {
		order.PaymentURL = &paymentURL
		order.Currency = currency
	}
	return nil
}

func (s *stubOrderRepo) GetPendingOrders(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	return s.pending, nil
}

type stubCartRepo struct {
	items []models.CartItem
	err   error
}

func (s *stubCartRepo) GetCartItems(ctx context.Context, buyerID string) ([]models.CartItem, error) {
	return s.items, s.err
}

type stubUserRepo struct {
	user *models.User
	err  error
}

func (s *stubUserRepo) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

type stubGateway struct {
	mu          sync.Mutex
	initiated   []chapa.InitiatePaymentRequest
	initiateErr error
	checkoutURL string

	verifyStatus string
	verifyErr    error
	verified     []string
}

func (s *stubGateway) InitiatePayment(ctx context.Context, req chapa.InitiatePaymentRequest) (*chapa.InitiatePaymentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiated = append(s.initiated, req)
	if s.initiateErr != nil {
		return nil, s.initiateErr
	}
	return &chapa.InitiatePaymentResponse{
		TxRef:       req.TxRef,
		CheckoutURL: s.checkoutURL,
		Status:      "success",
	}, nil
}

func (s *stubGateway) VerifyPayment(ctx context.Context, txRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = append(s.verified, txRef)
	return s.verifyStatus, s.verifyErr
}

func testCart() []models.CartItem {
	return []models.CartItem{
		{ProductID: "prod-a", Quantity: 2, ProductPrice: 100},
		{ProductID: "prod-b", Quantity: 1, ProductPrice: 50},
	}
}

func TestOrderService_CreateOrderFromCart(t *testing.T) {
	repo := newStubOrderRepo()
	cart := &stubCartRepo{items: testCart()}
	users := &stubUserRepo{user: &models.User{ID: "buyer-1", Email: "buyer@example.com"}}
	gateway := &stubGateway{checkoutURL: "https://checkout.chapa.co/pay/abc"}

	svc := NewOrderService(repo, cart, users, gateway, "ETB", zap.NewNop())

	result, err := svc.CreateOrderFromCart(context.Background(), "buyer-1")
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	order := repo.created[0]

	// total is the snapshot sum, fixed at creation time
	assert.Equal(t, 250.0, order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "ETB", order.Currency)

	require.Len(t, order.Items, 2)
	assert.Equal(t, 100.0, order.Items[0].PriceAtOrder)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, 50.0, order.Items[1].PriceAtOrder)
	assert.Equal(t, 1, order.Items[1].Quantity)

	// tx_ref format tx_<uuid>
	require.True(t, strings.HasPrefix(order.TxRef, "tx_"))
	_, err = uuid.Parse(strings.TrimPrefix(order.TxRef, "tx_"))
	require.NoError(t, err)

	// gateway observed total amount, buyer email and the order's tx_ref
	require.Len(t, gateway.initiated, 1)
	assert.Equal(t, 250.0, gateway.initiated[0].Amount)
	assert.Equal(t, "buyer@example.com", gateway.initiated[0].Email)
	assert.Equal(t, order.TxRef, gateway.initiated[0].TxRef)

	assert.Equal(t, order.ID, repo.setURLOrderID)
	assert.Equal(t, "https://checkout.chapa.co/pay/abc", repo.setURLValue)

	assert.Equal(t, order.ID, result.OrderID)
	assert.Equal(t, "https://checkout.chapa.co/pay/abc", result.PaymentURL)
}

func TestOrderService_CreateOrderFromCart_EmptyCart(t *testing.T) {
	repo := newStubOrderRepo()
	users := &stubUserRepo{user: &models.User{ID: "buyer-1", Email: "buyer@example.com"}}
	gateway := &stubGateway{checkoutURL: "url"}

	svc := NewOrderService(repo, &stubCartRepo{}, users, gateway, "ETB", zap.NewNop())

	_, err := svc.CreateOrderFromCart(context.Background(), "buyer-1")
	assert.ErrorIs(t, err, models.ErrCartEmpty)
	assert.Empty(t, repo.created)
	assert.Empty(t, gateway.initiated)
}

func TestOrderService_CreateOrderFromCart_BuyerNotFound(t *testing.T) {
	repo := newStubOrderRepo()
	cart := &stubCartRepo{items: testCart()}
	users := &stubUserRepo{err: models.ErrUserNotFound}

	svc := NewOrderService(repo, cart, users, &stubGateway{}, "ETB", zap.NewNop())

	_, err := svc.CreateOrderFromCart(context.Background(), "no-such-buyer")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
	assert.Empty(t, repo.created)
}

func TestOrderService_CreateOrderFromCart_MissingEmail(t *testing.T) {
	repo := newStubOrderRepo()
	cart := &stubCartRepo{items: testCart()}
	users := &stubUserRepo{user: &models.User{ID: "buyer-1"}}

	svc := NewOrderService(repo, cart, users, &stubGateway{}, "ETB", zap.NewNop())

	_, err := svc.CreateOrderFromCart(context.Background(), "buyer-1")
	assert.ErrorIs(t, err, models.ErrInvalidEmail)
	assert.Empty(t, repo.created)
}

func TestOrderService_CreateOrderFromCart_InsufficientStock(t *testing.T) {
	repo := newStubOrderRepo()
	repo.createErr = models.ErrInsufficientStock
	cart := &stubCartRepo{items: testCart()}
	users := &stubUserRepo{user: &models.User{ID: "buyer-1", Email: "buyer@example.com"}}
	gateway := &stubGateway{checkoutURL: "url"}

	svc := NewOrderService(repo, cart, users, gateway, "ETB", zap.NewNop())

	_, err := svc.CreateOrderFromCart(context.Background(), "buyer-1")
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Empty(t, gateway.initiated, "gateway must not be contacted when the atomic unit aborts")
}

func TestOrderService_CreateOrderFromCart_GatewayFailure(t *testing.T) {
	repo := newStubOrderRepo()
	cart := &stubCartRepo{items: testCart()}
	users := &stubUserRepo{user: &models.User{ID: "buyer-1", Email: "buyer@example.com"}}
	gateway := &stubGateway{initiateErr: models.NewGatewayError("initiate", 503, nil)}

	svc := NewOrderService(repo, cart, users, gateway, "ETB", zap.NewNop())

	_, err := svc.CreateOrderFromCart(context.Background(), "buyer-1")
	assert.ErrorIs(t, err, models.ErrPaymentInit)

	// the committed order survives the gateway failure, PENDING and URL-less
	require.Len(t, repo.created, 1)
	assert.Equal(t, models.OrderStatusPending, repo.created[0].Status)
	assert.Nil(t, repo.created[0].PaymentURL)
	assert.Empty(t, repo.setURLOrderID)
}

func TestOrderService_CreateOrderFromCart_UniqueTxRefs(t *testing.T) {
	repo := newStubOrderRepo()
	cart := &stubCartRepo{items: testCart()}
	users := &stubUserRepo{user: &models.User{ID: "buyer-1", Email: "buyer@example.com"}}
	gateway := &stubGateway{checkoutURL: "url"}

	svc := NewOrderService(repo, cart, users, gateway, "ETB", zap.NewNop())

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrderFromCart(context.Background(), "buyer-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, repo.created, n)
	seen := map[string]bool{}
	for _, order := range repo.created {
		assert.True(t, strings.HasPrefix(order.TxRef, "tx_"))
		assert.False(t, seen[order.TxRef], "duplicate tx_ref %s", order.TxRef)
		seen[order.TxRef] = true
	}
}

func TestOrderService_RetryPaymentInit(t *testing.T) {
	repo := newStubOrderRepo()
	order := &models.Order{
		ID:          "order-1",
		BuyerID:     "buyer-1",
		TxRef:       "tx_existing",
		TotalAmount: 250,
		Currency:    "ETB",
		Status:      models.OrderStatusPending,
	}
	repo.orders[order.ID] = order

	users := &stubUserRepo{user: &models.User{ID: "buyer-1", Email: "buyer@example.com"}}
	gateway := &stubGateway{checkoutURL: "https://checkout.chapa.co/pay/retry"}

	svc := NewOrderService(repo, &stubCartRepo{}, users, gateway, "ETB", zap.NewNop())

	url, err := svc.RetryPaymentInit(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.chapa.co/pay/retry", url)

	// the stored tx_ref is reused, never regenerated
	require.Len(t, gateway.initiated, 1)
	assert.Equal(t, "tx_existing", gateway.initiated[0].TxRef)
	assert.Equal(t, 250.0, gateway.initiated[0].Amount)
}

func TestOrderService_RetryPaymentInit_NotPending(t *testing.T) {
	repo := newStubOrderRepo()
	repo.orders["order-1"] = &models.Order{ID: "order-1", Status: models.OrderStatusPaid}

	svc := NewOrderService(repo, &stubCartRepo{}, &stubUserRepo{}, &stubGateway{}, "ETB", zap.NewNop())

	_, err := svc.RetryPaymentInit(context.Background(), "order-1")
	assert.ErrorIs(t, err, models.ErrPaymentNotPending)
}
