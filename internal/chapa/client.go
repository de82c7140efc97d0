package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/abenezerw/gebeya/internal/models"
	"github.com/go-playground/validator/v10"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 2
	retryDelay     = 500 * time.Millisecond
)

// Client talks to the Chapa payment gateway
type Client struct {
	client      *http.Client
	baseURL     string
	secretKey   string
	callbackURL string
	currency    string
	validate    *validator.Validate
}

// NewClient creates new Client instance
func NewClient(baseURL, secretKey, callbackBaseURL, currency string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL:     baseURL,
		secretKey:   secretKey,
		callbackURL: callbackBaseURL + "/api/payments/verify",
		currency:    currency,
		validate:    validator.New(),
	}
}

// InitiatePaymentRequest is input to InitiatePayment
type InitiatePaymentRequest struct {
	Amount  float64
	Email   string
	OrderID string
	TxRef   string
}

// InitiatePaymentResponse carries the gateway checkout handoff
type InitiatePaymentResponse struct {
	TxRef       string
	CheckoutURL string
	Status      string
}

type initializeBody struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Email       string  `json:"email"`
	TxRef       string  `json:"tx_ref"`
	OrderID     string  `json:"order_id"`
	CallbackURL string  `json:"callback_url"`
}

type initializeResponse struct {
	Status string `json:"status"`
	Data   struct {
		TxRef       string `json:"tx_ref"`
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

type verifyResponse struct {
	Status string `json:"status"`
	Data   struct {
		Status string `json:"status"`
	} `json:"data"`
}

// InitiatePayment registers the transaction with the gateway and returns
// the hosted checkout URL the buyer is redirected to. The order's tx_ref
// is passed to the gateway verbatim so webhook deliveries and manual
// verification key on the same reference.
func (c *Client) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	if err := c.validate.Var(req.Email, "required,email"); err != nil {
		return nil, models.ErrInvalidEmail
	}

	body, err := json.Marshal(initializeBody{
		Amount:      req.Amount,
		Currency:    c.currency,
		Email:       req.Email,
		TxRef:       req.TxRef,
		OrderID:     req.OrderID,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(c.baseURL, "transaction", "initialize")
	if err != nil {
		return nil, err
	}

	resp, err := c.doWithRetry(ctx, "initiate", http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	initResp := initializeResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&initResp); err != nil {
		return nil, models.NewGatewayError("initiate", resp.StatusCode, err)
	}
	if initResp.Data.CheckoutURL == "" {
		return nil, models.NewGatewayError("initiate", resp.StatusCode, errors.New("missing checkout_url in response"))
	}

	return &InitiatePaymentResponse{
		TxRef:       initResp.Data.TxRef,
		CheckoutURL: initResp.Data.CheckoutURL,
		Status:      initResp.Status,
	}, nil
}

// VerifyPayment returns the gateway-reported status for the reference
func (c *Client) VerifyPayment(ctx context.Context, txRef string) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "transaction", "verify", txRef)
	if err != nil {
		return "", err
	}

	resp, err := c.doWithRetry(ctx, "verify", http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	verResp := verifyResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&verResp); err != nil {
		return "", models.NewGatewayError("verify", resp.StatusCode, err)
	}

	// the top-level status only acknowledges the API request; the payment
	// outcome lives in data.status and must be present
	if verResp.Data.Status == "" {
		return "", models.NewGatewayError("verify", resp.StatusCode, errors.New("missing status in response"))
	}
	return verResp.Data.Status, nil
}

// doWithRetry issues the request with bearer auth, retrying transport
// errors and 5xx responses a bounded number of times. 4xx responses are
// terminal and never retried.
func (c *Client) doWithRetry(ctx context.Context, op, method, endpoint string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryDelay):
			}
		}

		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = models.NewGatewayError(op, 0, err)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = models.NewGatewayError(op, resp.StatusCode, nil)
			continue
		default:
			resp.Body.Close()
			return nil, models.NewGatewayError(op, resp.StatusCode, nil)
		}
	}

	return nil, lastErr
}
