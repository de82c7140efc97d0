package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/abenezerw/gebeya/internal/chapa"
	"github.com/abenezerw/gebeya/internal/models"
	"github.com/abenezerw/gebeya/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const signatureHeader = "Chapa-Signature"

// PaymentService is interface for payment reconciliation
type PaymentService interface {
	// ApplyWebhook applies a webhook-delivered payment outcome
	ApplyWebhook(ctx context.Context, payload service.WebhookPayload) (*service.ReconcileResult, error)
	// PollAndApply verifies payment with the gateway and applies the result
	PollAndApply(ctx context.Context, orderID string) (string, error)
}

// PaymentHandler represents HTTP handler for payment-related requests
type PaymentHandler struct {
	svc           PaymentService
	webhookSecret string
	skipSignature bool
	logger        *zap.Logger
}

// NewPaymentHandler creates new PaymentHandler instance
func NewPaymentHandler(svc PaymentService, webhookSecret string, skipSignature bool, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		svc:           svc,
		webhookSecret: webhookSecret,
		skipSignature: skipSignature,
		logger:        logger,
	}
}

type webhookResponse struct {
	Received bool   `json:"received"`
	OrderID  string `json:"orderId"`
	Status   string `json:"status"`
}

// ChapaWebhook receives asynchronous payment outcome notifications.
// The signature is checked against the raw body bytes before parsing.
// 200 — outcome applied;
// 400 — malformed payload, no state change;
// 401 — signature mismatch, no state change;
// 404 — no order for the delivered tx_ref;
// 502 — re-verification against the gateway failed.
func (ph *PaymentHandler) ChapaWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil || len(body) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if !ph.skipSignature {
			if !chapa.VerifySignature(body, r.Header.Get(signatureHeader), ph.webhookSecret) {
				ph.logger.Warn("webhook rejected", zap.String("remote", r.RemoteAddr))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		var payload service.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		result, err := ph.svc.ApplyWebhook(r.Context(), payload)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrInvalidWebhook):
				http.Error(w, "invalid webhook payload", http.StatusBadRequest)
			case errors.Is(err, models.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, models.ErrPaymentVerification):
				http.Error(w, "payment verification failed", http.StatusBadGateway)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(webhookResponse{
			Received: true,
			OrderID:  result.OrderID,
			Status:   result.Status,
		}); err != nil {
			return
		}
	}
}

type verifyResponse struct {
	Status string `json:"status"`
}

// VerifyPayment verifies an order's payment with the gateway on demand
// 200 — status returned;
// 404 — order not found;
// 500 — transaction reference missing;
// 502 — verification failed.
func (ph *PaymentHandler) VerifyPayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")
		if orderID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		status, err := ph.svc.PollAndApply(r.Context(), orderID)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, models.ErrTxRefMissing):
				http.Error(w, "internal error", http.StatusInternalServerError)
			case errors.Is(err, models.ErrPaymentVerification):
				http.Error(w, "payment verification failed", http.StatusBadGateway)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(verifyResponse{Status: status}); err != nil {
			return
		}
	}
}
