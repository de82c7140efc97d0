package service

import (
	"strings"

	"github.com/abenezerw/gebeya/internal/models"
)

// StatusFromGateway maps a gateway-reported payment status to an order
// status. The mapping is total: anything the gateway may send that is not
// a recognized terminal outcome leaves the order PENDING. Both the webhook
// path and the poll path go through this single mapping.
func StatusFromGateway(gatewayStatus string) string {
	switch strings.ToLower(gatewayStatus) {
	case "success":
		return models.OrderStatusPaid
	case "failed":
		return models.OrderStatusCancelled
	default:
		return models.OrderStatusPending
	}
}
