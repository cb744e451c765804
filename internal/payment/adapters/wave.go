package adapters

import (
	"fmt"

	"github.com/assurline/assurline/internal/config"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
)

// Wave normalizes Wave checkout webhook events. The session data nests under
// "data"; our payment reference is the client_reference we set when creating
// the session.
type Wave struct{}

func NewWave(config.Config) *Wave {
	return &Wave{}
}

func (a *Wave) Name() string { return "wave" }

func (a *Wave) Parse(payload map[string]any) (*paymentdomain.CanonicalEvent, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", paymentdomain.ErrInvalidCallback)
	}

	data := readMap(payload, "data")
	if data == nil {
		return nil, fmt.Errorf("%w: missing data object", paymentdomain.ErrInvalidCallback)
	}

	var status paymentdomain.EventStatus
	switch readString(data, "payment_status", "status") {
	case "succeeded", "complete", "completed":
		status = paymentdomain.EventSucceeded
	case "failed":
		status = paymentdomain.EventFailed
	case "processing", "pending":
		status = paymentdomain.EventPending
	case "cancelled", "canceled", "expired":
		status = paymentdomain.EventCancelled
	default:
		return nil, fmt.Errorf("%w: unknown payment_status", paymentdomain.ErrInvalidCallback)
	}

	event := &paymentdomain.CanonicalEvent{
		Aggregator:            a.Name(),
		PaymentReference:      readString(data, "client_reference"),
		Status:                status,
		ExternalTransactionID: readString(data, "transaction_id", "id"),
	}
	if lastErr := readMap(data, "last_payment_error"); lastErr != nil {
		event.ErrorMessage = readString(lastErr, "message")
	}
	if event.PaymentReference == "" && event.ExternalTransactionID == "" {
		return nil, fmt.Errorf("%w: no client_reference or transaction id", paymentdomain.ErrInvalidCallback)
	}
	return event, nil
}
