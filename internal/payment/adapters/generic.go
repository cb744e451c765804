package adapters

import (
	"fmt"
	"strings"

	"github.com/assurline/assurline/internal/config"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
)

// Generic handles aggregators that post our own canonical field names. It is
// also the integration point for one-off partners that agree to the shared
// callback contract.
type Generic struct {
	sharedKey string
}

func NewGeneric(cfg config.Config) *Generic {
	return &Generic{sharedKey: cfg.GenericSharedKey}
}

func (a *Generic) Name() string { return "generic" }

func (a *Generic) Parse(payload map[string]any) (*paymentdomain.CanonicalEvent, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", paymentdomain.ErrInvalidCallback)
	}
	if a.sharedKey != "" && readString(payload, "shared_key") != a.sharedKey {
		return nil, fmt.Errorf("%w: shared key mismatch", paymentdomain.ErrInvalidCallback)
	}

	status, err := canonicalStatus(readString(payload, "status", "payment_status"))
	if err != nil {
		return nil, err
	}

	event := &paymentdomain.CanonicalEvent{
		Aggregator:            a.Name(),
		PaymentReference:      readString(payload, "payment_reference", "reference"),
		Status:                status,
		ExternalTransactionID: readString(payload, "transaction_id", "external_transaction_id"),
		OperatorID:            readString(payload, "operator_id"),
		ErrorMessage:          readString(payload, "error_message", "message"),
		QuoteReference:        readString(payload, "quote_reference", "devis_reference"),
	}
	if event.PaymentReference == "" && event.ExternalTransactionID == "" {
		return nil, fmt.Errorf("%w: no reference or transaction id", paymentdomain.ErrInvalidCallback)
	}
	event.Beneficiaries = readBeneficiaries(payload["beneficiaries"])
	return event, nil
}

func canonicalStatus(raw string) (paymentdomain.EventStatus, error) {
	switch strings.ToUpper(raw) {
	case "SUCCEEDED", "SUCCESS", "PAID", "COMPLETED", "ACCEPTED":
		return paymentdomain.EventSucceeded, nil
	case "FAILED", "FAILURE", "ERROR", "REFUSED", "DECLINED":
		return paymentdomain.EventFailed, nil
	case "PENDING", "PROCESSING", "WAITING":
		return paymentdomain.EventPending, nil
	case "CANCELLED", "CANCELED", "EXPIRED":
		return paymentdomain.EventCancelled, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", paymentdomain.ErrInvalidCallback, raw)
	}
}
