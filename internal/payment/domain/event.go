package domain

type EventStatus string

const (
	EventSucceeded EventStatus = "SUCCEEDED"
	EventFailed    EventStatus = "FAILED"
	EventPending   EventStatus = "PENDING"
	EventCancelled EventStatus = "CANCELLED"
)

// BeneficiaryData is beneficiary metadata some aggregators embed in their
// callbacks. It is attached to the contract at issuance, never to the quote.
type BeneficiaryData struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Rank         int    `json:"rank"`
}

// CanonicalEvent is the aggregator-agnostic form of a payment callback.
// Every adapter, whatever the wire shape, produces exactly this.
type CanonicalEvent struct {
	Aggregator            string            `json:"aggregator"`
	PaymentReference      string            `json:"payment_reference"`
	Status                EventStatus       `json:"status"`
	ExternalTransactionID string            `json:"external_transaction_id"`
	OperatorID            string            `json:"operator_id,omitempty"`
	ErrorMessage          string            `json:"error_message,omitempty"`
	QuoteReference        string            `json:"quote_reference,omitempty"`
	Beneficiaries         []BeneficiaryData `json:"beneficiaries,omitempty"`
}
