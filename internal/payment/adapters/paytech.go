package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/assurline/assurline/internal/config"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
)

// Paytech normalizes PayTech IPN events. The merchant order reference (our
// payment reference) travels in ref_command; merchant metadata comes back as
// a JSON-encoded string in custom_field.
type Paytech struct {
	apiKey        string
	apiSecret     string
	baseURL       string
	publicBaseURL string
	client        *http.Client
}

func NewPaytech(cfg config.Config) *Paytech {
	return &Paytech{
		apiKey:        cfg.PaytechAPIKey,
		apiSecret:     cfg.PaytechAPISecret,
		baseURL:       cfg.PaytechBaseURL,
		publicBaseURL: cfg.PublicBaseURL,
		client:        &http.Client{Timeout: cfg.GatewayTimeout},
	}
}

func (a *Paytech) Name() string { return "paytech" }

func (a *Paytech) Parse(payload map[string]any) (*paymentdomain.CanonicalEvent, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", paymentdomain.ErrInvalidCallback)
	}

	var status paymentdomain.EventStatus
	switch readString(payload, "type_event") {
	case "sale_complete":
		status = paymentdomain.EventSucceeded
	case "sale_canceled", "sale_cancelled":
		status = paymentdomain.EventCancelled
	case "sale_error", "sale_failed":
		status = paymentdomain.EventFailed
	case "sale_pending":
		status = paymentdomain.EventPending
	default:
		return nil, fmt.Errorf("%w: unknown type_event", paymentdomain.ErrInvalidCallback)
	}

	event := &paymentdomain.CanonicalEvent{
		Aggregator:            a.Name(),
		PaymentReference:      readString(payload, "ref_command"),
		Status:                status,
		ExternalTransactionID: readString(payload, "token"),
		OperatorID:            readString(payload, "payment_method"),
	}
	if event.PaymentReference == "" && event.ExternalTransactionID == "" {
		return nil, fmt.Errorf("%w: no ref_command or token", paymentdomain.ErrInvalidCallback)
	}

	if raw := readString(payload, "custom_field"); raw != "" {
		var custom map[string]any
		if err := json.Unmarshal([]byte(raw), &custom); err == nil {
			event.QuoteReference = readString(custom, "devis_reference", "quote_reference")
			event.Beneficiaries = readBeneficiaries(custom["beneficiaries"])
		}
	}
	return event, nil
}

// InitiateCheckout requests a hosted payment page. The quote reference rides
// along in custom_field so the IPN can correlate even without ref_command.
func (a *Paytech) InitiateCheckout(ctx context.Context, p *paymentdomain.Payment) (string, error) {
	if a.apiKey == "" || a.apiSecret == "" {
		return "", fmt.Errorf("paytech credentials not configured")
	}

	custom, err := json.Marshal(map[string]any{"devis_reference": p.QuoteReference})
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"item_name":    "Prime " + p.QuoteReference,
		"item_price":   p.Amount.IntPart(),
		"ref_command":  p.Reference,
		"command_name": "Paiement prime " + p.QuoteReference,
		"currency":     "XOF",
		"ipn_url":      a.publicBaseURL + "/webhooks/payment/paytech",
		"success_url":  a.publicBaseURL + "/payments/" + p.Reference + "/return",
		"cancel_url":   a.publicBaseURL + "/payments/" + p.Reference + "/cancel",
		"custom_field": string(custom),
	}
	headers := map[string]string{
		"API_KEY":    a.apiKey,
		"API_SECRET": a.apiSecret,
	}

	var resp struct {
		Success     int    `json:"success"`
		Token       string `json:"token"`
		RedirectURL string `json:"redirect_url"`
		Message     string `json:"message"`
	}
	if err := postJSON(ctx, a.client, a.baseURL+"/payment/request-payment", headers, body, &resp); err != nil {
		return "", err
	}
	if resp.Success != 1 || resp.RedirectURL == "" {
		return "", fmt.Errorf("paytech refused checkout: %s", resp.Message)
	}
	return resp.RedirectURL, nil
}
