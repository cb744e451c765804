package adapters

import (
	"context"
	"fmt"
	"net/http"

	"github.com/assurline/assurline/internal/config"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
)

// Cinetpay normalizes CinetPay notification payloads. CinetPay echoes the
// merchant transaction id (our payment reference) in cpm_trans_id and carries
// its own id in cpm_payid.
type Cinetpay struct {
	siteID        string
	apiKey        string
	baseURL       string
	publicBaseURL string
	client        *http.Client
}

func NewCinetpay(cfg config.Config) *Cinetpay {
	return &Cinetpay{
		siteID:        cfg.CinetpaySiteID,
		apiKey:        cfg.CinetpayAPIKey,
		baseURL:       cfg.CinetpayBaseURL,
		publicBaseURL: cfg.PublicBaseURL,
		client:        &http.Client{Timeout: cfg.GatewayTimeout},
	}
}

func (a *Cinetpay) Name() string { return "cinetpay" }

func (a *Cinetpay) Parse(payload map[string]any) (*paymentdomain.CanonicalEvent, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", paymentdomain.ErrInvalidCallback)
	}
	if a.siteID != "" {
		if got := readString(payload, "cpm_site_id"); got != "" && got != a.siteID {
			return nil, fmt.Errorf("%w: site id mismatch", paymentdomain.ErrInvalidCallback)
		}
	}

	reference := readString(payload, "cpm_trans_id")
	externalID := readString(payload, "cpm_payid")
	if reference == "" && externalID == "" {
		return nil, fmt.Errorf("%w: no cpm_trans_id or cpm_payid", paymentdomain.ErrInvalidCallback)
	}

	var status paymentdomain.EventStatus
	switch readString(payload, "cpm_trans_status") {
	case "ACCEPTED":
		status = paymentdomain.EventSucceeded
	case "REFUSED":
		status = paymentdomain.EventFailed
	case "WAITING", "PENDING":
		status = paymentdomain.EventPending
	case "CANCELED", "CANCELLED":
		status = paymentdomain.EventCancelled
	case "":
		// Older notifications only carry the result code: 00 is success.
		if readString(payload, "cpm_result") == "00" {
			status = paymentdomain.EventSucceeded
		} else {
			status = paymentdomain.EventFailed
		}
	default:
		return nil, fmt.Errorf("%w: unknown cpm_trans_status", paymentdomain.ErrInvalidCallback)
	}

	return &paymentdomain.CanonicalEvent{
		Aggregator:            a.Name(),
		PaymentReference:      reference,
		Status:                status,
		ExternalTransactionID: externalID,
		OperatorID:            readString(payload, "cpm_payment_config", "operator_id"),
		ErrorMessage:          readString(payload, "cpm_error_message"),
		QuoteReference:        readString(payload, "cpm_custom"),
	}, nil
}

// InitiateCheckout creates a hosted checkout session and returns the payment
// page URL. XOF carries no decimals, so the amount is sent as an integer.
func (a *Cinetpay) InitiateCheckout(ctx context.Context, p *paymentdomain.Payment) (string, error) {
	if a.apiKey == "" || a.siteID == "" {
		return "", fmt.Errorf("cinetpay credentials not configured")
	}

	body := map[string]any{
		"apikey":         a.apiKey,
		"site_id":        a.siteID,
		"transaction_id": p.Reference,
		"amount":         p.Amount.IntPart(),
		"currency":       "XOF",
		"description":    "Prime " + p.QuoteReference,
		"custom":         p.QuoteReference,
		"channels":       "ALL",
		"notify_url":     a.publicBaseURL + "/webhooks/payment/cinetpay",
		"return_url":     a.publicBaseURL + "/payments/" + p.Reference + "/return",
	}

	var resp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			PaymentURL string `json:"payment_url"`
		} `json:"data"`
	}
	if err := postJSON(ctx, a.client, a.baseURL+"/payment", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.Code != "201" {
		return "", fmt.Errorf("cinetpay refused checkout: %s %s", resp.Code, resp.Message)
	}
	return resp.Data.PaymentURL, nil
}
