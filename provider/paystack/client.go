// Package paystack implements the hosted-transfer provider variant: a
// transfer recipient is created for the destination number, then a transfer
// is initiated against that recipient. Acceptance is synchronous; final
// settlement arrives later via a signed webhook.
package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clintonochieng072-gif/affiliate-settlement/provider"
)

const defaultBaseURL = "https://api.paystack.co"

// Paystack amounts are expressed in subunits of the currency.
var subunitFactor = decimal.NewFromInt(100)

var (
	intlPattern  = regexp.MustCompile(`^254[17]\d{8}$`)
	localPattern = regexp.MustCompile(`^0[17]\d{8}$`)
	barePattern  = regexp.MustCompile(`^[17]\d{8}$`)
)

// Config captures the credentials and endpoints for the Paystack API.
type Config struct {
	BaseURL   string
	SecretKey string
}

// Client drives the Paystack transfer API.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient constructs a client with sane defaults.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL:   base,
		secretKey: strings.TrimSpace(cfg.SecretKey),
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements provider.Provider.
func (c *Client) Name() string { return "paystack" }

// NormalizeDestination converts the cleaned number to the local 07XX/01XX
// format Paystack requires for Kenyan mobile money; international input is
// converted, anything else is passed through for provider-side validation.
func (c *Client) NormalizeDestination(raw string) (string, error) {
	switch {
	case localPattern.MatchString(raw):
		return raw, nil
	case intlPattern.MatchString(raw):
		return "0" + raw[3:], nil
	case barePattern.MatchString(raw):
		return "0" + raw, nil
	default:
		// Not a recognisably Kenyan number; the provider performs final
		// validation for mobile-money compatibility.
		return raw, nil
	}
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type recipientData struct {
	RecipientCode string `json:"recipient_code"`
}

type transferData struct {
	TransferCode string `json:"transfer_code"`
}

type recipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

type transferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

// InitiateTransfer creates a mobile-money recipient for the destination, then
// initiates a transfer of the payout amount. Amounts are converted to
// subunits. Envelope status=false is a terminal rejection.
func (c *Client) InitiateTransfer(ctx context.Context, req provider.TransferRequest) (*provider.TransferResult, error) {
	if c == nil || c.secretKey == "" {
		return nil, provider.ErrNotConfigured
	}

	recipient, raw, err := c.createRecipient(ctx, req)
	if err != nil {
		return resultFromErr(raw, err)
	}

	payload, err := json.Marshal(transferRequest{
		Source:    "balance",
		Amount:    req.Amount.Mul(subunitFactor).IntPart(),
		Recipient: recipient,
		Reason:    req.Remarks,
		Reference: req.Reference,
	})
	if err != nil {
		return nil, err
	}
	envelope, raw, err := c.call(ctx, http.MethodPost, "/transfer", payload)
	if err != nil {
		return resultFromErr(raw, err)
	}
	var data transferData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack: decode transfer data: %w", err)
	}
	if strings.TrimSpace(data.TransferCode) == "" {
		return nil, fmt.Errorf("paystack: transfer accepted without transfer code")
	}
	return &provider.TransferResult{
		Accepted:    true,
		ProviderRef: data.TransferCode,
		Raw:         raw,
	}, nil
}

func (c *Client) createRecipient(ctx context.Context, req provider.TransferRequest) (string, json.RawMessage, error) {
	payload, err := json.Marshal(recipientRequest{
		Type:          "mobile_money",
		Name:          req.RecipientName,
		AccountNumber: req.Destination,
		BankCode:      "MPESA",
		Currency:      "KES",
	})
	if err != nil {
		return "", nil, err
	}
	envelope, raw, err := c.call(ctx, http.MethodPost, "/transferrecipient", payload)
	if err != nil {
		return "", raw, err
	}
	var data recipientData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return "", raw, fmt.Errorf("paystack: decode recipient data: %w", err)
	}
	if strings.TrimSpace(data.RecipientCode) == "" {
		return "", raw, &provider.RejectionError{Reason: "recipient created without recipient code"}
	}
	return data.RecipientCode, raw, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte) (*apiEnvelope, json.RawMessage, error) {
	status, body, err := provider.Do(ctx, c.http, method, c.baseURL+path, payload, map[string]string{
		"Authorization": "Bearer " + c.secretKey,
		"Content-Type":  "application/json",
	})
	if err != nil {
		return nil, nil, err
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, body, fmt.Errorf("paystack: decode response (status=%d): %w", status, err)
	}
	if status >= http.StatusInternalServerError {
		return nil, body, fmt.Errorf("paystack: server error: status=%d message=%s", status, envelope.Message)
	}
	if !envelope.Status {
		reason := strings.TrimSpace(envelope.Message)
		if reason == "" {
			reason = fmt.Sprintf("request declined (status=%d)", status)
		}
		return nil, body, &provider.RejectionError{Reason: reason}
	}
	return &envelope, body, nil
}

func resultFromErr(raw json.RawMessage, err error) (*provider.TransferResult, error) {
	var rejection *provider.RejectionError
	if errors.As(err, &rejection) {
		return &provider.TransferResult{
			Accepted:        false,
			RejectionReason: rejection.Reason,
			Raw:             raw,
		}, err
	}
	return nil, err
}
