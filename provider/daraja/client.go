// Package daraja implements the mobile-money B2C provider variant: an OAuth
// client-credentials token exchange followed by a single signed payment
// request. Acceptance is synchronous (ResponseCode 0); final settlement
// arrives via the result and timeout callbacks.
package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/clintonochieng072-gif/affiliate-settlement/provider"
)

const (
	// SandboxBaseURL is the Safaricom sandbox endpoint.
	SandboxBaseURL = "https://sandbox.safaricom.co.ke"
	// LiveBaseURL is the Safaricom production endpoint.
	LiveBaseURL = "https://api.safaricom.co.ke"

	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	b2cPath   = "/mpesa/b2c/v3/paymentrequest"

	defaultCommandID = "BusinessPayment"
	defaultOccasion  = "SalesAgentWithdrawal"
)

var (
	intlPattern  = regexp.MustCompile(`^254[17]\d{8}$`)
	localPattern = regexp.MustCompile(`^0[17]\d{8}$`)
	barePattern  = regexp.MustCompile(`^[17]\d{8}$`)
)

// Config captures the operator identity and callback endpoints for the B2C
// gateway.
type Config struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	Shortcode          string
	InitiatorName      string
	SecurityCredential string
	CommandID          string
	ResultURL          string
	TimeoutURL         string
}

// Client drives the Daraja B2C payment API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient constructs a client with sane defaults.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.CommandID) == "" {
		cfg.CommandID = defaultCommandID
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 20 * time.Second},
	}
}

// Name implements provider.Provider.
func (c *Client) Name() string { return "daraja" }

// NormalizeDestination converts the cleaned number to the international
// 254XXXXXXXXX format the B2C API requires.
func (c *Client) NormalizeDestination(raw string) (string, error) {
	switch {
	case intlPattern.MatchString(raw):
		return raw, nil
	case localPattern.MatchString(raw):
		return "254" + raw[1:], nil
	case barePattern.MatchString(raw):
		return "254" + raw, nil
	default:
		return raw, nil
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ErrorMessage string `json:"errorMessage"`
	ErrorDesc    string `json:"error_description"`
}

type b2cRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   int64  `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occasion                 string `json:"Occasion"`
}

type b2cResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
	ErrorMessage             string `json:"errorMessage"`
}

// InitiateTransfer exchanges credentials for a token and submits the B2C
// payment request. The amount is sent in whole currency units as the API
// requires.
func (c *Client) InitiateTransfer(ctx context.Context, req provider.TransferRequest) (*provider.TransferResult, error) {
	if c == nil || c.cfg.ConsumerKey == "" || c.cfg.SecurityCredential == "" {
		return nil, provider.ErrNotConfigured
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(b2cRequest{
		OriginatorConversationID: req.Reference,
		InitiatorName:            c.cfg.InitiatorName,
		SecurityCredential:       c.cfg.SecurityCredential,
		CommandID:                c.cfg.CommandID,
		Amount:                   req.Amount.Round(0).IntPart(),
		PartyA:                   c.cfg.Shortcode,
		PartyB:                   req.Destination,
		Remarks:                  req.Remarks,
		QueueTimeOutURL:          c.cfg.TimeoutURL,
		ResultURL:                c.cfg.ResultURL,
		Occasion:                 defaultOccasion,
	})
	if err != nil {
		return nil, err
	}

	status, body, err := provider.Do(ctx, c.http, http.MethodPost, c.cfg.BaseURL+b2cPath, payload, map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	})
	if err != nil {
		return nil, err
	}

	var resp b2cResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("daraja: decode B2C response (status=%d): %w", status, err)
	}
	if status >= http.StatusInternalServerError {
		return nil, fmt.Errorf("daraja: server error: status=%d description=%s", status, resp.ResponseDescription)
	}

	accepted := status < http.StatusMultipleChoices && resp.ResponseCode == "0"
	result := &provider.TransferResult{
		Accepted:    accepted,
		ProviderRef: resp.ConversationID,
		Raw:         body,
	}
	if !accepted {
		reason := strings.TrimSpace(resp.ResponseDescription)
		if reason == "" {
			reason = strings.TrimSpace(resp.ErrorMessage)
		}
		if reason == "" {
			reason = fmt.Sprintf("payment request declined (status=%d)", status)
		}
		result.RejectionReason = reason
		return result, &provider.RejectionError{Reason: reason}
	}
	return result, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	status, body, err := provider.Do(ctx, c.http, http.MethodGet, c.cfg.BaseURL+tokenPath, nil, map[string]string{
		"Authorization": "Basic " + credentials,
	})
	if err != nil {
		return "", err
	}
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("daraja: decode token response (status=%d): %w", status, err)
	}
	if status >= http.StatusMultipleChoices || resp.AccessToken == "" {
		reason := strings.TrimSpace(resp.ErrorMessage)
		if reason == "" {
			reason = strings.TrimSpace(resp.ErrorDesc)
		}
		if reason == "" {
			reason = fmt.Sprintf("token exchange failed (status=%d)", status)
		}
		return "", fmt.Errorf("daraja: %s", reason)
	}
	return resp.AccessToken, nil
}
