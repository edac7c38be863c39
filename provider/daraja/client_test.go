package daraja

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clintonochieng072-gif/affiliate-settlement/provider"
)

func TestNormalizeDestination(t *testing.T) {
	c := NewClient(Config{})
	cases := map[string]string{
		"0712345678":   "254712345678",
		"0112345678":   "254112345678",
		"254712345678": "254712345678",
		"712345678":    "254712345678",
	}
	for input, want := range cases {
		got, err := c.NormalizeDestination(input)
		if err != nil {
			t.Fatalf("%s: %v", input, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s got %s", input, want, got)
		}
	}
}

func newB2CServer(t *testing.T, responseCode string, captured *b2cRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Basic ") {
				t.Errorf("expected basic auth, got %q", auth)
			}
			if r.URL.Query().Get("grant_type") != "client_credentials" {
				t.Errorf("missing grant_type query parameter")
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "token-123", "expires_in": "3599"})
		case "/mpesa/b2c/v3/paymentrequest":
			if r.Header.Get("Authorization") != "Bearer token-123" {
				t.Errorf("missing bearer token")
			}
			if captured != nil {
				if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
					t.Errorf("decode B2C payload: %v", err)
				}
			}
			body := map[string]string{
				"ConversationID":           "AG_20260901_abc",
				"OriginatorConversationID": "ignored",
				"ResponseCode":             responseCode,
				"ResponseDescription":      "Accept the service request successfully.",
			}
			if responseCode != "0" {
				body["ResponseDescription"] = "The initiator information is invalid."
				w.WriteHeader(http.StatusBadRequest)
			}
			_ = json.NewEncoder(w).Encode(body)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:            baseURL,
		ConsumerKey:        "key",
		ConsumerSecret:     "secret",
		Shortcode:          "600999",
		InitiatorName:      "testapi",
		SecurityCredential: "encrypted",
		ResultURL:          "https://settlement.example.com/webhooks/daraja/result",
		TimeoutURL:         "https://settlement.example.com/webhooks/daraja/timeout",
	}
}

func TestInitiateTransferAccepted(t *testing.T) {
	var payload b2cRequest
	srv := newB2CServer(t, "0", &payload)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	result, err := c.InitiateTransfer(context.Background(), provider.TransferRequest{
		Amount:      decimal.NewFromInt(110),
		Destination: "254712345678",
		Reference:   "6e9cdd2a-63c5-4f6e-a6c8-0a40f9b7a001",
		Remarks:     "Sales earnings withdrawal - 1 blocks",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if !result.Accepted || result.ProviderRef != "AG_20260901_abc" {
		t.Fatalf("unexpected result %+v", result)
	}

	if payload.OriginatorConversationID != "6e9cdd2a-63c5-4f6e-a6c8-0a40f9b7a001" {
		t.Fatalf("expected withdrawal ID as originator conversation ID, got %s", payload.OriginatorConversationID)
	}
	if payload.Amount != 110 {
		t.Fatalf("expected whole-unit amount 110, got %d", payload.Amount)
	}
	if payload.PartyA != "600999" || payload.PartyB != "254712345678" {
		t.Fatalf("unexpected parties %s -> %s", payload.PartyA, payload.PartyB)
	}
	if payload.CommandID != "BusinessPayment" {
		t.Fatalf("expected default command ID, got %s", payload.CommandID)
	}
	if payload.ResultURL == "" || payload.QueueTimeOutURL == "" {
		t.Fatal("callback URLs must be populated")
	}
}

func TestInitiateTransferDeclined(t *testing.T) {
	srv := newB2CServer(t, "2001", nil)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	result, err := c.InitiateTransfer(context.Background(), provider.TransferRequest{
		Amount:      decimal.NewFromInt(110),
		Destination: "254712345678",
		Reference:   "ref-1",
	})
	var rejection *provider.RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection error got %v", err)
	}
	if rejection.Reason != "The initiator information is invalid." {
		t.Fatalf("expected provider description surfaced, got %q", rejection.Reason)
	}
	if result == nil || result.Accepted {
		t.Fatalf("expected unaccepted result, got %+v", result)
	}
}

func TestInitiateTransferUnconfigured(t *testing.T) {
	c := NewClient(Config{})
	if _, err := c.InitiateTransfer(context.Background(), provider.TransferRequest{}); !errors.Is(err, provider.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured got %v", err)
	}
}

func TestEncryptInitiatorPassword(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	credential, err := EncryptInitiatorPassword("Safaricom999!*!", string(pemBytes))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	cipher, err := base64.StdEncoding.DecodeString(credential)
	if err != nil {
		t.Fatalf("credential is not base64: %v", err)
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, key, cipher)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plain) != "Safaricom999!*!" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestEncryptInitiatorPasswordNormalizesEscapedNewlines(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	escaped := strings.ReplaceAll(pemText, "\n", `\n`)

	if _, err := EncryptInitiatorPassword("secret", escaped); err != nil {
		t.Fatalf("expected escaped PEM to parse: %v", err)
	}
}

func TestEncryptInitiatorPasswordRejectsGarbage(t *testing.T) {
	if _, err := EncryptInitiatorPassword("secret", "not a certificate"); err == nil {
		t.Fatal("expected error for invalid PEM")
	}
}
