package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/clintonochieng072-gif/affiliate-settlement/provider/daraja"
	"github.com/clintonochieng072-gif/affiliate-settlement/withdrawal"
)

// Provider variants selectable through SETTLEMENT_PROVIDER.
const (
	ProviderPaystack = "paystack"
	ProviderDaraja   = "daraja"
	ProviderNone     = "none"
)

// Database drivers selectable through SETTLEMENT_DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// PaystackConfig holds Paystack transfer credentials.
type PaystackConfig struct {
	BaseURL   string
	SecretKey string
}

// DarajaConfig holds Daraja B2C credentials. SecurityCredential may be set
// directly, or derived at startup from InitiatorPassword and CertificatePEM.
type DarajaConfig struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	Shortcode          string
	InitiatorName      string
	SecurityCredential string
	InitiatorPassword  string
	CertificatePEM     string
	CommandID          string
}

// Config captures runtime configuration for the settlement service.
type Config struct {
	ListenAddress string
	Environment   string
	LogLevel      string

	DatabaseDriver string
	DatabaseDSN    string

	SessionSecret         string
	CommissionSecret      string
	InternalWebhookSecret string
	OperatorToken         string
	CallbackToken         string

	CommissionRate decimal.Decimal
	Fees           withdrawal.Schedule

	Provider        string
	CallbackBaseURL string
	Paystack        PaystackConfig
	Daraja          DarajaConfig
}

// LoadFromEnv builds a configuration using SETTLEMENT_* environment
// variables, failing fast on missing credentials for the selected provider.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:         getenvDefault("SETTLEMENT_LISTEN", ":8080"),
		Environment:           getenvDefault("SETTLEMENT_ENV", "development"),
		LogLevel:              getenvDefault("SETTLEMENT_LOG_LEVEL", "info"),
		DatabaseDriver:        getenvDefault("SETTLEMENT_DB_DRIVER", DriverSQLite),
		DatabaseDSN:           getenvDefault("SETTLEMENT_DB_DSN", "settlement.db"),
		SessionSecret:         os.Getenv("SETTLEMENT_SESSION_SECRET"),
		CommissionSecret:      os.Getenv("SETTLEMENT_COMMISSION_SECRET"),
		InternalWebhookSecret: os.Getenv("SETTLEMENT_INTERNAL_WEBHOOK_SECRET"),
		OperatorToken:         os.Getenv("SETTLEMENT_OPERATOR_TOKEN"),
		CallbackToken:         os.Getenv("SETTLEMENT_CALLBACK_TOKEN"),
		CommissionRate:        decimal.NewFromInt(1),
		Fees:                  withdrawal.DefaultSchedule(),
		Provider:              strings.ToLower(getenvDefault("SETTLEMENT_PROVIDER", ProviderNone)),
		CallbackBaseURL:       strings.TrimRight(os.Getenv("SETTLEMENT_CALLBACK_BASE_URL"), "/"),
	}

	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return Config{}, fmt.Errorf("unsupported SETTLEMENT_DB_DRIVER %q", cfg.DatabaseDriver)
	}

	if raw := strings.TrimSpace(os.Getenv("SETTLEMENT_COMMISSION_RATE")); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SETTLEMENT_COMMISSION_RATE: %w", err)
		}
		if rate.LessThanOrEqual(decimal.Zero) || rate.GreaterThan(decimal.NewFromInt(1)) {
			return Config{}, errors.New("SETTLEMENT_COMMISSION_RATE must be in (0, 1]")
		}
		cfg.CommissionRate = rate
	}

	if path := strings.TrimSpace(os.Getenv("SETTLEMENT_FEE_POLICY")); path != "" {
		schedule, err := LoadFeePolicy(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Fees = schedule
	}
	if err := cfg.Fees.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.SessionSecret == "" {
		return Config{}, errors.New("SETTLEMENT_SESSION_SECRET is required")
	}
	if cfg.CommissionSecret == "" {
		return Config{}, errors.New("SETTLEMENT_COMMISSION_SECRET is required")
	}

	if cfg.CallbackBaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.CallbackBaseURL); err != nil {
			return Config{}, fmt.Errorf("parse SETTLEMENT_CALLBACK_BASE_URL: %w", err)
		}
	}

	switch cfg.Provider {
	case ProviderNone:
	case ProviderPaystack:
		cfg.Paystack = PaystackConfig{
			BaseURL:   os.Getenv("SETTLEMENT_PAYSTACK_BASE_URL"),
			SecretKey: os.Getenv("SETTLEMENT_PAYSTACK_SECRET_KEY"),
		}
		if cfg.Paystack.SecretKey == "" {
			return Config{}, errors.New("SETTLEMENT_PAYSTACK_SECRET_KEY is required when SETTLEMENT_PROVIDER=paystack")
		}
	case ProviderDaraja:
		cfg.Daraja = DarajaConfig{
			BaseURL:            getenvDefault("SETTLEMENT_DARAJA_BASE_URL", daraja.SandboxBaseURL),
			ConsumerKey:        os.Getenv("SETTLEMENT_DARAJA_CONSUMER_KEY"),
			ConsumerSecret:     os.Getenv("SETTLEMENT_DARAJA_CONSUMER_SECRET"),
			Shortcode:          os.Getenv("SETTLEMENT_DARAJA_SHORTCODE"),
			InitiatorName:      os.Getenv("SETTLEMENT_DARAJA_INITIATOR_NAME"),
			SecurityCredential: os.Getenv("SETTLEMENT_DARAJA_SECURITY_CREDENTIAL"),
			InitiatorPassword:  os.Getenv("SETTLEMENT_DARAJA_INITIATOR_PASSWORD"),
			CertificatePEM:     os.Getenv("SETTLEMENT_DARAJA_CERTIFICATE"),
			CommandID:          os.Getenv("SETTLEMENT_DARAJA_COMMAND_ID"),
		}
		if cfg.Daraja.ConsumerKey == "" || cfg.Daraja.ConsumerSecret == "" {
			return Config{}, errors.New("SETTLEMENT_DARAJA_CONSUMER_KEY and SETTLEMENT_DARAJA_CONSUMER_SECRET are required when SETTLEMENT_PROVIDER=daraja")
		}
		if cfg.Daraja.Shortcode == "" || cfg.Daraja.InitiatorName == "" {
			return Config{}, errors.New("SETTLEMENT_DARAJA_SHORTCODE and SETTLEMENT_DARAJA_INITIATOR_NAME are required when SETTLEMENT_PROVIDER=daraja")
		}
		if cfg.Daraja.SecurityCredential == "" {
			if cfg.Daraja.InitiatorPassword == "" || cfg.Daraja.CertificatePEM == "" {
				return Config{}, errors.New("set SETTLEMENT_DARAJA_SECURITY_CREDENTIAL, or SETTLEMENT_DARAJA_INITIATOR_PASSWORD with SETTLEMENT_DARAJA_CERTIFICATE")
			}
			credential, err := daraja.EncryptInitiatorPassword(cfg.Daraja.InitiatorPassword, cfg.Daraja.CertificatePEM)
			if err != nil {
				return Config{}, fmt.Errorf("derive daraja security credential: %w", err)
			}
			cfg.Daraja.SecurityCredential = credential
		}
		if cfg.CallbackBaseURL == "" {
			return Config{}, errors.New("SETTLEMENT_CALLBACK_BASE_URL is required when SETTLEMENT_PROVIDER=daraja")
		}
	default:
		return Config{}, fmt.Errorf("unsupported SETTLEMENT_PROVIDER %q", cfg.Provider)
	}

	return cfg, nil
}

// DarajaResultURL is the absolute URL Daraja posts final transfer results to.
func (c Config) DarajaResultURL() string {
	return c.CallbackBaseURL + "/webhooks/daraja/result"
}

// DarajaTimeoutURL is the absolute URL Daraja posts queue timeouts to.
func (c Config) DarajaTimeoutURL() string {
	return c.CallbackBaseURL + "/webhooks/daraja/timeout"
}

// feePolicyFile is the on-disk YAML shape for fee overrides. Monetary values
// are parsed as strings to keep them exact.
type feePolicyFile struct {
	Fees struct {
		BlockSize     string `yaml:"block_size"`
		PerBlockFee   string `yaml:"per_block_fee"`
		TestAmount    string `yaml:"test_amount"`
		TransferTiers []struct {
			Max string `yaml:"max"`
			Fee string `yaml:"fee"`
		} `yaml:"transfer_tiers"`
		DefaultTransferFee string `yaml:"default_transfer_fee"`
	} `yaml:"fees"`
}

// LoadFeePolicy reads a fee schedule override from a YAML file. Fields left
// unset keep their defaults; listing any transfer tier replaces the whole
// tier table.
func LoadFeePolicy(path string) (withdrawal.Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return withdrawal.Schedule{}, fmt.Errorf("read fee policy: %w", err)
	}
	var file feePolicyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return withdrawal.Schedule{}, fmt.Errorf("parse fee policy: %w", err)
	}

	schedule := withdrawal.DefaultSchedule()
	assign := func(dst *decimal.Decimal, raw, field string) error {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("fee policy: parse %s: %w", field, err)
		}
		*dst = value
		return nil
	}
	if err := assign(&schedule.BlockSize, file.Fees.BlockSize, "block_size"); err != nil {
		return withdrawal.Schedule{}, err
	}
	if err := assign(&schedule.PerBlockFee, file.Fees.PerBlockFee, "per_block_fee"); err != nil {
		return withdrawal.Schedule{}, err
	}
	if err := assign(&schedule.TestAmount, file.Fees.TestAmount, "test_amount"); err != nil {
		return withdrawal.Schedule{}, err
	}
	if err := assign(&schedule.DefaultTransferFee, file.Fees.DefaultTransferFee, "default_transfer_fee"); err != nil {
		return withdrawal.Schedule{}, err
	}
	if len(file.Fees.TransferTiers) > 0 {
		tiers := make([]withdrawal.TransferTier, 0, len(file.Fees.TransferTiers))
		for i, raw := range file.Fees.TransferTiers {
			var tier withdrawal.TransferTier
			if err := assign(&tier.Max, raw.Max, fmt.Sprintf("transfer_tiers[%d].max", i)); err != nil {
				return withdrawal.Schedule{}, err
			}
			if err := assign(&tier.Fee, raw.Fee, fmt.Sprintf("transfer_tiers[%d].fee", i)); err != nil {
				return withdrawal.Schedule{}, err
			}
			tiers = append(tiers, tier)
		}
		schedule.TransferTiers = tiers
	}

	if err := schedule.Validate(); err != nil {
		return withdrawal.Schedule{}, fmt.Errorf("fee policy: %w", err)
	}
	return schedule, nil
}

func getenvDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
