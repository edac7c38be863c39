package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clintonochieng072-gif/affiliate-settlement/commission"
	"github.com/clintonochieng072-gif/affiliate-settlement/config"
	"github.com/clintonochieng072-gif/affiliate-settlement/ledger"
	"github.com/clintonochieng072-gif/affiliate-settlement/models"
	"github.com/clintonochieng072-gif/affiliate-settlement/observability"
	"github.com/clintonochieng072-gif/affiliate-settlement/observability/logging"
	"github.com/clintonochieng072-gif/affiliate-settlement/provider"
	"github.com/clintonochieng072-gif/affiliate-settlement/provider/daraja"
	"github.com/clintonochieng072-gif/affiliate-settlement/provider/paystack"
	"github.com/clintonochieng072-gif/affiliate-settlement/server"
	"github.com/clintonochieng072-gif/affiliate-settlement/withdrawal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "settlementd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("settlementd", cfg.Environment, cfg.LogLevel)

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	store := ledger.NewStore(db)
	recorder := commission.NewRecorder(store, cfg.CommissionRate, logger)
	metrics := observability.NewSettlementMetrics()

	prov, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("configure provider: %w", err)
	}

	withdrawals := withdrawal.NewService(store, prov, cfg.Fees, logger,
		withdrawal.WithMetrics(metrics),
	)

	srv := server.NewServer(cfg, store, recorder, withdrawals, metrics, logger)

	providerName := cfg.Provider
	if prov == nil {
		providerName = "disabled"
	}
	logger.Info("settlement service listening",
		slog.String("addr", cfg.ListenAddress),
		slog.String("provider", providerName),
		slog.String("driver", cfg.DatabaseDriver),
	)
	return http.ListenAndServe(cfg.ListenAddress, srv.Router())
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return gorm.Open(postgres.Open(cfg.DatabaseDSN), gormCfg)
	case config.DriverSQLite:
		return gorm.Open(sqlite.Open(cfg.DatabaseDSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DatabaseDriver)
	}
}

func buildProvider(cfg config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderPaystack:
		return paystack.NewClient(paystack.Config{
			BaseURL:   cfg.Paystack.BaseURL,
			SecretKey: cfg.Paystack.SecretKey,
		}), nil
	case config.ProviderDaraja:
		return daraja.NewClient(daraja.Config{
			BaseURL:            cfg.Daraja.BaseURL,
			ConsumerKey:        cfg.Daraja.ConsumerKey,
			ConsumerSecret:     cfg.Daraja.ConsumerSecret,
			Shortcode:          cfg.Daraja.Shortcode,
			InitiatorName:      cfg.Daraja.InitiatorName,
			SecurityCredential: cfg.Daraja.SecurityCredential,
			CommandID:          cfg.Daraja.CommandID,
			ResultURL:          cfg.DarajaResultURL(),
			TimeoutURL:         cfg.DarajaTimeoutURL(),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
