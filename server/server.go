package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clintonochieng072-gif/affiliate-settlement/commission"
	"github.com/clintonochieng072-gif/affiliate-settlement/config"
	"github.com/clintonochieng072-gif/affiliate-settlement/ledger"
	"github.com/clintonochieng072-gif/affiliate-settlement/observability"
	"github.com/clintonochieng072-gif/affiliate-settlement/withdrawal"
)

// Server exposes the settlement API over HTTP. All authenticated surfaces
// share one chi router; webhook routes carry their own verification and are
// mounted outside the session middleware.
type Server struct {
	store       *ledger.Store
	recorder    *commission.Recorder
	withdrawals *withdrawal.Service
	metrics     *observability.SettlementMetrics
	logger      *slog.Logger

	sessionSecret    []byte
	commissionSecret string
	internalSecret   string
	operatorToken    string
	callbackToken    string
	paystackSecret   []byte
}

// NewServer wires the HTTP layer over the assembled services.
func NewServer(cfg config.Config, store *ledger.Store, recorder *commission.Recorder, withdrawals *withdrawal.Service, metrics *observability.SettlementMetrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:            store,
		recorder:         recorder,
		withdrawals:      withdrawals,
		metrics:          metrics,
		logger:           logger,
		sessionSecret:    []byte(cfg.SessionSecret),
		commissionSecret: cfg.CommissionSecret,
		internalSecret:   cfg.InternalWebhookSecret,
		operatorToken:    cfg.OperatorToken,
		callbackToken:    cfg.CallbackToken,
		paystackSecret:   []byte(cfg.Paystack.SecretKey),
	}
}

// Router assembles all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.instrument("commissions")).Route("/commissions", func(r chi.Router) {
			r.Get("/", s.handleCommissionInfo)
			r.With(s.requireSharedSecret(s.commissionSecret)).Post("/", s.handleRecordCommission)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.With(s.instrument("withdrawals")).Post("/withdrawals", s.handleCreateWithdrawal)
			r.With(s.instrument("withdrawals")).Get("/withdrawals", s.handleListWithdrawals)
			r.With(s.instrument("balance")).Get("/balance", s.handleBalance)
		})
		r.With(s.instrument("affiliates"), s.requireSharedSecret(s.operatorToken)).Post("/affiliates", s.handleCreateAffiliate)
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.With(s.instrument("webhook_paystack")).Post("/paystack", s.handlePaystackWebhook)
		r.With(s.instrument("webhook_daraja")).Post("/daraja/result", s.handleDarajaResult)
		r.With(s.instrument("webhook_daraja")).Post("/daraja/timeout", s.handleDarajaTimeout)
	})
	r.With(s.instrument("webhook_internal"), s.requireSharedSecret(s.internalSecret)).Post("/internal/paystack-webhook", s.handlePaystackWebhookBody)

	return r
}

func (s *Server) instrument(route string) func(http.Handler) http.Handler {
	if s.metrics == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.metrics.Middleware(route)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeErrorExtra(w, status, message, nil)
}

func (s *Server) writeErrorExtra(w http.ResponseWriter, status int, message string, extra map[string]interface{}) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	payload := map[string]interface{}{"error": message}
	for k, v := range extra {
		payload[k] = v
	}
	body, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
