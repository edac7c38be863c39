package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clintonochieng072-gif/affiliate-settlement/commission"
	"github.com/clintonochieng072-gif/affiliate-settlement/ledger"
	"github.com/clintonochieng072-gif/affiliate-settlement/models"
	"github.com/clintonochieng072-gif/affiliate-settlement/provider"
	"github.com/clintonochieng072-gif/affiliate-settlement/withdrawal"
)

type commissionRequest struct {
	TrackingCode string          `json:"trackingCode"`
	PayerEmail   string          `json:"payerEmail"`
	Amount       decimal.Decimal `json:"amount"`
	Reference    string          `json:"reference"`
	ProductSlug  string          `json:"productSlug"`
}

type withdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

type affiliateRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	TrackingCode string `json:"trackingCode"`
}

func (s *Server) handleCommissionInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": "commission ingestion",
		"method":  http.MethodPost,
	})
}

func (s *Server) handleRecordCommission(w http.ResponseWriter, r *http.Request) {
	var req commissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	entry, duplicate, err := s.recorder.Record(r.Context(), commission.RecordInput{
		TrackingCode: req.TrackingCode,
		PayerEmail:   req.PayerEmail,
		Amount:       req.Amount,
		Reference:    req.Reference,
		ProductSlug:  req.ProductSlug,
	})
	if err != nil {
		switch {
		case errors.Is(err, commission.ErrUnknownTrackingCode):
			s.writeError(w, http.StatusNotFound, "unknown tracking code")
		case errors.Is(err, commission.ErrInvalidInput):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("record commission", "err", err)
			s.writeError(w, http.StatusInternalServerError, "failed to record commission")
		}
		return
	}
	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	s.writeJSON(w, status, map[string]interface{}{
		"commission": entry,
		"duplicate":  duplicate,
	})
}

func (s *Server) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	affiliate := affiliateFromContext(r.Context())
	if affiliate == nil {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	entry, err := s.withdrawals.Request(r.Context(), affiliate, req.Amount, req.Destination)
	if err != nil {
		var validation *withdrawal.ValidationError
		var rejection *provider.RejectionError
		switch {
		case errors.As(err, &validation):
			extra := map[string]interface{}{"code": string(validation.Code)}
			if validation.Code == withdrawal.CodeInsufficientBalance {
				extra["available"] = validation.Available
				extra["requested"] = validation.Requested
			}
			s.writeErrorExtra(w, http.StatusBadRequest, validation.Message, extra)
		case errors.Is(err, provider.ErrNotConfigured):
			s.writeErrorExtra(w, http.StatusServiceUnavailable, "transfer provider not configured", withdrawalExtra(entry))
		case errors.As(err, &rejection):
			s.writeErrorExtra(w, http.StatusBadGateway, rejection.Reason, withdrawalExtra(entry))
		default:
			if entry != nil {
				s.writeErrorExtra(w, http.StatusBadGateway, "transfer provider unavailable", withdrawalExtra(entry))
				return
			}
			s.logger.Error("create withdrawal", "err", err)
			s.writeError(w, http.StatusInternalServerError, "failed to create withdrawal")
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"withdrawal": entry})
}

func withdrawalExtra(entry *models.Withdrawal) map[string]interface{} {
	if entry == nil {
		return nil
	}
	return map[string]interface{}{"withdrawal": entry}
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	affiliate := affiliateFromContext(r.Context())
	if affiliate == nil {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	entries, err := s.store.Withdrawals(r.Context(), affiliate.ID)
	if err != nil {
		s.logger.Error("list withdrawals", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load withdrawals")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"withdrawals": entries})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	affiliate := affiliateFromContext(r.Context())
	if affiliate == nil {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	breakdown, err := s.store.Balance(r.Context(), affiliate.ID)
	if err != nil {
		s.logger.Error("compute balance", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute balance")
		return
	}
	s.writeJSON(w, http.StatusOK, breakdown)
}

func (s *Server) handleCreateAffiliate(w http.ResponseWriter, r *http.Request) {
	var req affiliateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.TrackingCode = strings.TrimSpace(req.TrackingCode)
	if req.Name == "" || req.Email == "" || req.TrackingCode == "" {
		s.writeError(w, http.StatusBadRequest, "name, email and trackingCode are required")
		return
	}
	if _, err := s.store.AffiliateByEmail(r.Context(), req.Email); err == nil {
		s.writeError(w, http.StatusConflict, "affiliate already exists")
		return
	} else if !errors.Is(err, ledger.ErrNotFound) {
		s.logger.Error("check affiliate", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create affiliate")
		return
	}
	affiliate, link, err := s.store.CreateAffiliate(r.Context(), req.Name, req.Email, req.TrackingCode)
	if err != nil {
		s.logger.Error("create affiliate", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create affiliate")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"affiliate": affiliate,
		"link":      link,
	})
}
