package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/clintonochieng072-gif/affiliate-settlement/withdrawal"
)

const (
	eventTransferSuccess  = "transfer.success"
	eventTransferFailed   = "transfer.failed"
	eventTransferReversed = "transfer.reversed"
)

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference    string `json:"reference"`
		TransferCode string `json:"transfer_code"`
		Reason       string `json:"reason"`
	} `json:"data"`
}

type darajaResult struct {
	ResultType               int    `json:"ResultType"`
	ResultCode               int    `json:"ResultCode"`
	ResultDesc               string `json:"ResultDesc"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ConversationID           string `json:"ConversationID"`
	TransactionID            string `json:"TransactionID"`
}

// darajaEnvelope mirrors the B2C result and timeout payloads. Daraja nests
// the body under a Result key, but some relays post the same fields at the
// top level; both shapes are accepted.
type darajaEnvelope struct {
	darajaResult
	Result *darajaResult `json:"Result"`
}

func (e darajaEnvelope) result() darajaResult {
	if e.Result != nil {
		return *e.Result
	}
	return e.darajaResult
}

type darajaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var ackAccepted = darajaAck{ResultCode: 0, ResultDesc: "Accepted"}

// handlePaystackWebhook verifies the Paystack signature before dispatching.
func (s *Server) handlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if !s.verifyPaystackSignature(body, r.Header.Get("x-paystack-signature")) {
		s.recordCallback("paystack", "invalid_signature")
		s.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	s.dispatchPaystackEvent(w, r, body)
}

// handlePaystackWebhookBody serves the internal forwarding route; the bearer
// secret check happens in middleware, so the body is trusted as-is.
func (s *Server) handlePaystackWebhookBody(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	s.dispatchPaystackEvent(w, r, body)
}

func (s *Server) dispatchPaystackEvent(w http.ResponseWriter, r *http.Request, body []byte) {
	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.recordCallback("paystack", "malformed")
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var success bool
	switch event.Event {
	case eventTransferSuccess:
		success = true
	case eventTransferFailed, eventTransferReversed:
		success = false
	default:
		// Unrelated events are acknowledged so Paystack stops retrying.
		s.recordCallback("paystack", "ignored")
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	reason := event.Data.Reason
	if !success && reason == "" {
		reason = "transfer " + event.Event[len("transfer."):]
	}
	entry, err := s.withdrawals.ApplyResult(r.Context(), event.Data.Reference, event.Data.TransferCode, success, reason)
	if err != nil {
		if errors.Is(err, withdrawal.ErrNotFound) {
			s.recordCallback("paystack", "unmatched")
			s.writeError(w, http.StatusNotFound, "no matching withdrawal")
			return
		}
		s.logger.Error("apply paystack event", "err", err)
		s.recordCallback("paystack", "error")
		s.writeError(w, http.StatusInternalServerError, "failed to apply event")
		return
	}
	s.recordCallback("paystack", "applied")
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"withdrawal": entry})
}

func (s *Server) handleDarajaResult(w http.ResponseWriter, r *http.Request) {
	envelope, ok := s.readDarajaEnvelope(w, r, "daraja_result")
	if !ok {
		return
	}
	result := envelope.result()
	_, err := s.withdrawals.ApplyResult(r.Context(),
		result.OriginatorConversationID,
		result.ConversationID,
		result.ResultCode == 0,
		result.ResultDesc,
	)
	s.finishDarajaCallback(w, "daraja_result", err)
}

func (s *Server) handleDarajaTimeout(w http.ResponseWriter, r *http.Request) {
	envelope, ok := s.readDarajaEnvelope(w, r, "daraja_timeout")
	if !ok {
		return
	}
	result := envelope.result()
	_, err := s.withdrawals.ApplyTimeout(r.Context(),
		result.OriginatorConversationID,
		result.ConversationID,
	)
	s.finishDarajaCallback(w, "daraja_timeout", err)
}

func (s *Server) readDarajaEnvelope(w http.ResponseWriter, r *http.Request, kind string) (darajaEnvelope, bool) {
	if s.callbackToken != "" {
		token := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.callbackToken)) != 1 {
			s.recordCallback(kind, "invalid_token")
			s.writeError(w, http.StatusUnauthorized, "invalid callback token")
			return darajaEnvelope{}, false
		}
	}
	var envelope darajaEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		s.recordCallback(kind, "malformed")
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return darajaEnvelope{}, false
	}
	return envelope, true
}

// finishDarajaCallback acknowledges with the envelope Daraja expects. An
// unmatched reference still acknowledges so the provider stops retrying a
// callback that can never match.
func (s *Server) finishDarajaCallback(w http.ResponseWriter, kind string, err error) {
	switch {
	case err == nil:
		s.recordCallback(kind, "applied")
	case errors.Is(err, withdrawal.ErrNotFound):
		s.recordCallback(kind, "unmatched")
	default:
		s.logger.Error("apply daraja callback", "kind", kind, "err", err)
		s.recordCallback(kind, "error")
		s.writeError(w, http.StatusInternalServerError, "failed to apply callback")
		return
	}
	s.writeJSON(w, http.StatusOK, ackAccepted)
}

func (s *Server) recordCallback(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCallback(kind, outcome)
	}
}
