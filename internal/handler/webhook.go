package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
	"github.com/casevend/kiosk-server-go/internal/service"
)

// payStatusRequest is the manufacturer's callback body. Status codes:
// 1 waiting, 2 processing, 3 paid, 4 failed, 5 abnormal.
type payStatusRequest struct {
	ThirdID string `json:"third_id"`
	Status  int    `json:"status"`
}

type payStatusAck struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
}

// WebhookHandler receives unauthenticated payment-status callbacks from the
// manufacturer. The remote redelivers on failure acks, so the handler always
// answers HTTP 200 and signals the outcome in the body code.
type WebhookHandler struct {
	correlator *service.WebhookCorrelator
}

func NewWebhookHandler(correlator *service.WebhookCorrelator) *WebhookHandler {
	return &WebhookHandler{correlator: correlator}
}

// POST /callbacks/order/payStatus
func (h *WebhookHandler) PayStatus(w http.ResponseWriter, r *http.Request) {
	var req payStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid payment callback body")
		writeJSON(w, http.StatusOK, payStatusAck{Code: 400, Msg: "invalid request body"})
		return
	}

	log.Info().
		Str("thirdId", req.ThirdID).
		Int("status", req.Status).
		Msg("payment callback received")

	session, err := h.correlator.OnPaymentStatus(r.Context(), req.ThirdID, req.Status)
	if err != nil {
		// UnresolvableWebhook must stay loud: money may have moved with no
		// session to attach the order to.
		log.Error().Err(err).Str("thirdId", req.ThirdID).Msg("payment callback not applied")
		writeJSON(w, http.StatusOK, payStatusAck{
			Code: 500,
			Msg:  string(apperrors.GetCode(err)),
		})
		return
	}

	log.Info().
		Str("thirdId", req.ThirdID).
		Str("sessionId", session.SessionID).
		Str("sessionStatus", string(session.Status)).
		Msg("payment callback applied")
	writeJSON(w, http.StatusOK, payStatusAck{Code: 200})
}
