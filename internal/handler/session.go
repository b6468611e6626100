package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
	"github.com/casevend/kiosk-server-go/internal/model"
	"github.com/casevend/kiosk-server-go/internal/service"
)

type SessionHandler struct {
	lifecycle *service.LifecycleManager
	qrBaseURL string
}

func NewSessionHandler(lifecycle *service.LifecycleManager, qrBaseURL string) *SessionHandler {
	return &SessionHandler{
		lifecycle: lifecycle,
		qrBaseURL: qrBaseURL,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Post("/{sessionID}/register", h.RegisterUser)
	r.Post("/{sessionID}/summary", h.SubmitSummary)
	r.Post("/{sessionID}/payment", h.InitPayment)
	r.Get("/{sessionID}", h.GetStatus)
	r.Delete("/{sessionID}", h.Cleanup)

	return r
}

type createSessionRequest struct {
	MachineID  string  `json:"machineId"`
	DeviceID   *string `json:"deviceId,omitempty"`
	Location   string  `json:"location"`
	TTLSeconds int     `json:"ttlSeconds"`
}

type createSessionResponse struct {
	SessionID string    `json:"sessionId"`
	QRURL     string    `json:"qrUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	session, err := h.lifecycle.CreateSession(
		r.Context(), req.MachineID, req.DeviceID, req.Location,
		time.Duration(req.TTLSeconds)*time.Second,
	)
	if err != nil {
		log.Warn().Err(err).Str("machineId", req.MachineID).Msg("failed to create session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: session.SessionID,
		QRURL:     fmt.Sprintf("%s/s/%s", h.qrBaseURL, session.SessionID),
		ExpiresAt: session.ExpiresAt,
	})
}

// POST /v1/sessions/{sessionID}/register
func (h *SessionHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.lifecycle.RegisterUser(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, projectSession(session))
}

// POST /v1/sessions/{sessionID}/summary
func (h *SessionHandler) SubmitSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var summary model.OrderSummary
	if err := json.NewDecoder(r.Body).Decode(&summary); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	session, err := h.lifecycle.SubmitOrderSummary(r.Context(), sessionID, summary)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, projectSession(session))
}

type initPaymentRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	PayType model.PayType   `json:"payType"`
}

type initPaymentResponse struct {
	ThirdID       string `json:"thirdId"`
	ReservationID string `json:"reservationId"`
	Status        string `json:"status"`
}

// POST /v1/sessions/{sessionID}/payment
func (h *SessionHandler) InitPayment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req initPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body"))
		return
	}
	if req.PayType == "" {
		req.PayType = model.PayTypeVending
	}
	if req.PayType != model.PayTypeVending && req.PayType != model.PayTypeApp {
		writeError(w, apperrors.InvalidInput("payType", "must be vending or app"))
		return
	}

	reservation, err := h.lifecycle.ReservePayment(r.Context(), sessionID, req.Amount, req.PayType)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("payment reservation failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, initPaymentResponse{
		ThirdID:       reservation.ThirdID,
		ReservationID: reservation.ReservationID,
		Status:        "awaiting_payment",
	})
}

// GET /v1/sessions/{sessionID}
func (h *SessionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.lifecycle.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, projectSession(session))
}

// DELETE /v1/sessions/{sessionID}
func (h *SessionHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.lifecycle.CancelOrExpire(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, projectSession(session))
}

// sessionProjection is the read-only view clients poll. queueNumber stays
// null until the manufacturer returns one.
type sessionProjection struct {
	SessionID         string                   `json:"sessionId"`
	MachineID         string                   `json:"machineId"`
	Location          string                   `json:"location"`
	Status            model.SessionStatus      `json:"status"`
	UserProgress      model.UserProgress       `json:"userProgress"`
	QueueNumber       *string                  `json:"queueNumber"`
	ReservationStatus *model.ReservationStatus `json:"reservationStatus,omitempty"`
	ThirdID           *string                  `json:"thirdId,omitempty"`
	ExpiresAt         time.Time                `json:"expiresAt"`
	CreatedAt         time.Time                `json:"createdAt"`
}

func projectSession(s *model.VendingSession) sessionProjection {
	return sessionProjection{
		SessionID:         s.SessionID,
		MachineID:         s.MachineID,
		Location:          s.Location,
		Status:            s.Status,
		UserProgress:      s.UserProgress,
		QueueNumber:       s.QueueNo,
		ReservationStatus: s.ReservationStatus,
		ThirdID:           s.PayThirdID,
		ExpiresAt:         s.ExpiresAt,
		CreatedAt:         s.CreatedAt,
	}
}
