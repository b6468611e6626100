package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventSessionCreate       EventType = "session_create"
	EventSessionCancel       EventType = "session_cancel"
	EventSessionExpire       EventType = "session_expire"
	EventPaymentReserved     EventType = "payment_reserved"
	EventPaymentFailed       EventType = "payment_failed"
	EventWebhookReceived     EventType = "webhook_received"
	EventWebhookUnresolvable EventType = "webhook_unresolvable"
	EventOrderFinalized      EventType = "order_finalized"
	EventRateLimitExceed     EventType = "rate_limit_exceeded"
)

type Event struct {
	Type      EventType
	SessionID string
	MachineID string
	ThirdID   string
	IP        string
	Details   map[string]interface{}
}

// Log emits a structured audit record. Payment/webhook events get a unique
// delivery id so redeliveries of the same correlation id stay distinguishable.
func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "payment").
		Str("event_type", string(event.Type)).
		Str("delivery_id", uuid.NewString()).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.MachineID != "" {
		logger = logger.With().Str("machine_id", event.MachineID).Logger()
	}
	if event.ThirdID != "" {
		logger = logger.With().Str("third_id", event.ThirdID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	if event.Type == EventWebhookUnresolvable {
		// money has moved but no order can be created
		logEvent = logger.Error()
	}
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("payment audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
